package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Database DatabaseConfig
	Storage  StorageConfig
	Queue    QueueConfig
	Vision   VisionConfig
	Telegram TelegramConfig
	Crop     CropConfig
	Logging  LoggingConfig
	Web      WebConfig
}

type DatabaseConfig struct {
	URL          string        // PostgreSQL connection URL
	MaxOpenConns int           // Maximum open connections (default 25)
	MaxIdleConns int           // Maximum idle connections (default 5)
	Timeout      time.Duration // Per-transaction timeout (default 3s)
}

type StorageConfig struct {
	SourceBucketURL string        // gocloud.dev bucket URL holding uploaded images (e.g. s3://photos?endpoint=...)
	FacesBucketURL  string        // gocloud.dev bucket URL receiving face crops
	SourceLinkTTL   time.Duration // Expiry of the read link the crop worker fetches through (default 100s)
	MediaLinkTTL    time.Duration // Expiry of links sent to chat users (default 5m)
	Timeout         time.Duration // Per-call timeout for get/put (default 5s)
}

type QueueConfig struct {
	FaceTaskTopicURL        string // gocloud.dev topic URL the dispatcher publishes face tasks to
	FaceTaskSubscriptionURL string // subscription URL the crop worker consumes
	UploadSubscriptionURL   string // subscription URL carrying upload notifications
	WorkerConcurrency       int    // Parallel handlers per consumer (default 4)
}

type VisionConfig struct {
	URL       string // defaults to the Yandex Vision batchAnalyze endpoint
	FolderID  string
	Token     string        // fallback credential when the event carries none
	TokenType string        // "Bearer" for IAM tokens, "Api-Key" for API keys (default Bearer)
	Timeout   time.Duration // default 10s
}

type TelegramConfig struct {
	Token         string
	APIURL        string // defaults to https://api.telegram.org
	WebhookSecret string // compared against X-Telegram-Bot-Api-Secret-Token when set
	Language      string // reply catalogue language, "en" or "ru" (default en)
	Timeout       time.Duration
}

type CropConfig struct {
	JPEGQuality int // 1-100 (default 95)
}

type LoggingConfig struct {
	Format string // "json" | "text"
	Level  string
}

type WebConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
}

const DefaultVisionURL = "https://vision.api.cloud.yandex.net/vision/v1/batchAnalyze"

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration reads a positive Go duration ("3s", "5m").
// Returns the default value if the env var is unset, empty, or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func Load() *Config {
	quality := envInt("CROP_JPEG_QUALITY", 95)
	if quality > 100 {
		quality = 100
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
			Timeout:      envDuration("INDEX_TIMEOUT", 3*time.Second),
		},
		Storage: StorageConfig{
			SourceBucketURL: os.Getenv("SOURCE_BUCKET_URL"),
			FacesBucketURL:  os.Getenv("FACES_BUCKET_URL"),
			SourceLinkTTL:   envDuration("SOURCE_LINK_TTL", 100*time.Second),
			MediaLinkTTL:    envDuration("MEDIA_LINK_TTL", 5*time.Minute),
			Timeout:         envDuration("STORAGE_TIMEOUT", 5*time.Second),
		},
		Queue: QueueConfig{
			FaceTaskTopicURL:        os.Getenv("FACE_TASK_TOPIC_URL"),
			FaceTaskSubscriptionURL: os.Getenv("FACE_TASK_SUBSCRIPTION_URL"),
			UploadSubscriptionURL:   os.Getenv("UPLOAD_SUBSCRIPTION_URL"),
			WorkerConcurrency:       envInt("WORKER_CONCURRENCY", 4),
		},
		Vision: VisionConfig{
			URL:       envString("VISION_URL", DefaultVisionURL),
			FolderID:  os.Getenv("VISION_FOLDER_ID"),
			Token:     os.Getenv("VISION_TOKEN"),
			TokenType: envString("VISION_TOKEN_TYPE", "Bearer"),
			Timeout:   envDuration("VISION_TIMEOUT", 10*time.Second),
		},
		Telegram: TelegramConfig{
			Token:         os.Getenv("TELEGRAM_BOT_TOKEN"),
			APIURL:        envString("TELEGRAM_API_URL", "https://api.telegram.org"),
			WebhookSecret: os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
			Language:      envString("BOT_LANGUAGE", "en"),
			Timeout:       envDuration("TELEGRAM_TIMEOUT", 5*time.Second),
		},
		Crop: CropConfig{
			JPEGQuality: quality,
		},
		Logging: LoggingConfig{
			Format: envString("LOG_FORMAT", "text"),
			Level:  envString("LOG_LEVEL", "info"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			RequestTimeout: envDuration("REQUEST_TIMEOUT", 30*time.Second),
		},
	}
}
