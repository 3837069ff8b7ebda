package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"INDEX_TIMEOUT", "SOURCE_LINK_TTL", "MEDIA_LINK_TTL", "WORKER_CONCURRENCY",
		"VISION_URL", "VISION_TOKEN_TYPE", "BOT_LANGUAGE", "CROP_JPEG_QUALITY", "WEB_PORT",
	} {
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.Database.Timeout != 3*time.Second {
		t.Errorf("expected default index timeout 3s, got %v", cfg.Database.Timeout)
	}
	if cfg.Storage.SourceLinkTTL != 100*time.Second {
		t.Errorf("expected default source link TTL 100s, got %v", cfg.Storage.SourceLinkTTL)
	}
	if cfg.Storage.MediaLinkTTL != 5*time.Minute {
		t.Errorf("expected default media link TTL 5m, got %v", cfg.Storage.MediaLinkTTL)
	}
	if cfg.Queue.WorkerConcurrency != 4 {
		t.Errorf("expected default concurrency 4, got %d", cfg.Queue.WorkerConcurrency)
	}
	if cfg.Vision.URL != DefaultVisionURL {
		t.Errorf("expected default vision URL, got '%s'", cfg.Vision.URL)
	}
	if cfg.Vision.TokenType != "Bearer" {
		t.Errorf("expected default token type 'Bearer', got '%s'", cfg.Vision.TokenType)
	}
	if cfg.Telegram.Language != "en" {
		t.Errorf("expected default language 'en', got '%s'", cfg.Telegram.Language)
	}
	if cfg.Crop.JPEGQuality != 95 {
		t.Errorf("expected default quality 95, got %d", cfg.Crop.JPEGQuality)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Web.Port)
	}
}

func TestLoad_CustomDurations(t *testing.T) {
	t.Setenv("INDEX_TIMEOUT", "1500ms")
	t.Setenv("MEDIA_LINK_TTL", "90s")

	cfg := Load()

	if cfg.Database.Timeout != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", cfg.Database.Timeout)
	}
	if cfg.Storage.MediaLinkTTL != 90*time.Second {
		t.Errorf("expected 90s, got %v", cfg.Storage.MediaLinkTTL)
	}
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("INDEX_TIMEOUT", "soon")
	t.Setenv("SOURCE_LINK_TTL", "-5s")

	cfg := Load()

	if cfg.Database.Timeout != 3*time.Second {
		t.Errorf("expected fallback 3s, got %v", cfg.Database.Timeout)
	}
	if cfg.Storage.SourceLinkTTL != 100*time.Second {
		t.Errorf("expected fallback 100s, got %v", cfg.Storage.SourceLinkTTL)
	}
}

func TestLoad_InvalidConcurrency(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "invalid")

	cfg := Load()

	if cfg.Queue.WorkerConcurrency != 4 {
		t.Errorf("expected default concurrency 4 for invalid input, got %d", cfg.Queue.WorkerConcurrency)
	}
}

func TestLoad_QualityClamped(t *testing.T) {
	t.Setenv("CROP_JPEG_QUALITY", "250")

	cfg := Load()

	if cfg.Crop.JPEGQuality != 100 {
		t.Errorf("expected quality clamped to 100, got %d", cfg.Crop.JPEGQuality)
	}
}

func TestLoad_TelegramConfig(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_WEBHOOK_SECRET", "s3cret")
	t.Setenv("BOT_LANGUAGE", "ru")

	cfg := Load()

	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("expected token '123:abc', got '%s'", cfg.Telegram.Token)
	}
	if cfg.Telegram.WebhookSecret != "s3cret" {
		t.Errorf("expected secret 's3cret', got '%s'", cfg.Telegram.WebhookSecret)
	}
	if cfg.Telegram.Language != "ru" {
		t.Errorf("expected language 'ru', got '%s'", cfg.Telegram.Language)
	}
}

func TestLoad_StorageConfig(t *testing.T) {
	t.Setenv("SOURCE_BUCKET_URL", "s3://photos?endpoint=https://storage.yandexcloud.net&region=ru-central1")
	t.Setenv("FACES_BUCKET_URL", "file:///var/lib/faces")

	cfg := Load()

	if cfg.Storage.SourceBucketURL != "s3://photos?endpoint=https://storage.yandexcloud.net&region=ru-central1" {
		t.Errorf("unexpected source bucket URL '%s'", cfg.Storage.SourceBucketURL)
	}
	if cfg.Storage.FacesBucketURL != "file:///var/lib/faces" {
		t.Errorf("unexpected faces bucket URL '%s'", cfg.Storage.FacesBucketURL)
	}
}
