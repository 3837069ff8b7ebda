package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/face-index/internal/bot"
	"github.com/kozaktomas/face-index/internal/config"
	"github.com/kozaktomas/face-index/internal/cropper"
	"github.com/kozaktomas/face-index/internal/dispatcher"
	"github.com/kozaktomas/face-index/internal/metrics"
	"github.com/kozaktomas/face-index/internal/queue"
	"github.com/kozaktomas/face-index/internal/storage"
	"github.com/kozaktomas/face-index/internal/telegram"
	"github.com/kozaktomas/face-index/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the Face Index HTTP server.

Routes:
  POST /telegram/webhook            Telegram bot updates (needs TELEGRAM_BOT_TOKEN)
  POST /api/v1/triggers/upload      object-storage upload trigger (dispatcher)
  POST /api/v1/triggers/face-task   message-queue trigger (crop worker)
  GET  /api/v1/faces/{faceKey}      redirect to a fresh read link for a crop
  GET  /api/v1/health               health check
  GET  /metrics                     Prometheus metrics

Components whose configuration is missing are left unmounted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	ctx, stop := signalContext()
	defer stop()

	m := metrics.New()
	pool, index, err := openIndex(cfg, m)
	if err != nil {
		return err
	}
	defer closeQuietly("database", pool.Close)

	crops, err := openFacesBucket(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQuietly("faces bucket", crops.Close)

	deps := web.Dependencies{
		Index:      index,
		Crops:      crops,
		Metrics:    m,
		Credential: configuredCredential(cfg),
	}

	if cfg.Storage.SourceBucketURL != "" {
		sources, err := openSourceBucket(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeQuietly("source bucket", sources.Close)

		deps.Worker = cropper.New(sources, crops, index, m, cropper.Options{
			LinkTTL:     cfg.Storage.SourceLinkTTL,
			JPEGQuality: cfg.Crop.JPEGQuality,
		})

		if cfg.Queue.FaceTaskTopicURL != "" {
			publisher, err := queue.OpenPublisher(ctx, cfg.Queue.FaceTaskTopicURL, cfg.Storage.Timeout)
			if err != nil {
				return err
			}
			defer shutdownPublisher(publisher)
			deps.Dispatcher = dispatcher.New(sources, visionClient(cfg), publisher, m).
				WithSourceBucket(storage.BucketName(cfg.Storage.SourceBucketURL))
		} else {
			slog.Warn("FACE_TASK_TOPIC_URL not set, upload trigger disabled")
		}

		if cfg.Telegram.Token != "" {
			chat := telegram.NewClient(cfg.Telegram.APIURL, cfg.Telegram.Token, cfg.Telegram.Timeout)
			svc, err := bot.New(index, crops, sources, chat, m, bot.Options{
				Language: cfg.Telegram.Language,
				LinkTTL:  cfg.Storage.MediaLinkTTL,
			})
			if err != nil {
				return err
			}
			deps.Bot = svc
		} else {
			slog.Warn("TELEGRAM_BOT_TOKEN not set, webhook disabled")
		}
	} else {
		slog.Warn("SOURCE_BUCKET_URL not set, only the face gateway is served")
	}

	server := web.NewServer(cfg, deps)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("error during shutdown", "error", err)
		}
	}()

	fmt.Printf("Starting Face Index on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

func shutdownPublisher(p *queue.Publisher) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		slog.Warn("publisher shutdown failed", "error", err)
	}
}
