package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kozaktomas/face-index/internal/config"
	"github.com/kozaktomas/face-index/internal/cropper"
	"github.com/kozaktomas/face-index/internal/dispatcher"
	"github.com/kozaktomas/face-index/internal/metrics"
	"github.com/kozaktomas/face-index/internal/queue"
	"github.com/kozaktomas/face-index/internal/storage"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a long-lived queue consumer",
	Long: `Run one pipeline stage as a queue consumer.

Messages are acknowledged when they succeed or are dropped as invalid, and
handed back for redelivery on retryable failures. Stop with Ctrl+C; no new
messages are received and in-flight messages get up to 30 seconds to finish.`,
}

var workerDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Consume upload events and publish face tasks",
	RunE:  runWorkerDispatch,
}

var workerCropCmd = &cobra.Command{
	Use:   "crop",
	Short: "Consume face tasks and store indexed crops",
	RunE:  runWorkerCrop,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.AddCommand(workerDispatchCmd)
	workerCmd.AddCommand(workerCropCmd)

	workerCmd.PersistentFlags().Int("concurrency", 0, "Parallel handlers (overrides WORKER_CONCURRENCY)")
	workerCmd.PersistentFlags().String("metrics-addr", "", "Serve /metrics on this address, e.g. :9090")
}

func workerConcurrency(cmd *cobra.Command, cfg *config.Config) int {
	if n, err := cmd.Flags().GetInt("concurrency"); err == nil && n > 0 {
		return n
	}
	return cfg.Queue.WorkerConcurrency
}

// serveMetrics exposes the registry until ctx is done.
func serveMetrics(ctx context.Context, cmd *cobra.Command, m *metrics.Metrics) {
	addr, err := cmd.Flags().GetString("metrics-addr")
	if err != nil || addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func runConsumer(ctx context.Context, subscriptionURL, envName string, concurrency int, h queue.Handler) error {
	if subscriptionURL == "" {
		return fmt.Errorf("%s environment variable is required", envName)
	}
	consumer, err := queue.OpenConsumer(ctx, subscriptionURL, concurrency)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := consumer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("subscription shutdown failed", "error", err)
		}
	}()

	slog.Info("consumer started", "subscription", subscriptionURL, "concurrency", concurrency)
	if err := consumer.Run(ctx, h); err != nil {
		return err
	}
	slog.Info("consumer stopped")
	return nil
}

func runWorkerDispatch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx, stop := signalContext()
	defer stop()

	m := metrics.New()
	serveMetrics(ctx, cmd, m)

	sources, err := openSourceBucket(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQuietly("source bucket", sources.Close)

	if cfg.Queue.FaceTaskTopicURL == "" {
		return errors.New("FACE_TASK_TOPIC_URL environment variable is required")
	}
	publisher, err := queue.OpenPublisher(ctx, cfg.Queue.FaceTaskTopicURL, cfg.Storage.Timeout)
	if err != nil {
		return err
	}
	defer shutdownPublisher(publisher)

	d := dispatcher.New(sources, visionClient(cfg), publisher, m).
		WithSourceBucket(storage.BucketName(cfg.Storage.SourceBucketURL))
	return runConsumer(ctx, cfg.Queue.UploadSubscriptionURL, "UPLOAD_SUBSCRIPTION_URL",
		workerConcurrency(cmd, cfg), d.QueueHandler(configuredCredential(cfg)))
}

func runWorkerCrop(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx, stop := signalContext()
	defer stop()

	m := metrics.New()
	serveMetrics(ctx, cmd, m)

	pool, index, err := openIndex(cfg, m)
	if err != nil {
		return err
	}
	defer closeQuietly("database", pool.Close)

	sources, err := openSourceBucket(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQuietly("source bucket", sources.Close)

	crops, err := openFacesBucket(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQuietly("faces bucket", crops.Close)

	w := cropper.New(sources, crops, index, m, cropper.Options{
		LinkTTL:     cfg.Storage.SourceLinkTTL,
		JPEGQuality: cfg.Crop.JPEGQuality,
	})
	return runConsumer(ctx, cfg.Queue.FaceTaskSubscriptionURL, "FACE_TASK_SUBSCRIPTION_URL",
		workerConcurrency(cmd, cfg), w.QueueHandler())
}
