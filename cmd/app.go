package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/face-index/internal/config"
	"github.com/kozaktomas/face-index/internal/database"
	"github.com/kozaktomas/face-index/internal/database/postgres"
	"github.com/kozaktomas/face-index/internal/metrics"
	"github.com/kozaktomas/face-index/internal/storage"
	"github.com/kozaktomas/face-index/internal/vision"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openIndex connects to PostgreSQL, applies migrations and returns the
// instrumented face index. The caller closes the pool.
func openIndex(cfg *config.Config, m *metrics.Metrics) (*postgres.Pool, database.FaceWriter, error) {
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required")
	}
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	var index database.FaceWriter = postgres.NewFaceRepository(pool, cfg.Database.Timeout)
	if m != nil {
		index = database.NewInstrumented(index, m)
	}
	return pool, index, nil
}

func openBucket(ctx context.Context, envName, bucketURL string, cfg *config.Config) (*storage.Bucket, error) {
	if bucketURL == "" {
		return nil, fmt.Errorf("%s environment variable is required", envName)
	}
	b, err := storage.Open(ctx, bucketURL, cfg.Storage.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", envName, err)
	}
	return b, nil
}

func openSourceBucket(ctx context.Context, cfg *config.Config) (*storage.Bucket, error) {
	return openBucket(ctx, "SOURCE_BUCKET_URL", cfg.Storage.SourceBucketURL, cfg)
}

func openFacesBucket(ctx context.Context, cfg *config.Config) (*storage.Bucket, error) {
	return openBucket(ctx, "FACES_BUCKET_URL", cfg.Storage.FacesBucketURL, cfg)
}

func visionClient(cfg *config.Config) *vision.Client {
	return vision.NewClient(cfg.Vision.URL, cfg.Vision.FolderID, cfg.Vision.Timeout)
}

// configuredCredential is the detection credential used when an event
// carries none.
func configuredCredential(cfg *config.Config) vision.Credential {
	return vision.Credential{AccessToken: cfg.Vision.Token, TokenType: cfg.Vision.TokenType}
}

func closeQuietly(name string, close func() error) {
	if err := close(); err != nil {
		slog.Warn("close failed", "resource", name, "error", err)
	}
}
