package cmd

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kozaktomas/face-index/internal/database/mock"
	"github.com/kozaktomas/face-index/internal/faces"
	"github.com/kozaktomas/face-index/internal/storage"
	"gocloud.dev/blob/memblob"
)

func seedCrops(t *testing.T, b *storage.Bucket, keys ...string) {
	t.Helper()
	for _, key := range keys {
		if err := b.Put(context.Background(), key, []byte("jpeg"), "image/jpeg"); err != nil {
			t.Fatalf("seeding %s: %v", key, err)
		}
	}
}

// later reports a clock an hour ahead so freshly seeded crops count as old.
func later() time.Time { return time.Now().Add(time.Hour) }

func TestOrphanScan(t *testing.T) {
	indexed := faces.NewKey()
	orphan1 := faces.NewKey()
	orphan2 := faces.NewKey()

	newFixture := func(t *testing.T) (*storage.Bucket, *mock.MockFaceIndex) {
		t.Helper()
		bucket := storage.NewBucket(memblob.OpenBucket(nil), time.Second)
		t.Cleanup(func() { _ = bucket.Close() })
		seedCrops(t, bucket, indexed, orphan1, orphan2, "face_not-a-uuid", "thumbnails/other.jpg")

		index := mock.NewMockFaceIndex()
		index.AddRow(faces.IndexRow{FaceKey: indexed, OriginalKey: "photos/a.jpg", CreatedAt: time.Now()})
		return bucket, index
	}

	t.Run("lists orphans without deleting", func(t *testing.T) {
		bucket, index := newFixture(t)
		var progress atomic.Int32
		scan := &orphanScan{store: bucket, index: index, concurrency: 2, minAge: time.Minute, now: later, onProgress: func() { progress.Add(1) }}

		keys, err := scan.listKeys(context.Background())
		if err != nil {
			t.Fatalf("listKeys: %v", err)
		}
		if len(keys) != 3 {
			t.Fatalf("expected 3 well-formed keys, got %d: %v", len(keys), keys)
		}

		result := scan.check(context.Background(), keys)
		if result.Scanned != 3 {
			t.Errorf("expected 3 scanned, got %d", result.Scanned)
		}
		if len(result.Orphans) != 2 {
			t.Fatalf("expected 2 orphans, got %v", result.Orphans)
		}
		if result.Deleted != 0 {
			t.Errorf("expected nothing deleted, got %d", result.Deleted)
		}
		if progress.Load() != 3 {
			t.Errorf("expected 3 progress ticks, got %d", progress.Load())
		}
		if ok, _ := bucket.Exists(context.Background(), orphan1); !ok {
			t.Error("orphan should still exist")
		}
	})

	t.Run("deletes orphans", func(t *testing.T) {
		bucket, index := newFixture(t)
		scan := &orphanScan{store: bucket, index: index, concurrency: 4, delete: true, minAge: time.Minute, now: later}

		keys, err := scan.listKeys(context.Background())
		if err != nil {
			t.Fatalf("listKeys: %v", err)
		}
		result := scan.check(context.Background(), keys)
		if result.Deleted != 2 {
			t.Errorf("expected 2 deleted, got %d", result.Deleted)
		}
		for _, key := range []string{orphan1, orphan2} {
			if ok, _ := bucket.Exists(context.Background(), key); ok {
				t.Errorf("%s should be deleted", key)
			}
		}
		if ok, _ := bucket.Exists(context.Background(), indexed); !ok {
			t.Error("indexed crop must be kept")
		}
	})

	t.Run("index errors are counted, not treated as orphans", func(t *testing.T) {
		bucket, index := newFixture(t)
		index.GetError = errors.New("connection refused")
		scan := &orphanScan{store: bucket, index: index, concurrency: 1, delete: true, minAge: time.Minute, now: later}

		keys, err := scan.listKeys(context.Background())
		if err != nil {
			t.Fatalf("listKeys: %v", err)
		}
		result := scan.check(context.Background(), keys)
		if result.Errors != 3 {
			t.Errorf("expected 3 errors, got %d", result.Errors)
		}
		if len(result.Orphans) != 0 || result.Deleted != 0 {
			t.Errorf("expected no orphans, got %+v", result)
		}
	})

	t.Run("recent unindexed crop survives delete", func(t *testing.T) {
		bucket, index := newFixture(t)
		scan := &orphanScan{store: bucket, index: index, concurrency: 2, delete: true, minAge: 10 * time.Minute}

		keys, err := scan.listKeys(context.Background())
		if err != nil {
			t.Fatalf("listKeys: %v", err)
		}
		if len(keys) != 0 {
			t.Fatalf("expected no keys old enough to check, got %v", keys)
		}
		result := scan.check(context.Background(), keys)
		if result.SkippedRecent != 3 {
			t.Errorf("expected 3 recent crops skipped, got %d", result.SkippedRecent)
		}
		if result.Deleted != 0 {
			t.Errorf("expected nothing deleted, got %d", result.Deleted)
		}

		// The worker finishing its index insert now must find its crop in place.
		if err := index.Insert(context.Background(), orphan1, "photos/b.jpg"); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if ok, _ := bucket.Exists(context.Background(), orphan1); !ok {
			t.Error("indexed crop was deleted while its row was pending")
		}
	})
}
