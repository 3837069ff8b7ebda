package storage

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strings"
	"testing"
	"time"

	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"
)

func TestBucket_PutGet(t *testing.T) {
	ctx := context.Background()
	b := NewBucket(memblob.OpenBucket(nil), time.Second)
	defer b.Close()

	if err := b.Put(ctx, "face_1.jpeg", []byte("jpeg-bytes"), "image/jpeg"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := b.Get(ctx, "face_1.jpeg")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "jpeg-bytes" {
		t.Errorf("expected 'jpeg-bytes', got %q", got)
	}

	ok, err := b.Exists(ctx, "face_1.jpeg")
	if err != nil || !ok {
		t.Errorf("expected object to exist, got %v, %v", ok, err)
	}
}

func TestBucket_GetMissing(t *testing.T) {
	b := NewBucket(memblob.OpenBucket(nil), time.Second)
	defer b.Close()

	_, err := b.Get(context.Background(), "nope")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestBucket_WalkAndDelete(t *testing.T) {
	ctx := context.Background()
	b := NewBucket(memblob.OpenBucket(nil), time.Second)
	defer b.Close()

	for _, key := range []string{"face_a.jpeg", "face_b.jpeg", "other.txt"} {
		if err := b.Put(ctx, key, []byte("x"), "application/octet-stream"); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
	}

	var keys []string
	before := time.Now().Add(-time.Minute)
	err := b.Walk(ctx, "face_", func(obj Object) error {
		keys = append(keys, obj.Key)
		if obj.Size != 1 {
			t.Errorf("%s: expected size 1, got %d", obj.Key, obj.Size)
		}
		if obj.ModTime.Before(before) {
			t.Errorf("%s: unexpected modification time %v", obj.Key, obj.ModTime)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	slices.Sort(keys)
	if !slices.Equal(keys, []string{"face_a.jpeg", "face_b.jpeg"}) {
		t.Errorf("unexpected keys %v", keys)
	}

	if err := b.Delete(ctx, "face_a.jpeg"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if ok, _ := b.Exists(ctx, "face_a.jpeg"); ok {
		t.Error("expected face_a.jpeg to be gone")
	}
}

func TestBucket_WalkStopsOnError(t *testing.T) {
	ctx := context.Background()
	b := NewBucket(memblob.OpenBucket(nil), time.Second)
	defer b.Close()
	_ = b.Put(ctx, "face_a.jpeg", []byte("x"), "image/jpeg")

	stop := errors.New("stop")
	if err := b.Walk(ctx, "", func(Object) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("expected callback error, got %v", err)
	}
}

func TestBucket_SignedURL(t *testing.T) {
	ctx := context.Background()
	base, _ := url.Parse("http://files.example.test/signed")
	signer := fileblob.NewURLSignerHMAC(base, []byte("test-secret"))

	fb, err := fileblob.OpenBucket(t.TempDir(), &fileblob.Options{URLSigner: signer})
	if err != nil {
		t.Fatalf("open fileblob: %v", err)
	}
	b := NewBucket(fb, time.Second)
	defer b.Close()

	if err := b.Put(ctx, "img1.jpg", []byte("x"), "image/jpeg"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	first, err := b.SignedURL(ctx, "img1.jpg", time.Minute)
	if err != nil {
		t.Fatalf("SignedURL failed: %v", err)
	}
	if !strings.HasPrefix(first, base.String()) {
		t.Errorf("expected URL under %s, got %s", base, first)
	}

	parsed, err := url.Parse(first)
	if err != nil {
		t.Fatalf("parse signed URL: %v", err)
	}
	key, err := signer.KeyFromURL(ctx, parsed)
	if err != nil {
		t.Fatalf("signature did not verify: %v", err)
	}
	if key != "img1.jpg" {
		t.Errorf("expected key img1.jpg, got %s", key)
	}
}

func TestBucketName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"s3://photos?endpoint=https://storage.yandexcloud.net&region=ru-central1", "photos"},
		{"gs://faces-bucket", "faces-bucket"},
		{"file:///var/lib/face-index/photos", "photos"},
		{"mem://", ""},
		{"://broken", ""},
	}
	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			if got := BucketName(tc.url); got != tc.want {
				t.Errorf("BucketName(%q) = %q, want %q", tc.url, got, tc.want)
			}
		})
	}
}
