// Package storage wraps gocloud.dev buckets for the face pipeline: reading
// uploaded sources, writing crops, and issuing short-lived read links.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/memblob"  // mem:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver (AWS, Yandex Object Storage, MinIO)
	"gocloud.dev/gcerrors"
)

// ErrObjectNotFound is returned when a key does not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// Bucket is a named object store with bounded per-call timeouts.
type Bucket struct {
	bucket  *blob.Bucket
	url     string
	timeout time.Duration
}

// Open opens a bucket by gocloud.dev URL, e.g.
// s3://photos?endpoint=https://storage.yandexcloud.net&region=ru-central1,
// gs://photos, file:///var/lib/faces, mem://.
func Open(ctx context.Context, bucketURL string, timeout time.Duration) (*Bucket, error) {
	if bucketURL == "" {
		return nil, errors.New("bucket URL is required")
	}
	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	return &Bucket{bucket: b, url: bucketURL, timeout: orDefault(timeout)}, nil
}

// NewBucket wraps an already opened bucket.
func NewBucket(b *blob.Bucket, timeout time.Duration) *Bucket {
	return &Bucket{bucket: b, timeout: orDefault(timeout)}
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}

// BucketName extracts the bucket name from a gocloud.dev bucket URL: the host
// for object stores, the last path element for file:// URLs. It returns ""
// when the URL names no bucket.
func BucketName(bucketURL string) string {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return ""
	}
	if u.Scheme == "file" {
		if base := path.Base(u.Path); base != "/" && base != "." {
			return base
		}
		return ""
	}
	return u.Host
}

// Get reads a whole object.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	data, err := b.bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, mapErr(err))
	}
	return data, nil
}

// Put writes a whole object with the given content type.
func (b *Bucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	opts := &blob.WriterOptions{ContentType: contentType}
	if err := b.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return fmt.Errorf("write %s: %w", key, mapErr(err))
	}
	return nil
}

// SignedURL issues a fresh GET link valid for ttl. Links are never cached.
func (b *Bucket) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	u, err := b.bucket.SignedURL(ctx, key, &blob.SignedURLOptions{
		Expiry: ttl,
		Method: http.MethodGet,
	})
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", key, mapErr(err))
	}
	return u, nil
}

// Exists reports whether key is present.
func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	ok, err := b.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return ok, nil
}

// Delete removes an object.
func (b *Bucket) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.bucket.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, mapErr(err))
	}
	return nil
}

// Object describes one listed object.
type Object struct {
	Key     string
	ModTime time.Time
	Size    int64
}

// Walk calls fn for every object with the given prefix. The listing itself is
// not bounded by the per-call timeout, each page request is.
func (b *Bucket) Walk(ctx context.Context, prefix string, fn func(obj Object) error) error {
	it := b.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		pageCtx, cancel := context.WithTimeout(ctx, b.timeout)
		obj, err := it.Next(pageCtx)
		cancel()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("list %q: %w", prefix, err)
		}
		if obj.IsDir {
			continue
		}
		if err := fn(Object{Key: obj.Key, ModTime: obj.ModTime, Size: obj.Size}); err != nil {
			return err
		}
	}
}

// Close releases the bucket.
func (b *Bucket) Close() error {
	if err := b.bucket.Close(); err != nil {
		return fmt.Errorf("close bucket: %w", err)
	}
	return nil
}

func mapErr(err error) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
	}
	return err
}
