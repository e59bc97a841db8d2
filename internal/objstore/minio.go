// Package objstore adapts an S3-compatible object store (MinIO, AWS S3) for
// image payload storage.
package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/retouchlab/retouchops/internal/config"
	"github.com/retouchlab/retouchops/internal/domain"
)

// Object is a stored payload with its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// Client stores and retrieves binary payloads by key in a single bucket.
type Client struct {
	mc      *minio.Client
	bucket  string
	timeout time.Duration
}

// New creates a Client from storage configuration.
func New(cfg config.StorageConfig) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return &Client{mc: mc, bucket: cfg.Bucket, timeout: cfg.Timeout}, nil
}

// EnsureBucket creates the bucket if it does not exist yet. Idempotent,
// called once at startup.
func (c *Client) EnsureBucket(ctx context.Context) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w: %w", c.bucket, domain.ErrTransport, err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w: %w", c.bucket, domain.ErrTransport, err)
	}
	return nil
}

// Put writes one payload under key.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	_, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object %s: %w: %w", key, domain.ErrTransport, err)
	}
	return nil
}

// Get reads the payload stored under key. Returns domain.ErrNotFound when
// the key is absent.
func (c *Client) Get(ctx context.Context, key string) (*Object, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w: %w", key, domain.ErrTransport, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key only surfaces on Stat/Read.
	stat, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("stat object %s: %w: %w", key, domain.ErrTransport, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w: %w", key, domain.ErrTransport, err)
	}

	return &Object{Data: data, ContentType: stat.ContentType}, nil
}

// Delete removes the payload stored under key. Deleting an absent key is
// not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	if err := c.mc.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %s: %w: %w", key, domain.ErrTransport, err)
	}
	return nil
}

// PresignedGetURL returns a time-limited direct download URL for key.
func (c *Client) PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	u, err := c.mc.PresignedGetObject(ctx, c.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w: %w", key, domain.ErrTransport, err)
	}
	return u.String(), nil
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
