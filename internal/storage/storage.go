// Package storage defines the blob store used by the media pipeline and an
// in-memory implementation for development and tests.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a bucket/key pair holds no object.
var ErrNotFound = errors.New("object not found")

// BlobStore is path-addressed binary storage split into buckets.
type BlobStore interface {
	// Put stores data under bucket/key and returns the stored key.
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
	// Get returns the bytes stored under bucket/key.
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// Remove deletes every listed key. Missing keys are not an error.
	Remove(ctx context.Context, bucket string, keys []string) error
	// PublicURL returns a URL clients can fetch the object from.
	PublicURL(ctx context.Context, bucket, key string) (string, error)
}
