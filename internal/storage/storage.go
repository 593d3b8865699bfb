// Package storage abstracts the object store shared by every pipeline stage.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the requested key does not exist.
var ErrNotFound = errors.New("object not found")

// Info describes a stored object as reported by a listing.
type Info struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// Store is the object-store contract. Implementations must make List return
// every object under the prefix regardless of count; pagination is the
// implementation's concern.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Copy(ctx context.Context, src, dst string) error
	Remove(ctx context.Context, key string) error
}
