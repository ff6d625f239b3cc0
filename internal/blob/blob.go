// Package blob stores the media bytes of saved lockets.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no object.
var ErrNotFound = errors.New("blob not found")

// Store is a flat key/value object store.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
