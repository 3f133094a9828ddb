package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key holds no value
var ErrNotFound = errors.New("store: key not found")

// Store is the persistent key-value configuration store. It holds selector
// configs, the image classification cache and operator toggles.
type Store interface {
	// Get retrieves a value, returning ErrNotFound when absent
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value without expiration
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a value; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Close releases the backend connection
	Close() error
}
