// ABOUTME: Store contract for persisting chat-network session credentials.
// ABOUTME: Pure key-value load/save of opaque blobs; implementations own durability.

package credstore

import (
	"context"
	"errors"
)

// ErrNotFound indicates no credential blob exists for the requested key.
var ErrNotFound = errors.New("credentials not found")

// Store persists opaque credential blobs keyed by name.
// Save overwrites any existing blob for the key.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Close() error
}
