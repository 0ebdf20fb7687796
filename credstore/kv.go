package credstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a KV when the key holds no value.
var ErrNotFound = errors.New("key not found")

// KV is the minimal durable key-value surface the store needs. Values are
// JSON-serialized strings. Implementations must survive process restarts;
// they need no extra concurrency control because all writers go through the
// single session manager instance.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
