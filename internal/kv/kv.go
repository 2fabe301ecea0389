// Package kv abstracts the durable key-value store the queue and
// idempotency services rely on for cross-process state and mutual
// exclusion. The core never assumes server-side scripting beyond
// SetIfAbsent, so every backend only needs to implement that atomically.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key does not exist or has expired.
var ErrNotFound = errors.New("kv: key not found")

// Store is the minimum capability set every backend must provide.
type Store interface {
	// Set stores value under key. ttl of zero means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get retrieves the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Del removes key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// SetIfAbsent atomically stores value under key only if key does not
	// already exist, returning true if the write happened.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Keys returns every key matching a prefix pattern. Implementations are
	// not required to support full glob syntax beyond a trailing "*".
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Ping checks connectivity/liveness of the backend.
	Ping(ctx context.Context) error
}
