// Package cache provides the key-value store abstraction used for
// CAPTCHA challenges and the per-user session mirror. The two concerns
// are injected as separate Cache instances so their backing stores can
// be split without touching callers.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss indicates the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache describes the operations the authentication core needs from a
// key-value store with per-key expiry.
type Cache interface {
	// Get returns the value stored under key, or ErrMiss.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes the given keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// CompareAndDelete removes key only if its current value equals
	// expected, atomically with respect to other callers. It reports
	// whether the delete happened; a missing key yields (false, nil).
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}
