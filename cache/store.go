package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned (wrapped) when the backing store cannot be
// queried or written. Callers should treat it as a miss on read.
var ErrUnavailable = errors.New("cache store unavailable")

// Store is a key/value store for cached payloads.
// It also keeps track of expiration times of cache entries.
//
// Implementations must be thread-safe!
type Store interface {
	// Get returns the stored value for the given key, if it exists.
	// It also returns a boolean indicating whether retrieval was successful.
	// If the entry has expired, the boolean is false
	// (and the store may purge the entry).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores the value under the given key, expiring after ttl.
	// A ttl of zero or less stores an entry that is already expired.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes the entry for the given key.
	// It is a utility method that is not used by the cache middleware.
	Delete(ctx context.Context, key string) error
}

// Sweeper is implemented by stores that can actively purge expired entries.
type Sweeper interface {
	// Sweep removes all expired entries and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// Entry is a stored value along with its expiration time.
type Entry struct {
	Value     []byte
	ExpiresAt time.Time
}

// Expired reports whether the entry must no longer be returned at time now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

func expiresAt(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return now
	}
	return now.Add(ttl)
}
