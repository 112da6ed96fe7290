package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// TTLStore is an in-process Store backed by ttlcache, which runs its own
// expiry loop between Start and Stop.
type TTLStore struct {
	c *ttlcache.Cache[string, []byte]
}

// NewTTLStore returns a TTLStore. Reads do not extend an entry's lifetime.
func NewTTLStore() *TTLStore {
	return &TTLStore{
		c: ttlcache.New[string, []byte](
			ttlcache.WithDisableTouchOnHit[string, []byte](),
		),
	}
}

// Start runs the expiry loop. It blocks until Stop is called.
func (t *TTLStore) Start() { t.c.Start() }

// Stop ends the expiry loop.
func (t *TTLStore) Stop() { t.c.Stop() }

func (t *TTLStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	item := t.c.Get(key)
	if item == nil {
		return nil, false, nil
	}
	if item.IsExpired() {
		t.c.Delete(key)
		return nil, false, nil
	}
	return item.Value(), true, nil
}

// Set stores the value. ttlcache treats a zero ttl as "never expires",
// so a ttl of zero or less removes the key instead.
func (t *TTLStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		t.c.Delete(key)
		return nil
	}
	t.c.Set(key, value, ttl)
	return nil
}

func (t *TTLStore) Delete(_ context.Context, key string) error {
	t.c.Delete(key)
	return nil
}

func (t *TTLStore) Sweep(_ context.Context) (int, error) {
	before := t.c.Len()
	t.c.DeleteExpired()
	// concurrent sets can make the difference negative
	if removed := before - t.c.Len(); removed > 0 {
		return removed, nil
	}
	return 0, nil
}
