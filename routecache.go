// Package routecache is a read-through HTTP response cache.
//
// Caching is opt-in per route: a route declares its cache metadata (key and
// TTL overrides) when it is registered, and the middleware serves stored
// responses for it, invoking the route's handler only on a miss.
package routecache

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/always-cache/route-cache/cache"
	cachekey "github.com/always-cache/route-cache/pkg/cache-key"
	"github.com/always-cache/route-cache/rfc9211"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is used for routes that do not override the TTL.
const DefaultTTL = 3600 * time.Second

type Config struct {
	// Storage for cache entries. An in-memory store is used if nil.
	Store cache.Store
	// TTL for routes without an override. DefaultTTL is used if zero.
	DefaultTTL time.Duration
	// Include a digest of the query string in default keys.
	IncludeQuery bool
	// Let concurrent misses for the same key share one downstream call.
	CollapseMisses bool
	// Cache name used in the Cache-Status header.
	Name string
	// Logger to use. A console logger is used if nil.
	// Request-scoped loggers (see zerolog/hlog) take precedence.
	Logger *zerolog.Logger
	// Registerer for the cache metrics. Metrics are not registered if nil.
	Registerer prometheus.Registerer
}

type Cache struct {
	store      cache.Store
	keyer      cachekey.CacheKeyer
	defaultTTL time.Duration
	name       string
	log        zerolog.Logger
	metrics    *Metrics
	group      *singleflight.Group
}

// Fetch computes the value for a missing key.
// It is called at most once per Do call.
type Fetch func(ctx context.Context) ([]byte, error)

// New creates a Cache from the given config.
func New(config Config) *Cache {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	} else {
		logger = *config.Logger
	}

	c := &Cache{
		store:      config.Store,
		keyer:      cachekey.NewCacheKeyer(config.IncludeQuery),
		defaultTTL: config.DefaultTTL,
		name:       config.Name,
		log:        logger,
		metrics:    NewMetrics("routecache", config.Registerer),
	}
	if c.store == nil {
		c.store = cache.NewMemStore()
	}
	if c.defaultTTL <= 0 {
		c.defaultTTL = DefaultTTL
	}
	if c.name == "" {
		c.name = rfc9211.DefaultCacheName
	}
	if config.CollapseMisses {
		c.group = &singleflight.Group{}
	}
	return c
}

// Metadata holds the cache settings a route declares.
// Empty Key and non-positive TTL mean the defaults apply.
type Metadata struct {
	Key string
	TTL time.Duration
}

type Option func(*Metadata)

// WithKey overrides the cache key of a route.
func WithKey(key string) Option {
	return func(m *Metadata) { m.Key = key }
}

// WithTTL overrides the TTL of a route.
func WithTTL(ttl time.Duration) Option {
	return func(m *Metadata) { m.TTL = ttl }
}

func newMetadata(opts []Option) Metadata {
	var m Metadata
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Resolve returns the cache key and TTL for a request to a route with the given metadata.
func (c *Cache) Resolve(r *http.Request, m Metadata) (string, time.Duration) {
	ttl := m.TTL
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.keyer.Key(r, m.Key), ttl
}

// Do returns the live value stored under key, or calls fetch and stores its
// result for ttl.
//
// A failing store is treated as a miss on read, and a failed write does not
// affect the returned value. An error from fetch is returned unchanged and
// nothing is stored, as is the case when ctx is done by the time fetch returns.
func (c *Cache) Do(ctx context.Context, key string, ttl time.Duration, fetch Fetch) ([]byte, rfc9211.CacheStatus, error) {
	log := c.logger(ctx).With().Str("key", key).Logger()
	status := rfc9211.CacheStatus{Key: key}

	if value, ok := c.lookup(ctx, key, log); ok {
		log.Trace().Msg("Cache hit")
		c.metrics.Lookups.WithLabelValues("hit").Inc()
		status.Hit()
		return value, status, nil
	}
	c.metrics.Lookups.WithLabelValues("miss").Inc()
	status.Forward(rfc9211.FwdReasonUriMiss)
	return c.miss(ctx, key, ttl, fetch, status, log)
}

// miss fetches the value for key and stores it, overwriting any entry.
func (c *Cache) miss(ctx context.Context, key string, ttl time.Duration, fetch Fetch, status rfc9211.CacheStatus, log zerolog.Logger) ([]byte, rfc9211.CacheStatus, error) {
	log.Trace().Msg("Cache miss, fetching")
	res, err := c.collapse(ctx, key, func(ctx context.Context) (filled, error) {
		return c.fill(ctx, key, ttl, fetch, log)
	})
	if err != nil {
		return nil, status, err
	}
	if res.stored {
		status.Stored = true
		status.TimeToLive = int(ttl / time.Second)
	}
	return res.value, status, nil
}

type filled struct {
	value  []byte
	stored bool
}

// fill calls fetch and writes its result to the store.
func (c *Cache) fill(ctx context.Context, key string, ttl time.Duration, fetch Fetch, log zerolog.Logger) (filled, error) {
	start := time.Now()
	value, err := fetch(ctx)
	c.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.DownstreamFailures.Inc()
		log.Debug().Err(err).Msg("Fetch failed, not caching")
		return filled{}, err
	}
	if err := ctx.Err(); err != nil {
		c.metrics.DownstreamFailures.Inc()
		log.Debug().Err(err).Msg("Request cancelled during fetch, not caching")
		return filled{}, err
	}

	// the fetch is complete, so the write is not tied to the request any more
	if err := c.store.Set(context.WithoutCancel(ctx), key, value, ttl); err != nil {
		c.metrics.StoreErrors.WithLabelValues("set").Inc()
		log.Error().Err(err).Msg("Could not write to cache")
		return filled{value: value}, nil
	}
	c.metrics.Stores.Inc()
	log.Trace().Dur("ttl", ttl).Msg("Cache write")
	return filled{value: value, stored: true}, nil
}

func (c *Cache) lookup(ctx context.Context, key string, log zerolog.Logger) ([]byte, bool) {
	value, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.metrics.StoreErrors.WithLabelValues("get").Inc()
		log.Warn().Err(err).Msg("Could not read from cache, treating as miss")
		return nil, false
	}
	return value, ok
}

// collapse calls f, sharing the call with concurrent misses on the same key if
// collapsing is enabled. A caller whose shared call was cancelled on behalf of
// another request fills on its own.
func (c *Cache) collapse(ctx context.Context, key string, f func(context.Context) (filled, error)) (filled, error) {
	if c.group == nil {
		return f(ctx)
	}
	v, err, shared := c.group.Do(key, func() (any, error) {
		return f(ctx)
	})
	if shared && err != nil && ctx.Err() == nil &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return f(ctx)
	}
	if err != nil {
		return filled{}, err
	}
	return v.(filled), nil
}

// logger returns the logger from the context.
// If no logger is found, it will return the cache logger.
func (c *Cache) logger(ctx context.Context) *zerolog.Logger {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &c.log
	}
	return logger
}
