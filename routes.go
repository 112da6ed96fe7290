package routecache

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// Route declares a cached route. Key and TTL are optional overrides.
type Route struct {
	// HTTP method, GET if empty.
	Method string `yaml:"method"`
	// chi route pattern, e.g. /api/items/{id}
	Path string `yaml:"path"`
	Key  string `yaml:"key"`
	// TTL in seconds.
	TTL int `yaml:"ttl"`
}

// Options returns the cache options declared by the route.
func (rt Route) Options() []Option {
	var opts []Option
	if rt.Key != "" {
		opts = append(opts, WithKey(rt.Key))
	}
	if rt.TTL > 0 {
		opts = append(opts, WithTTL(time.Duration(rt.TTL)*time.Second))
	}
	return opts
}

var routeMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodOptions: {},
}

// Register mounts h on r once for every route, each behind the cache with
// the route's own metadata.
func Register(r chi.Router, c *Cache, routes []Route, h http.Handler) error {
	for _, rt := range routes {
		if rt.Path == "" {
			return fmt.Errorf("route without path")
		}
		method := strings.ToUpper(rt.Method)
		if method == "" {
			method = http.MethodGet
		}
		if _, ok := routeMethods[method]; !ok {
			return fmt.Errorf("route %s: unsupported method %q", rt.Path, rt.Method)
		}
		c.log.Debug().
			Str("method", method).
			Str("path", rt.Path).
			Str("key", rt.Key).
			Int("ttl", rt.TTL).
			Msg("Registering cached route")
		r.With(c.Middleware(rt.Options()...)).Method(method, rt.Path, h)
	}
	return nil
}
