package cachekey

import (
	"encoding/hex"
	"net/http"

	"lukechampine.com/blake3"
)

const (
	querySeparator = "?"
	// digest length in bytes, i.e. 32 hex characters
	queryDigestSize = 16
)

// CacheKeyer derives cache keys for requests.
type CacheKeyer struct {
	// Include a digest of the query string in default keys,
	// so that different queries to the same path do not collide.
	IncludeQuery bool
}

func NewCacheKeyer(includeQuery bool) CacheKeyer {
	return CacheKeyer{IncludeQuery: includeQuery}
}

// Key returns the cache key for a request.
// A non-empty override is returned as is, regardless of the request.
// Otherwise the key is the request path, optionally followed by the query digest.
func (c CacheKeyer) Key(r *http.Request, override string) string {
	if override != "" {
		return override
	}
	key := r.URL.Path
	if c.IncludeQuery && r.URL.RawQuery != "" {
		key += querySeparator + QueryDigest(r)
	}
	return key
}

// QueryDigest returns a hex BLAKE3 digest of the canonical query string.
// Parameter order does not affect the digest.
func QueryDigest(r *http.Request) string {
	// Encode sorts by key
	canonical := r.URL.Query().Encode()
	sum := blake3.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:queryDigestSize])
}
