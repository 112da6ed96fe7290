// Package rfc9211 implements the Cache-Status HTTP response header field
// as defined in RFC 9211.
package rfc9211

import (
	"fmt"
	"strings"
)

// HeaderName is the name of the response header field.
const HeaderName = "Cache-Status"

// DefaultCacheName identifies this cache in the header value.
const DefaultCacheName = "Route-Cache"

type Status string

const (
	StatusHit Status = "hit"
	StatusFwd Status = "fwd"
)

type FwdReason string

const (
	// The cache was configured to not handle this request.
	FwdReasonBypass FwdReason = "bypass"

	// The cache did not contain any responses that matched the
	// request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"

	// The cache did not contain any responses that could be used to
	// satisfy this request (to be used when an implementation cannot
	// distinguish between uri-miss and vary-miss).
	FwdReasonMiss FwdReason = "miss"
)

// CacheStatus describes how the cache handled a single request.
type CacheStatus struct {
	Status    Status
	FwdReason FwdReason
	// Status code of the forwarded response, zero if not forwarded.
	FwdStatus int
	// The response was stored in the cache.
	Stored bool
	// Remaining freshness in seconds for hits, or the lifetime of a stored response.
	TimeToLive int
	// The key the response was looked up with.
	Key    string
	Detail string
}

func (cs *CacheStatus) Hit() {
	cs.Status = StatusHit
	cs.FwdReason = ""
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.Status = StatusFwd
	cs.FwdReason = reason
}

// IsHit reports whether the response was served from the cache.
func (cs CacheStatus) IsHit() bool {
	return cs.Status == StatusHit
}

// Value returns the header field value for the named cache.
func (cs CacheStatus) Value(cacheName string) string {
	params := []string{cacheName}
	switch cs.Status {
	case StatusHit:
		params = append(params, "hit")
	case StatusFwd:
		params = append(params, "fwd="+string(cs.FwdReason))
		if cs.FwdStatus != 0 {
			params = append(params, fmt.Sprintf("fwd-status=%d", cs.FwdStatus))
		}
	}
	if cs.Stored {
		params = append(params, "stored")
	}
	if cs.TimeToLive > 0 {
		params = append(params, fmt.Sprintf("ttl=%d", cs.TimeToLive))
	}
	if cs.Key != "" {
		params = append(params, fmt.Sprintf("key=%q", cs.Key))
	}
	if cs.Detail != "" {
		params = append(params, fmt.Sprintf("detail=%q", cs.Detail))
	}
	return strings.Join(params, "; ")
}

func (cs CacheStatus) String() string {
	return cs.Value(DefaultCacheName)
}
