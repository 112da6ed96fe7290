package routecache

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	serializer "github.com/always-cache/route-cache/pkg/response-serializer"
	saver "github.com/always-cache/route-cache/pkg/response-saver"
	"github.com/always-cache/route-cache/rfc9211"
)

// DownstreamError is returned by the fetch of a route handler that did not
// produce a cacheable response. It carries the response so it can be sent
// to the client as is.
type DownstreamError struct {
	StatusCode int
	// HTTP/1.1 representation of the response, as stored by the cache.
	Response []byte
	// Set if the request was cancelled while the handler ran.
	Err error
}

func (e *DownstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("downstream handler: %v", e.Err)
	}
	return fmt.Sprintf("downstream handler responded with status %d", e.StatusCode)
}

func (e *DownstreamError) Unwrap() error {
	return e.Err
}

// Middleware returns a middleware caching the responses of the handler it
// wraps, using the given route metadata. It is meant to be attached to a
// single route, e.g. with chi:
//
//	r.With(c.Middleware(routecache.WithTTL(2 * time.Minute))).Get("/api/items", listItems)
func (c *Cache) Middleware(opts ...Option) func(http.Handler) http.Handler {
	m := newMetadata(opts)
	return func(next http.Handler) http.Handler {
		return c.handler(next, m)
	}
}

// Handler returns next wrapped by the cache, using the given route metadata.
func (c *Cache) Handler(next http.Handler, opts ...Option) http.Handler {
	return c.handler(next, newMetadata(opts))
}

func (c *Cache) handler(next http.Handler, m Metadata) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ttl := c.Resolve(r, m)
		log := c.logger(r.Context()).With().Str("key", key).Logger()
		fetch := handlerFetch(next, r)

		res, status, err := decodeResult(c.Do(r.Context(), key, ttl, fetch))
		if err != nil && status.IsHit() {
			// a corrupt entry is overwritten with a fresh response
			log.Error().Err(err).Msg("Could not read stored response")
			status = rfc9211.CacheStatus{Key: key, Detail: "corrupt entry"}
			status.Forward(rfc9211.FwdReasonMiss)
			res, status, err = decodeResult(c.miss(r.Context(), key, ttl, fetch, status, log))
		}
		if err != nil {
			log.Error().Err(err).Msg("Could not get response")
			http.Error(w, "Could not get response", http.StatusBadGateway)
			return
		}

		w.Header().Set(rfc9211.HeaderName, status.Value(c.name))
		bytesWritten, err := serializer.Send(w, res)
		if err != nil {
			log.Error().Err(err).Msg("Could not write response body to client")
		}
		c.logRequest(r, status)
		log.Trace().Msgf("Wrote body (%d bytes)", bytesWritten)
	})
}

// decodeResult turns the result of a cache call into the response to send.
// A downstream failure is sent as the handler produced it.
func decodeResult(value []byte, status rfc9211.CacheStatus, err error) (*http.Response, rfc9211.CacheStatus, error) {
	var downErr *DownstreamError
	switch {
	case errors.As(err, &downErr):
		status.FwdStatus = downErr.StatusCode
		value = downErr.Response
	case err != nil:
		return nil, status, err
	case !status.IsHit():
		status.FwdStatus = http.StatusOK
	}
	res, err := serializer.Decode(value)
	return res, status, err
}

// handlerFetch runs the handler against a recorder.
// Only a 200 OK is a successful result.
func handlerFetch(next http.Handler, r *http.Request) Fetch {
	return func(ctx context.Context) ([]byte, error) {
		rw := saver.NewResponseSaver()
		next.ServeHTTP(rw, r.WithContext(ctx))
		response := rw.Response()
		if err := ctx.Err(); err != nil {
			return nil, &DownstreamError{StatusCode: rw.StatusCode(), Response: response, Err: err}
		}
		if rw.StatusCode() != http.StatusOK {
			return nil, &DownstreamError{StatusCode: rw.StatusCode(), Response: response}
		}
		return response, nil
	}
}

func (c *Cache) logRequest(r *http.Request, cs rfc9211.CacheStatus) {
	isHit := 0
	if cs.IsHit() {
		isHit = 1
	}
	c.logger(r.Context()).Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("key", cs.Key).
		Str("status", string(cs.Status)).
		Str("fwd", string(cs.FwdReason)).
		Bool("stored", cs.Stored).
		Int("ttl", cs.TimeToLive).
		Int("hit", isHit).
		Msg("Sending response to client")
}
