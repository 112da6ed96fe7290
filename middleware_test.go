package routecache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestMiddlewareReturnsResponse(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello world"))
	})
	req, err := http.NewRequest("GET", "/", nil)
	if err != nil {
		t.Fatal(err)
	}
	rr := httptest.NewRecorder()

	newTestCache(newRecordingStore(), false).Middleware()(handler).ServeHTTP(rr, req)

	if body, err := io.ReadAll(rr.Result().Body); err != nil || fmt.Sprintf("%s", body) != "Hello world" {
		t.Fatalf("Body is %s", body)
	}
}

func TestMiddlewareReturnsSecondRequestFromCache(t *testing.T) {
	var handleCount int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		w.Write([]byte(`{"data":"fresh"}`))
	})
	req, err := http.NewRequest("GET", "/api/test", nil)
	if err != nil {
		t.Fatal(err)
	}
	rr := httptest.NewRecorder()
	mw := newTestCache(newRecordingStore(), false).Middleware()(handler)

	mw.ServeHTTP(httptest.NewRecorder(), req)
	mw.ServeHTTP(rr, req)

	if handleCount != 1 {
		t.Fatalf("Next handler called %d times", handleCount)
	}
	if body, err := io.ReadAll(rr.Result().Body); err != nil || fmt.Sprintf("%s", body) != `{"data":"fresh"}` {
		t.Fatalf("Body is %s", body)
	}
}

func TestMiddlewareServesStoredValue(t *testing.T) {
	var handleCount int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		w.Write([]byte(`{"data":"fresh"}`))
	})
	store := newRecordingStore()
	store.values["/api/test"] = []byte("HTTP/1.1 200 OK\r\nContent-Length: 17\r\n\r\n{\"data\":\"cached\"}")
	rr := httptest.NewRecorder()

	newTestCache(store, false).Handler(handler).ServeHTTP(rr, httptest.NewRequest("GET", "/api/test", nil))

	if handleCount != 0 {
		t.Fatalf("Next handler called %d times", handleCount)
	}
	if body := rr.Body.String(); body != `{"data":"cached"}` {
		t.Fatalf("Body is %s", body)
	}
}

func TestCacheHeaders(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("content-type", "text/test")
		w.Write([]byte("Hello world"))
	})
	req, err := http.NewRequest("GET", "/", nil)
	if err != nil {
		t.Fatal(err)
	}
	rr := httptest.NewRecorder()
	mw := newTestCache(newRecordingStore(), false).Middleware()(handler)

	mw.ServeHTTP(httptest.NewRecorder(), req)
	mw.ServeHTTP(rr, req)

	if ct := rr.Result().Header.Get("content-type"); ct != "text/test" {
		body, _ := io.ReadAll(rr.Result().Body)
		t.Fatalf("Content-Type header is %s with body %s", ct, body)
	}
}

func TestCacheStatusHeader(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello world"))
	})
	mw := newTestCache(newRecordingStore(), false).Middleware(WithTTL(2 * time.Minute))(handler)

	first := httptest.NewRecorder()
	mw.ServeHTTP(first, httptest.NewRequest("GET", "/", nil))
	second := httptest.NewRecorder()
	mw.ServeHTTP(second, httptest.NewRequest("GET", "/", nil))

	if cs := first.Header().Get("Cache-Status"); cs != `Route-Cache; fwd=uri-miss; fwd-status=200; stored; ttl=120; key="/"` {
		t.Fatalf("First Cache-Status is %s", cs)
	}
	if cs := second.Header().Get("Cache-Status"); cs != `Route-Cache; hit; key="/"` {
		t.Fatalf("Second Cache-Status is %s", cs)
	}
}

func TestOnlyOKIsCached(t *testing.T) {
	for _, status := range []int{http.StatusCreated, http.StatusNotFound, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var handleCount int
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handleCount++
				w.Header().Set("X-Test", "yes")
				w.WriteHeader(status)
				w.Write([]byte("not cacheable"))
			})
			store := newRecordingStore()
			mw := newTestCache(store, false).Middleware()(handler)

			rr := httptest.NewRecorder()
			mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
			mw.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

			if handleCount != 2 {
				t.Fatalf("Next handler called %d times", handleCount)
			}
			if len(store.setCalls()) != 0 {
				t.Fatalf("Store writes are %+v", store.setCalls())
			}
			if rr.Code != status || rr.Body.String() != "not cacheable" || rr.Header().Get("X-Test") != "yes" {
				t.Fatalf("Response is %d %q with headers %v", rr.Code, rr.Body.String(), rr.Header())
			}
			if cs := rr.Header().Get("Cache-Status"); !strings.Contains(cs, fmt.Sprintf("fwd-status=%d", status)) || strings.Contains(cs, "stored") {
				t.Fatalf("Cache-Status is %s", cs)
			}
		})
	}
}

func TestCorruptEntryIsReplaced(t *testing.T) {
	var handleCount int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		w.Write([]byte("fresh"))
	})
	store := newRecordingStore()
	store.values["/"] = []byte("not a response")
	mw := newTestCache(store, false).Middleware()(handler)

	rr := httptest.NewRecorder()
	mw.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if handleCount != 1 || rr.Body.String() != "fresh" {
		t.Fatalf("Handler called %d times, body %q", handleCount, rr.Body.String())
	}
	if cs := rr.Header().Get("Cache-Status"); !strings.Contains(cs, "fwd=miss") || !strings.Contains(cs, `detail="corrupt entry"`) {
		t.Fatalf("Cache-Status is %s", cs)
	}
	if len(store.deletes) != 0 {
		t.Fatalf("Deletes are %v", store.deletes)
	}

	rr = httptest.NewRecorder()
	mw.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if handleCount != 1 || rr.Body.String() != "fresh" {
		t.Fatalf("Replaced entry not served: handler called %d times, body %q", handleCount, rr.Body.String())
	}
}

func TestCancelledRequestIsNotCached(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		w.Write([]byte("too late"))
	})
	store := newRecordingStore()
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)

	newTestCache(store, false).Middleware()(handler).ServeHTTP(httptest.NewRecorder(), req)

	if len(store.setCalls()) != 0 {
		t.Fatalf("Store writes are %+v", store.setCalls())
	}
}

func TestMiddlewareOnChiRoute(t *testing.T) {
	var handleCount int
	c := newTestCache(newRecordingStore(), false)
	r := chi.NewRouter()
	r.With(c.Middleware(WithKey("items"))).Get("/api/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		fmt.Fprintf(w, "item %s", chi.URLParam(r, "id"))
	})

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest("GET", "/api/items/1", nil))
	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest("GET", "/api/items/2", nil))

	if handleCount != 1 {
		t.Fatalf("Next handler called %d times", handleCount)
	}
	// both requests share the overridden key
	if body := second.Body.String(); body != "item 1" {
		t.Fatalf("Body is %s", body)
	}
}
