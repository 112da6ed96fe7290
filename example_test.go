package routecache_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	routecache "github.com/always-cache/route-cache"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

func Example() {
	logger := zerolog.New(io.Discard)
	c := routecache.New(routecache.Config{Logger: &logger})

	r := chi.NewRouter()
	r.With(c.Middleware(routecache.WithTTL(5*time.Minute))).Get("/hello", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "Hello, %q", r.URL.Path)
	})

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest("GET", "/hello", nil))
		fmt.Println(rr.Body.String())
		fmt.Println(rr.Header().Get("Cache-Status"))
	}
	// Output:
	// Hello, "/hello"
	// Route-Cache; fwd=uri-miss; fwd-status=200; stored; ttl=300; key="/hello"
	// Hello, "/hello"
	// Route-Cache; hit; key="/hello"
}
