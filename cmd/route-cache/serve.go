package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	routecache "github.com/always-cache/route-cache"
	"github.com/always-cache/route-cache/cache"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type serveFlags struct {
	configFilename  string
	origin          string
	host            string
	port            int
	dbFilename      string
	verbosityTrace  bool
	logFilename     string
	shutdownTimeout time.Duration
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the caching reverse proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := getConfig(flags.configFilename)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			// flags override the config file
			if cmd.Flags().Changed("origin") {
				config.Origin = flags.origin
			}
			if cmd.Flags().Changed("host") {
				config.Host = flags.host
			}
			if cmd.Flags().Changed("port") {
				config.Port = flags.port
			}
			if cmd.Flags().Changed("db") {
				config.DB = flags.dbFilename
			}
			if err := setupLogging(flags.verbosityTrace, flags.logFilename); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config, flags.shutdownTimeout)
		},
	}

	cmd.Flags().StringVarP(&flags.configFilename, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&flags.origin, "origin", "", "Origin URL to proxy to (overrides config)")
	cmd.Flags().StringVar(&flags.host, "host", "", "Hostname of origin (overrides config)")
	cmd.Flags().IntVar(&flags.port, "port", 8080, "Port to listen on (overrides config)")
	cmd.Flags().StringVar(&flags.dbFilename, "db", "cache.db", "Cache DB file name ('memory' or 'ttlcache' for in-process stores)")
	cmd.Flags().BoolVar(&flags.verbosityTrace, "vv", false, "Verbosity: trace logging")
	cmd.Flags().StringVar(&flags.logFilename, "log-file", "", "Log file to use (in addition to stdout)")
	cmd.Flags().DurationVar(&flags.shutdownTimeout, "shutdown-timeout", 10*time.Second, "Time to wait for requests in flight on shutdown")
	return cmd
}

// setupLogging configures the global logger: console output to stdout,
// plus the log file if specified.
func setupLogging(trace bool, logFilename string) error {
	logLevel := zerolog.DebugLevel
	if trace {
		logLevel = zerolog.TraceLevel
	}

	logOutputs := []io.Writer{zerolog.ConsoleWriter{Out: os.Stdout}}
	if logFilename != "" {
		logFileOutput, err := os.OpenFile(logFilename, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logOutputs = append(logOutputs, logFileOutput)
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(logOutputs...)).
		Level(logLevel).
		With().Timestamp().Str("version", version).Logger()
	return nil
}

// openStore returns the store for the db setting, and a function to release it.
func openStore(db string) (cache.Store, func(), error) {
	switch db {
	case "memory":
		return cache.NewMemStore(), func() {}, nil
	case "ttlcache":
		s := cache.NewTTLStore()
		go s.Start()
		return s, s.Stop, nil
	case ":memory:":
		db = cache.MemoryDSN
	}
	s, err := cache.NewSQLiteStore(db)
	if err != nil {
		return nil, nil, err
	}
	return s, func() {
		if err := s.Close(); err != nil {
			log.Error().Err(err).Msg("Could not close cache DB")
		}
	}, nil
}

func serve(ctx context.Context, config Config, shutdownTimeout time.Duration) error {
	if config.Origin == "" {
		return errors.New("please specify origin")
	}
	originURL, err := url.Parse(config.Origin)
	if err != nil {
		return fmt.Errorf("parse origin: %w", err)
	}

	store, closeStore, err := openStore(config.DB)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := routecache.New(routecache.Config{
		Store:          store,
		DefaultTTL:     time.Duration(config.DefaultTTL) * time.Second,
		IncludeQuery:   config.IncludeQuery,
		CollapseMisses: config.CollapseMisses,
		Logger:         &log.Logger,
		Registerer:     reg,
	})

	if sweeper, ok := store.(cache.Sweeper); ok && config.SweepInterval > 0 {
		go cache.RunJanitor(ctx, sweeper, time.Duration(config.SweepInterval)*time.Second, log.Logger)
	}

	proxy := newReverseProxy(originURL, config.Host)

	r, err := newRouter(c, config.Routes, proxy, reg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: r,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("Proxying port %v to %s (with hostname '%s')", config.Port, originURL.String(), config.Host)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRouter mounts the cached routes and the metrics endpoint.
// Everything else goes to the proxy, bypassing the cache.
func newRouter(c *routecache.Cache, routes []routecache.Route, proxy http.Handler, reg *prometheus.Registry) (chi.Router, error) {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("")
	}))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := routecache.Register(r, c, routes, proxy); err != nil {
		return nil, err
	}
	r.NotFound(proxy.ServeHTTP)
	r.MethodNotAllowed(proxy.ServeHTTP)
	return r, nil
}

// newReverseProxy returns a proxy to the origin.
// If host is set, it is used as the Host header and TLS server name.
func newReverseProxy(origin *url.URL, host string) *httputil.ReverseProxy {
	hostHeader := origin.Host
	transport := http.DefaultTransport
	if host != "" {
		hostHeader = host
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				ServerName: host,
			},
		}
	}
	return &httputil.ReverseProxy{
		Director:  createDirector(origin.Scheme, origin.Host, hostHeader),
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			hlog.FromRequest(r).Error().Err(err).Msg("Could not reach origin")
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}

func createDirector(scheme, host, hostHeader string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
		if hostHeader != "" {
			req.Host = hostHeader
		}
	}
}
