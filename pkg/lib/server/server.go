// Package server exposes process metrics and health over HTTP.
package server

import (
	"context"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
)

const (
	shutdownTimeout = 5 * time.Second
	// maxConnections caps concurrent scrapes so a misbehaving scraper
	// cannot starve the search of file descriptors.
	maxConnections = 16
)

// Option applies a configuration option to the given config.
type Option func(s *serverConfig)

func WithAddress(addr string) Option {
	return func(sc *serverConfig) {
		sc.addr = addr
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(sc *serverConfig) {
		sc.logger = logger
	}
}

// WithDebug also serves pprof handlers under /debug/pprof/.
func WithDebug(debug bool) Option {
	return func(sc *serverConfig) {
		sc.debug = debug
	}
}

type serverConfig struct {
	addr   string
	logger logrus.FieldLogger
	debug  bool
}

func (sc *serverConfig) apply(options []Option) {
	for _, o := range options {
		o(sc)
	}
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		addr:   ":8080",
		logger: logrus.StandardLogger(),
	}
}

// Server serves /healthz and /metrics until its context is done.
type Server struct {
	http     *http.Server
	listener net.Listener
	logger   logrus.FieldLogger
}

// Listen binds the configured address.
func Listen(options ...Option) (*Server, error) {
	sc := defaultServerConfig()
	sc.apply(options)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())
	if sc.debug {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	l, err := net.Listen("tcp", sc.addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", sc.addr)
	}
	return &Server{
		http:     &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		listener: netutil.LimitListener(l, maxConnections),
		logger:   sc.logger.WithField("addr", l.Addr().String()),
	}, nil
}

// Addr is the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.http.Serve(s.listener)
	}()
	s.logger.Info("serving metrics")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != http.ErrServerClosed {
		return err
	}
	return nil
}
