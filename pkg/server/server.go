// Package server exposes the progress of a running await as JSON and
// Prometheus metrics over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/kylerisse/aemawait/pkg/check"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultRateLimit is the sustained number of requests per second served.
	DefaultRateLimit = 50

	// DefaultRateBurst is the number of requests served above the rate limit.
	DefaultRateBurst = 100
)

// Source provides the progress being served. *check.Runner implements it.
type Source interface {
	Snapshots() []check.ProgressSnapshot
	RunningTime() time.Duration
	Aborted() bool
	AbortCause() error
}

var _ Source = (*check.Runner)(nil)

// Server serves the status endpoint for a Source.
type Server struct {
	source   Source
	logger   *logrus.Logger
	gatherer prometheus.Gatherer
	limiter  *rate.Limiter

	srv      *http.Server
	listener net.Listener
}

// Option is a functional option for configuring a Server.
type Option func(*Server) error

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithGatherer sets where /metrics reads collectors from.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) error {
		if g == nil {
			return fmt.Errorf("gatherer must not be nil")
		}
		s.gatherer = g
		return nil
	}
}

// WithRateLimit bounds the requests served per second.
func WithRateLimit(limit float64, burst int) Option {
	return func(s *Server) error {
		if limit <= 0 || burst < 1 {
			return fmt.Errorf("invalid rate limit %v/%d", limit, burst)
		}
		s.limiter = rate.NewLimiter(rate.Limit(limit), burst)
		return nil
	}
}

// New creates a Server for src.
func New(src Source, opts ...Option) (*Server, error) {
	if src == nil {
		return nil, fmt.Errorf("server: source must not be nil")
	}
	s := &Server{
		source:   src,
		logger:   logrus.StandardLogger(),
		gatherer: prometheus.DefaultGatherer,
		limiter:  rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateBurst),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
	}
	return s, nil
}

// Start listens on addr and serves in the background until Shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Infof("Serving status on %s", ln.Addr())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("Status server failed: %v", err)
		}
	}()
	return nil
}

// Addr returns the address listened on, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops serving, waiting for active requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
