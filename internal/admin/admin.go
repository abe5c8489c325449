// Package admin serves the metrics registry over HTTP: a single
// /metrics endpoint refreshed on a ticker rather than per-request
// (spec.md §6's "periodic aggregator-drain"; the HTTP listener itself
// is the external collaborator spec.md §1 calls out, recovered here
// from original_source's "metrics-export HTTP listener" since nothing
// in the core depends on this package existing).
package admin

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/thushan/olla/internal/core/ports"
	"github.com/thushan/olla/internal/logger"
)

// Server periodically snapshots a ports.MetricsSink into the
// Prometheus text format and serves the cached snapshot.
type Server struct {
	addr     string
	interval time.Duration
	sink     ports.MetricsSink
	log      *logger.StyledLogger

	httpServer *http.Server

	mu       sync.RWMutex
	snapshot []byte
}

// New builds an admin Server; it does nothing until Run is called.
func New(addr string, interval time.Duration, sink ports.MetricsSink, log *logger.StyledLogger) *Server {
	s := &Server{addr: addr, interval: interval, sink: sink, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.serveMetrics)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) serveMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	body := s.snapshot
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write(body)
}

func (s *Server) drain() {
	body, err := s.sink.Gather()
	if err != nil {
		s.log.Warn("metrics gather failed", "error", err)
		return
	}
	s.mu.Lock()
	s.snapshot = body
	s.mu.Unlock()
}

// Run drains the metrics registry immediately, then every interval,
// and serves the admin HTTP listener until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.drain()

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return s.httpServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		case <-ticker.C:
			s.drain()
		}
	}
}
