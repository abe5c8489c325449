package supervisor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/thushan/olla/internal/admin"
	"github.com/thushan/olla/internal/config"
	"github.com/thushan/olla/internal/core/ports"
	"github.com/thushan/olla/internal/logger"
)

const defaultBufferSize = 8 * 1024

// Supervisor owns every configured proxy plus the admin metrics
// surface, and runs them together: a child that fails cancels the rest
// (spec.md §4.6, extended across proxies rather than just within one).
type Supervisor struct {
	proxies []*Proxy
	admin   *admin.Server
	log     *logger.StyledLogger
}

// New builds a Proxy for every proxies[] stanza and one admin server,
// binding every listening socket before returning so a misconfigured
// later proxy never leaves an earlier one half-started.
func New(cfg *config.Config, metrics ports.MetricsSink, log *logger.StyledLogger) (*Supervisor, error) {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	proxies := make([]*Proxy, 0, len(cfg.Proxies))
	for _, pc := range cfg.Proxies {
		p, err := NewProxy(pc, bufferSize, metrics, log)
		if err != nil {
			for _, started := range proxies {
				started.Close()
			}
			return nil, fmt.Errorf("supervisor: proxy %q: %w", pc.Label, err)
		}
		proxies = append(proxies, p)
	}

	interval := cfg.Admin.MetricsIntervalSecs
	if interval <= 0 {
		interval = config.DefaultMetricsInterval
	}

	return &Supervisor{
		proxies: proxies,
		admin:   admin.New(cfg.Admin.Addr, interval, metrics, log),
		log:     log,
	}, nil
}

// Run starts every proxy and the admin server under one errgroup; the
// first failure cancels ctx for all of them and is returned once every
// child has unwound.
func (s *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, p := range s.proxies {
		p := p
		g.Go(func() error { return p.Run(ctx) })
	}
	g.Go(func() error { return s.admin.Run(ctx) })

	return g.Wait()
}
