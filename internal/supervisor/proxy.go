// Package supervisor composes one proxy's resolver, balancer, acceptors
// and connector into a single managed activity, and runs every
// configured proxy together until any child fails (spec.md §4.6).
package supervisor

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thushan/olla/internal/adapter/balancer"
	"github.com/thushan/olla/internal/adapter/forwarder"
	"github.com/thushan/olla/internal/config"
	"github.com/thushan/olla/internal/core/domain"
	"github.com/thushan/olla/internal/core/ports"
	"github.com/thushan/olla/internal/logger"
)

// Proxy is one fully-wired (resolver, balancer, acceptor-set, connector)
// tuple. It tracks its own set of running child activities; a child
// that fails terminates the proxy with that error (spec.md §4.6).
type Proxy struct {
	label     string
	resolver  ports.Resolver
	balancer  *balancer.Balancer
	acceptors []ports.Acceptor
	forwarder ports.Forwarder
	metrics   ports.MetricsSink
	log       *logger.StyledLogger
}

// NewProxy builds a Proxy's fixed components from its configuration,
// binding every listening socket it names. Call Run to start polling,
// reconciliation and accept loops.
func NewProxy(cfg config.ProxyConfig, bufferSize int, metrics ports.MetricsSink, log *logger.StyledLogger) (*Proxy, error) {
	resolver := newResolver(cfg, metrics, log)

	conn, err := newConnector(cfg.Client)
	if err != nil {
		return nil, err
	}

	failureThreshold := cfg.Balancer.FailureThreshold
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	cooldown := cfg.Balancer.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	bal := balancer.New(cfg.Label, conn, metrics, log, cfg.MaxWaiters, failureThreshold, cooldown)

	acceptors, err := newAcceptors(cfg)
	if err != nil {
		return nil, err
	}

	return &Proxy{
		label:     cfg.Label,
		resolver:  resolver,
		balancer:  bal,
		acceptors: acceptors,
		forwarder: forwarder.New(bufferSize),
		metrics:   metrics,
		log:       log,
	}, nil
}

// Close releases every listening socket this proxy bound. Used to
// unwind a partially-constructed supervisor when a later proxy in the
// configuration fails to build.
func (p *Proxy) Close() {
	for _, a := range p.acceptors {
		_ = a.Close()
	}
}

// Run starts every child activity (resolver polling, balancer
// reconciliation, one accept loop per listener) under an errgroup: the
// first child error cancels the rest and is returned.
func (p *Proxy) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return p.resolver.Run(ctx) })
	g.Go(func() error { return p.balancer.Run(ctx, p.resolver.Updates()) })

	for _, a := range p.acceptors {
		a := a
		g.Go(func() error { return p.acceptLoop(ctx, a) })
	}

	return g.Wait()
}

// acceptLoop accepts downstream connections from one listener and
// hands each to its own forwarding session; per-session errors are
// absorbed (spec.md §4.5) and never escalate to the proxy's errgroup.
func (p *Proxy) acceptLoop(ctx context.Context, a ports.Acceptor) error {
	defer a.Close()
	for {
		downstream, err := a.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var handshakeErr *domain.HandshakeFailedError
			if errors.As(err, &handshakeErr) {
				p.log.WarnWithProxy("handshake failed, connection discarded", p.label, "error", err)
				continue
			}
			return err
		}
		go p.serveSession(ctx, downstream)
	}
}

func (p *Proxy) serveSession(ctx context.Context, downstream net.Conn) {
	res, err := p.balancer.Connect(ctx, downstream)
	if err != nil {
		p.log.WarnWithProxy("session rejected, no upstream available", p.label, "error", err)
		_ = downstream.Close()
		return
	}

	start := time.Now()
	bytesIn, bytesOut, err := p.forwarder.Forward(ctx, downstream, res.Upstream)
	if err != nil {
		p.log.WarnWithProxy("session ended with error", p.label, "error", err)
	}
	addr := ""
	if res.Addr != nil {
		addr = res.Addr.String()
		p.balancer.SessionEnded(res.Addr)
	}
	p.metrics.RecordSessionClosed(p.label, addr, bytesIn, bytesOut, time.Since(start))
}
