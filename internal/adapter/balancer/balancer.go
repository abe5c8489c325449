package balancer

import (
	"context"
	"net"
	"time"

	"github.com/thushan/olla/internal/core/domain"
	"github.com/thushan/olla/internal/core/ports"
	"github.com/thushan/olla/internal/logger"
)

const cooldownPollInterval = 1 * time.Second

// Balancer ties the endpoint state table, weighted selector, waiter
// queue and connector together for one proxy (spec.md §4.2).
type Balancer struct {
	label            string
	connector        ports.Connector
	metrics          ports.MetricsSink
	log              *logger.StyledLogger
	failureThreshold int
	cooldown         time.Duration

	table   *table
	waiters *waiterQueue
}

func New(label string, connector ports.Connector, metrics ports.MetricsSink, log *logger.StyledLogger, maxWaiters, failureThreshold int, cooldown time.Duration) *Balancer {
	return &Balancer{
		label:            label,
		connector:        connector,
		metrics:          metrics,
		log:              log,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		table:            newTable(),
		waiters:          newWaiterQueue(maxWaiters),
	}
}

// Reconcile implements ports.Balancer.
func (b *Balancer) Reconcile(set domain.EndpointSet) {
	b.table.reconcile(set)
	b.drainWaiters(context.Background())
}

// Snapshot implements ports.Balancer.
func (b *Balancer) Snapshot() []domain.EndpointSnapshot {
	return b.table.snapshot()
}

// SessionEnded decrements the active count for addr when a forwarding
// session bound to it terminates.
func (b *Balancer) SessionEnded(addr *net.TCPAddr) {
	if state, ok := b.table.get(addr.String()); ok {
		state.SessionEnded()
		b.publishGauges(state)
	}
}

// publishGauges pushes one endpoint's current pending/active counts to
// the metrics sink so the admin surface's gauges never lag the table.
func (b *Balancer) publishGauges(state *domain.EndpointState) {
	snap := state.Snapshot()
	b.metrics.RecordEndpointGauges(b.label, snap.Addr.String(), snap.Pending, snap.Active)
}

// Run consumes resolver updates and periodically recovers endpoints
// from cooldown until ctx is cancelled. It is the long-lived activity
// the supervisor runs this balancer's reconciliation loop as (spec.md
// §9's threaded-runtime translation of the source's per-step futures).
func (b *Balancer) Run(ctx context.Context, updates <-chan domain.EndpointSet) error {
	ticker := time.NewTicker(cooldownPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case set, ok := <-updates:
			if !ok {
				return nil
			}
			b.Reconcile(set)
		case <-ticker.C:
			if b.table.recoverCooldowns(b.cooldown) {
				b.drainWaiters(ctx)
			}
		}
	}
}

// Connect implements ports.Balancer: select a routable endpoint and
// dial it, retrying once on a different endpoint on failure, or enqueue
// a Waiter when nothing is currently routable.
func (b *Balancer) Connect(ctx context.Context, downstream net.Conn) (domain.ConnectResult, error) {
	res, err := b.tryConnect(ctx, "")
	if err == nil {
		b.drainWaiters(ctx)
		return res, nil
	}
	if err != ErrNoCandidates {
		return domain.ConnectResult{}, err
	}

	waiter := domain.NewWaiter(downstream)
	if !b.waiters.enqueue(waiter) {
		return domain.ConnectResult{}, &domain.NoEndpointsError{Proxy: b.label}
	}
	b.metrics.RecordWaiterQueued(b.label, b.waiters.len())

	select {
	case result := <-waiter.Result():
		return result, result.Err
	case <-ctx.Done():
		return domain.ConnectResult{}, ctx.Err()
	}
}

// tryConnect performs one selection-and-dial attempt, retrying once on
// a different endpoint if the first dial fails (spec.md §4.2 step 5).
func (b *Balancer) tryConnect(ctx context.Context, exclude string) (domain.ConnectResult, error) {
	candidates := b.table.candidates(exclude)
	if len(candidates) == 0 {
		return domain.ConnectResult{}, ErrNoCandidates
	}

	state, err := selectWeighted(candidates)
	if err != nil {
		return domain.ConnectResult{}, err
	}

	state.BeginConnect()
	b.publishGauges(state)
	start := time.Now()
	conn, dialErr := b.connector.Dial(ctx, state.Addr)
	latency := time.Since(start)
	b.metrics.RecordConnectAttempt(b.label, state.Addr.String(), dialErr == nil, latency)

	if dialErr == nil {
		state.ConnectSucceeded()
		b.publishGauges(state)
		b.log.InfoEndpointStatus("endpoint connected", state.Addr.String(), domain.StatusReady)
		return domain.ConnectResult{Upstream: conn, Addr: state.Addr}, nil
	}

	newStatus := state.ConnectFailed(b.failureThreshold, time.Now())
	b.publishGauges(state)
	if newStatus == domain.StatusFailed {
		b.log.WarnWithEndpoint("endpoint marked failed", state.Addr.String())
	}

	if exclude != "" {
		// this was already the retry attempt
		return domain.ConnectResult{}, domain.NewConnectFailedError(state.Addr, dialErr, false)
	}

	retryRes, retryErr := b.tryConnect(ctx, state.Addr.String())
	if retryErr == ErrNoCandidates {
		return domain.ConnectResult{}, domain.NewConnectFailedError(state.Addr, dialErr, false)
	}
	return retryRes, retryErr
}

// drainWaiters attempts to re-run selection for every currently queued
// waiter in FIFO order (spec.md §4.2 waiter draining).
func (b *Balancer) drainWaiters(ctx context.Context) {
	discarded := b.waiters.drain(func(w *domain.Waiter) {
		res, err := b.tryConnect(ctx, "")
		if err == ErrNoCandidates {
			// still nothing routable; put it back at the front isn't
			// possible once drained, so re-enqueue at the tail and let
			// the next trigger retry it.
			if !b.waiters.enqueue(w) {
				w.Fulfill(domain.ConnectResult{Err: &domain.NoEndpointsError{Proxy: b.label}})
			}
			return
		}
		if err != nil {
			w.Fulfill(domain.ConnectResult{Err: err})
			return
		}
		w.Fulfill(res)
	})
	for i := 0; i < discarded; i++ {
		b.metrics.RecordWaiterDiscarded(b.label)
	}
}
