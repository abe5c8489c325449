package ports

import (
	"context"
	"net"

	"github.com/thushan/olla/internal/core/domain"
)

// Balancer owns the endpoint state table for one proxy: it reconciles
// resolver updates, selects an upstream for each accepted downstream
// connection and queues the request as a Waiter when no endpoint is
// routable (spec.md §3/§4.2).
type Balancer interface {
	// Reconcile applies a fresh resolver snapshot to the state table:
	// new addresses are added Unprobed; an address absent from the set
	// is removed if it has no in-flight work, otherwise tombstoned and
	// removed by a later Reconcile once drained.
	Reconcile(set domain.EndpointSet)

	// Connect selects a routable endpoint and returns a live connection,
	// or enqueues a Waiter (bounded by max_waiters) and blocks until one
	// is fulfilled or ctx is cancelled. Returns NoEndpointsError if the
	// waiter queue is full.
	Connect(ctx context.Context, downstream net.Conn) (domain.ConnectResult, error)

	// Snapshot returns a point-in-time view of every tracked endpoint,
	// used by the metrics sink and admin surface.
	Snapshot() []domain.EndpointSnapshot
}
