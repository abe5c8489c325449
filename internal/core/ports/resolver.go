package ports

import (
	"context"

	"github.com/thushan/olla/internal/core/domain"
)

// Resolver polls a discovery source and publishes the de-duplicated
// weighted address set it returns. A poll failure is logged as a
// TransientDiscoveryError and simply skipped: Updates is never sent a
// value for that poll, so the balancer keeps routing against the last
// known-good EndpointSet (spec.md §4.1).
type Resolver interface {
	// Updates returns the channel the resolver publishes EndpointSet
	// snapshots on. The channel is closed when Run returns.
	Updates() <-chan domain.EndpointSet

	// Run polls on the configured interval until ctx is cancelled.
	Run(ctx context.Context) error
}
