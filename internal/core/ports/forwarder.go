package ports

import (
	"context"
	"net"
)

// Forwarder relays bytes between a downstream and upstream connection
// until both directions reach EOF, either side errors, or ctx is
// cancelled, half-closing the
// opposite leg once one direction reaches EOF (spec.md §5). It returns
// the bytes copied downstream->upstream and upstream->downstream so the
// caller can attribute them to the session metrics.
type Forwarder interface {
	Forward(ctx context.Context, downstream, upstream net.Conn) (bytesIn, bytesOut int64, err error)
}
