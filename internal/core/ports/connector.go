package ports

import (
	"context"
	"net"
)

// Connector dials one upstream address, optionally originating TLS. A
// failed TCP dial is returned as a ConnectFailedError and a failed TLS
// handshake as a HandshakeFailedError; the balancer counts either one
// against the dialed EndpointState's failure streak.
type Connector interface {
	Dial(ctx context.Context, addr *net.TCPAddr) (net.Conn, error)
}
