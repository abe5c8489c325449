package ports

import (
	"context"
	"crypto/tls"
	"net"
)

// Acceptor owns the listening socket for one proxy, optionally
// terminating TLS with SNI-based certificate selection. Accept returns
// one downstream connection per call; the caller hands it to the
// Balancer.
type Acceptor interface {
	Accept(ctx context.Context) (net.Conn, error)
	Addr() net.Addr
	Close() error
}

// SNIResolver selects a TLS certificate for a ClientHello's server
// name. spec.md §1 treats SNI resolution as an external collaborator;
// this repo ships one concrete implementation backed by a server
// stanza's configured identities (internal/adapter/acceptor.ConfigResolver),
// but an Acceptor only depends on this interface.
type SNIResolver interface {
	CertificateFor(serverName string) (*tls.Certificate, error)
}
