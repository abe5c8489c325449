// Package acceptor binds a proxy's listening sockets: a plain TCP
// listener, or a TLS-terminating one that delegates certificate
// selection to a ports.SNIResolver on every handshake (spec.md §4.4).
package acceptor

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/thushan/olla/internal/core/domain"
	"github.com/thushan/olla/internal/core/ports"
)

// Plain accepts raw TCP connections.
type Plain struct {
	ln net.Listener
}

// Listen binds addr and returns a ready Plain acceptor, or a
// domain.FatalBindError if the bind itself fails.
func Listen(addr string) (*Plain, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &domain.FatalBindError{Addr: addr, Err: err}
	}
	return &Plain{ln: ln}, nil
}

// Accept implements ports.Acceptor.
func (p *Plain) Accept(ctx context.Context) (net.Conn, error) {
	return acceptWithContext(ctx, p.ln)
}

func (p *Plain) Addr() net.Addr { return p.ln.Addr() }
func (p *Plain) Close() error   { return p.ln.Close() }

// Secure terminates TLS on accept, selecting a certificate per
// handshake via resolver. A handshake with no matching identity and no
// configured default is aborted: the connection is discarded and
// logged, never surfaced as a fatal acceptor error (spec.md §4.4).
type Secure struct {
	ln        net.Listener
	tlsConfig *tls.Config
}

// ListenTLS binds addr and configures per-handshake certificate
// selection via resolver. alpnProtocols may be nil.
func ListenTLS(addr string, resolver ports.SNIResolver, alpnProtocols []string) (*Secure, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &domain.FatalBindError{Addr: addr, Err: err}
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		NextProtos: alpnProtocols,
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			return resolver.CertificateFor(hello.ServerName)
		},
	}
	return &Secure{ln: ln, tlsConfig: cfg}, nil
}

// Accept implements ports.Acceptor: a handshake failure (including "no
// identity for this server_name") discards the connection and returns
// a *domain.HandshakeFailedError, which the caller should log and
// continue accepting rather than treat as fatal.
func (s *Secure) Accept(ctx context.Context) (net.Conn, error) {
	raw, err := acceptWithContext(ctx, s.ln)
	if err != nil {
		return nil, err
	}

	tlsConn := tls.Server(raw, s.tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, &domain.HandshakeFailedError{Peer: raw.RemoteAddr().String(), Err: err}
	}
	return tlsConn, nil
}

func (s *Secure) Addr() net.Addr { return s.ln.Addr() }
func (s *Secure) Close() error   { return s.ln.Close() }

// acceptWithContext runs ln.Accept in a goroutine and returns ctx.Err()
// as soon as ctx is cancelled. The listener is not closed here: the
// goroutine stays blocked in Accept until a connection arrives or the
// caller closes the listener.
func acceptWithContext(ctx context.Context, ln net.Listener) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		done <- result{conn, err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
