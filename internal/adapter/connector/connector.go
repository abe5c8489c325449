// Package connector originates outbound connections to the endpoints a
// balancer selects: a plain TCP dialer, or a TLS-originating dialer
// that performs a client handshake over the dialed socket (spec.md
// §4.3).
package connector

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/thushan/olla/internal/core/domain"
)

// Plain dials a bare TCP connection, enforcing ConnectTimeout if set.
type Plain struct {
	ConnectTimeout time.Duration
}

// Dial implements ports.Connector.
func (p *Plain) Dial(ctx context.Context, addr *net.TCPAddr) (net.Conn, error) {
	ctx, cancel := withConnectTimeout(ctx, p.ConnectTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, domain.NewConnectFailedError(addr, err, ctx.Err() == context.DeadlineExceeded)
	}
	return conn, nil
}

// Secure dials a TCP connection and layers a client TLS handshake over
// it, verifying the peer against DNSName using the trust roots loaded
// from TrustCertFiles.
type Secure struct {
	ConnectTimeout time.Duration
	DNSName        string
	TrustCertFiles []string

	tlsConfig *tls.Config
}

// NewSecure builds a Secure connector, loading the configured trust
// roots once up front. Returns a domain.FatalBindError-free error
// directly since a bad trust bundle is a startup-time misconfiguration.
func NewSecure(dnsName string, trustCertFiles []string, connectTimeout time.Duration) (*Secure, error) {
	pool := x509.NewCertPool()
	for _, path := range trustCertFiles {
		pem, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("connector: no PEM certificates found in %s", path)
		}
	}
	return &Secure{
		ConnectTimeout: connectTimeout,
		DNSName:        dnsName,
		TrustCertFiles: trustCertFiles,
		tlsConfig: &tls.Config{
			ServerName: dnsName,
			RootCAs:    pool,
			MinVersion: tls.VersionTLS12,
		},
	}, nil
}

// Dial implements ports.Connector.
func (s *Secure) Dial(ctx context.Context, addr *net.TCPAddr) (net.Conn, error) {
	ctx, cancel := withConnectTimeout(ctx, s.ConnectTimeout)
	defer cancel()

	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, domain.NewConnectFailedError(addr, err, ctx.Err() == context.DeadlineExceeded)
	}

	tlsConn := tls.Client(raw, s.tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, &domain.HandshakeFailedError{Peer: addr.String(), Err: err}
	}
	return tlsConn, nil
}

func withConnectTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
