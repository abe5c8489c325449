package acceptor

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/thushan/olla/internal/core/domain"
)

func TestPlain_AcceptAndDial(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	defer ln.Close()

	go func() {
		_, _ = net.Dial("tcp", ln.Addr().String())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn, err := ln.Accept(ctx)
	if err != nil {
		t.Fatalf("unexpected accept error: %v", err)
	}
	defer conn.Close()
}

func TestListen_FailsOnAddressInUse(t *testing.T) {
	first, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	defer first.Close()

	_, err = Listen(first.Addr().String())
	var bindErr *domain.FatalBindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("expected FatalBindError, got %v", err)
	}
}

func TestPlain_AcceptRespectsContextCancellation(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = ln.Accept(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type staticResolver struct {
	cert *tls.Certificate
}

func (r *staticResolver) CertificateFor(serverName string) (*tls.Certificate, error) {
	if r.cert == nil {
		return nil, errors.New("no identity configured")
	}
	return r.cert, nil
}

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "upstream.example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func TestSecure_HandshakeSucceedsWithResolvedIdentity(t *testing.T) {
	cert := selfSignedCert(t)
	ln, err := ListenTLS("127.0.0.1:0", &staticResolver{cert: &cert}, nil)
	if err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	defer ln.Close()

	clientDone := make(chan error, 1)
	go func() {
		conn, err := tls.Dial("tcp", ln.Addr().String(), &tls.Config{InsecureSkipVerify: true})
		if err == nil {
			_ = conn.Close()
		}
		clientDone <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := ln.Accept(ctx)
	if err != nil {
		t.Fatalf("unexpected accept/handshake error: %v", err)
	}
	defer conn.Close()

	if err := <-clientDone; err != nil {
		t.Fatalf("client-side handshake failed: %v", err)
	}
}

func TestSecure_HandshakeAbortsWithoutIdentity(t *testing.T) {
	ln, err := ListenTLS("127.0.0.1:0", &staticResolver{}, nil)
	if err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := tls.Dial("tcp", ln.Addr().String(), &tls.Config{InsecureSkipVerify: true})
		if err == nil {
			_ = conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = ln.Accept(ctx)
	var handshakeErr *domain.HandshakeFailedError
	if !errors.As(err, &handshakeErr) {
		t.Fatalf("expected HandshakeFailedError, got %v", err)
	}
}
