package domain

import (
	"fmt"
	"net"
	"time"
)

// TransientDiscoveryError wraps a resolver poll failure that does not
// clear the last known-good endpoint set (spec.md §4.1): a bad poll is
// logged and retried, never treated as "no endpoints".
type TransientDiscoveryError struct {
	Source string
	Err    error
}

func (e *TransientDiscoveryError) Error() string {
	return fmt.Sprintf("discovery poll failed (%s): %v", e.Source, e.Err)
}

func (e *TransientDiscoveryError) Unwrap() error {
	return e.Err
}

// NoEndpointsError means the balancer has an empty routable set (every
// address is tombstoned, failed, or the resolver has never produced an
// update) and the waiter queue has no room, so the connect request
// fails fast instead of queueing as a waiter.
type NoEndpointsError struct {
	Proxy string
}

func (e *NoEndpointsError) Error() string {
	return fmt.Sprintf("no routable endpoints for proxy %s", e.Proxy)
}

// ConnectFailedError is returned by a connector when dialing a specific
// upstream address fails; Addr lets the balancer attribute the failure
// to the right EndpointState for the failure-streak counter.
type ConnectFailedError struct {
	Addr     *net.TCPAddr
	Err      error
	TimedOut bool
}

func (e *ConnectFailedError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("connect to %s timed out: %v", e.Addr, e.Err)
	}
	return fmt.Sprintf("connect to %s failed: %v", e.Addr, e.Err)
}

func (e *ConnectFailedError) Unwrap() error {
	return e.Err
}

// HandshakeFailedError is returned by an acceptor or connector when a
// TLS handshake fails — distinct from ConnectFailedError, which covers
// the TCP dial. The balancer still counts a connector's handshake
// failure against that endpoint's failure streak.
type HandshakeFailedError struct {
	Peer string
	Err  error
}

func (e *HandshakeFailedError) Error() string {
	return fmt.Sprintf("tls handshake with %s failed: %v", e.Peer, e.Err)
}

func (e *HandshakeFailedError) Unwrap() error {
	return e.Err
}

// SessionIOError wraps a forwarding-loop read/write failure on either
// leg of a session. Direction is a label used only for logging; the
// forwarder sets it to "session" whichever leg failed.
type SessionIOError struct {
	Direction string
	Err       error
	Duration  time.Duration
}

func (e *SessionIOError) Error() string {
	return fmt.Sprintf("session io error (%s) after %v: %v", e.Direction, e.Duration, e.Err)
}

func (e *SessionIOError) Unwrap() error {
	return e.Err
}

// FatalBindError means a listener could not be established at startup;
// the supervisor treats this as unrecoverable for the owning proxy.
type FatalBindError struct {
	Addr string
	Err  error
}

func (e *FatalBindError) Error() string {
	return fmt.Sprintf("failed to bind %s: %v", e.Addr, e.Err)
}

func (e *FatalBindError) Unwrap() error {
	return e.Err
}

func NewTransientDiscoveryError(source string, err error) *TransientDiscoveryError {
	return &TransientDiscoveryError{Source: source, Err: err}
}

func NewConnectFailedError(addr *net.TCPAddr, err error, timedOut bool) *ConnectFailedError {
	return &ConnectFailedError{Addr: addr, Err: err, TimedOut: timedOut}
}
