package domain

import (
	"net"
	"sync"
	"syscall"
)

// ConnectResult is handed to a Waiter exactly once, either a ready
// upstream connection or the error that selection/connect produced.
type ConnectResult struct {
	Upstream net.Conn
	Addr     *net.TCPAddr
	Err      error
}

// Waiter is a pending request for an upstream connection: a downstream
// socket accepted while no endpoint was routable (spec.md §3). Only an
// empty candidate set creates a Waiter; a connect already in flight to
// some endpoint does not. A Waiter is fulfilled at most once; Fulfill
// after the first call is a no-op.
type Waiter struct {
	Downstream net.Conn

	once     sync.Once
	done     chan ConnectResult
	closedCh chan struct{}
}

// NewWaiter creates a waiter carrying the accepted downstream socket. The
// one-shot completion channel has capacity 1 so Fulfill never blocks the
// balancer's selection loop.
func NewWaiter(downstream net.Conn) *Waiter {
	return &Waiter{
		Downstream: downstream,
		done:       make(chan ConnectResult, 1),
		closedCh:   make(chan struct{}),
	}
}

// Fulfill delivers the result exactly once. Subsequent calls are ignored.
func (w *Waiter) Fulfill(res ConnectResult) {
	// a waiter is never fulfilled twice: later calls are dropped silently
	w.once.Do(func() {
		w.done <- res
		close(w.closedCh)
	})
}

// Result is the channel a caller blocks on to receive the eventual
// upstream connection or error.
func (w *Waiter) Result() <-chan ConnectResult {
	return w.done
}

// Discarded peeks at the downstream socket, via MSG_PEEK, to decide
// whether the client has already hung up while queued. MSG_PEEK leaves
// any pending bytes in the socket's receive buffer, so a waiter that is
// later fulfilled still sees every byte the client sent (spec.md §8
// round-trip invariant) — unlike a real Read, the peek never consumes
// data. It must only be called by the waiter queue's drain loop, never
// concurrently with forwarding. No data yet (still open) is not a
// discard; an orderly EOF or a socket error is.
func (w *Waiter) Discarded() bool {
	sc, ok := w.Downstream.(syscall.Conn)
	if !ok {
		return false
	}
	rawConn, err := sc.SyscallConn()
	if err != nil {
		return false
	}

	closed := false
	peekErr := rawConn.Read(func(fd uintptr) bool {
		buf := make([]byte, 1)
		n, _, recvErr := syscall.Recvfrom(int(fd), buf, syscall.MSG_PEEK|syscall.MSG_DONTWAIT)
		switch {
		case recvErr == syscall.EAGAIN || recvErr == syscall.EWOULDBLOCK:
			closed = false
		case n == 0 && recvErr == nil:
			closed = true
		case recvErr != nil:
			closed = true
		default:
			closed = false
		}
		return true
	})
	if peekErr != nil {
		return false
	}
	return closed
}
