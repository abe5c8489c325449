// Package forwarder relays bytes between a downstream and upstream
// connection for the lifetime of one session (spec.md §4.5).
package forwarder

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/thushan/olla/internal/core/domain"
	"github.com/thushan/olla/pkg/pool"
)

// Forwarder copies bytes in both directions over a shared pool of
// buffers, one borrowed per direction per session (spec.md §4.5's
// buffer discipline; this repo's goroutine-per-direction model replaces
// the source's single-threaded borrow-and-yield with the equivalent Go
// idiom of one buffer checked out per concurrent copy).
type Forwarder struct {
	buffers *pool.Pool[*[]byte]
}

// New builds a Forwarder whose shared buffers are bufferSize bytes.
func New(bufferSize int) *Forwarder {
	return &Forwarder{
		buffers: pool.NewLitePool(func() *[]byte {
			buf := make([]byte, bufferSize)
			return &buf
		}),
	}
}

// copyResult carries one direction's outcome back to Forward: the byte
// count actually copied before EOF or error.
type copyResult struct {
	n   int64
	err error
}

// Forward implements ports.Forwarder. bytesIn is downstream->upstream,
// bytesOut is upstream->downstream.
//
// A genuine I/O error on either direction closes both sockets immediately
// (spec.md §4.5 "any I/O error on either side terminates the session; both
// sockets are closed") rather than waiting for the other direction to reach
// its own EOF or error naturally — a live peer that simply stops sending
// would otherwise pin the session and its goroutines open forever.
func (f *Forwarder) Forward(ctx context.Context, downstream, upstream net.Conn) (int64, int64, error) {
	inCh := make(chan copyResult, 1)
	outCh := make(chan copyResult, 1)
	start := time.Now()

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = downstream.Close()
			_ = upstream.Close()
		})
	}

	go f.copyDirection(upstream, downstream, inCh)
	go f.copyDirection(downstream, upstream, outCh)

	var in, out copyResult
	var inDone, outDone bool
	var firstErr error
	done := ctx.Done()

	for !inDone || !outDone {
		select {
		case in = <-inCh:
			inDone = true
			if in.err != nil && firstErr == nil {
				firstErr = in.err
			}
			if in.err != nil {
				closeBoth()
			}
		case out = <-outCh:
			outDone = true
			if out.err != nil && firstErr == nil {
				firstErr = out.err
			}
			if out.err != nil {
				closeBoth()
			}
		case <-done:
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			closeBoth()
			done = nil
		}
	}
	closeBoth()

	if firstErr != nil {
		return in.n, out.n, &domain.SessionIOError{Direction: "session", Err: firstErr, Duration: time.Since(start)}
	}
	return in.n, out.n, nil
}

// copyDirection copies src->dst until EOF or error, then half-closes
// dst's write side so the opposite direction can still drain (spec.md
// §4.5 half-close). A plain nil is sent on clean EOF; io.EOF itself is
// not an error worth reporting to the session.
func (f *Forwarder) copyDirection(dst, src net.Conn, done chan<- copyResult) {
	buf := f.buffers.Get()
	defer f.buffers.Put(buf)

	n, err := io.CopyBuffer(dst, src, *buf)
	if tc, ok := dst.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		done <- copyResult{n: n, err: err}
		return
	}
	done <- copyResult{n: n}
}
