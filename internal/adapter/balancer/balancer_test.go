package balancer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thushan/olla/internal/core/domain"
	"github.com/thushan/olla/internal/logger"
	"github.com/thushan/olla/theme"
)

type stubConnector struct {
	mu     sync.Mutex
	refuse map[string]bool
	dialed []string
}

func newStubConnector(refuse ...string) *stubConnector {
	m := make(map[string]bool, len(refuse))
	for _, a := range refuse {
		m[a] = true
	}
	return &stubConnector{refuse: m}
}

func (s *stubConnector) Dial(ctx context.Context, addr *net.TCPAddr) (net.Conn, error) {
	s.mu.Lock()
	s.dialed = append(s.dialed, addr.String())
	s.mu.Unlock()

	if s.refuse[addr.String()] {
		return nil, errors.New("connection refused")
	}
	client, server := net.Pipe()
	go func() { _, _ = io.Copy(io.Discard, server) }()
	return client, nil
}

type noopMetrics struct{}

func (noopMetrics) RecordDiscoveryPoll(proxy string, ok bool, latency time.Duration)   {}
func (noopMetrics) RecordConnectAttempt(proxy, addr string, ok bool, latency time.Duration) {}
func (noopMetrics) RecordSessionClosed(proxy, addr string, bytesIn, bytesOut int64, duration time.Duration) {
}
func (noopMetrics) RecordWaiterQueued(proxy string, depth int)                       {}
func (noopMetrics) RecordWaiterDiscarded(proxy string)                               {}
func (noopMetrics) RecordEndpointGauges(proxy, addr string, pending, active int)      {}
func (noopMetrics) Gather() ([]byte, error)                    { return nil, nil }

func testBalancerLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), theme.Default())
}

func TestBalancer_ConnectSucceeds(t *testing.T) {
	connector := newStubConnector()
	b := New("test", connector, noopMetrics{}, testBalancerLogger(), 8, 3, time.Second)
	b.Reconcile(domain.NewEndpointSet([]domain.WeightedAddress{{Addr: addr(9001), Weight: 1.0}}))

	downstream, _ := net.Pipe()
	res, err := b.Connect(context.Background(), downstream)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Upstream == nil {
		t.Fatal("expected a live upstream connection")
	}
}

func TestBalancer_NoEndpointsQueueFull(t *testing.T) {
	connector := newStubConnector()
	b := New("test", connector, noopMetrics{}, testBalancerLogger(), 0, 3, time.Second)
	// no Reconcile call: candidate set is empty and max_waiters=0

	downstream, _ := net.Pipe()
	_, err := b.Connect(context.Background(), downstream)
	var noEndpoints *domain.NoEndpointsError
	if !errors.As(err, &noEndpoints) {
		t.Fatalf("expected NoEndpointsError, got %v", err)
	}
}

func TestBalancer_FailoverRetriesOnDifferentEndpoint(t *testing.T) {
	a, b2 := addr(9001), addr(9002)
	connector := newStubConnector(a.String())
	bal := New("test", connector, noopMetrics{}, testBalancerLogger(), 8, 1, time.Hour)
	bal.Reconcile(domain.NewEndpointSet([]domain.WeightedAddress{
		{Addr: a, Weight: 1.0},
		{Addr: b2, Weight: 1.0},
	}))

	downstream, _ := net.Pipe()
	res, err := bal.Connect(context.Background(), downstream)
	if err != nil {
		t.Fatalf("expected failover to succeed, got %v", err)
	}
	if res.Addr.String() != b2.String() {
		t.Fatalf("expected failover to land on %s, got %s", b2, res.Addr)
	}

	snap := bal.Snapshot()
	for _, s := range snap {
		if s.Addr.String() == a.String() && s.Status != domain.StatusFailed {
			t.Errorf("expected %s to be marked Failed after its one connect attempt (threshold=1), got %s", a, s.Status)
		}
	}
}

func TestBalancer_WaiterFulfilledOnceEndpointAppears(t *testing.T) {
	connector := newStubConnector()
	b := New("test", connector, noopMetrics{}, testBalancerLogger(), 8, 3, time.Second)

	downstream, _ := net.Pipe()
	resultCh := make(chan error, 1)
	var gotConn atomic.Bool
	go func() {
		res, err := b.Connect(context.Background(), downstream)
		if err == nil {
			gotConn.Store(res.Upstream != nil)
		}
		resultCh <- err
	}()

	time.Sleep(20 * time.Millisecond) // let Connect enqueue as a waiter
	b.Reconcile(domain.NewEndpointSet([]domain.WeightedAddress{{Addr: addr(9001), Weight: 1.0}}))

	select {
	case err := <-resultCh:
		if err != nil {
			t.Fatalf("expected waiter to be fulfilled, got %v", err)
		}
		if !gotConn.Load() {
			t.Fatal("expected a live upstream connection")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for waiter fulfillment")
	}
}
