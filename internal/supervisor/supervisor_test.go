package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/thushan/olla/internal/adapter/metrics"
	"github.com/thushan/olla/internal/config"
	"github.com/thushan/olla/internal/logger"
	"github.com/thushan/olla/theme"
)

func testSupervisorLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), theme.Default())
}

// freePort binds and immediately releases a loopback port for tests
// that need a real, currently-unused address to configure a listener
// or echo server on.
func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func echoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start echo server: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				_, _ = io.Copy(conn, conn)
			}()
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return ln.Addr().String()
}

func TestProxy_EndToEndEchoesThroughForwarder(t *testing.T) {
	upstreamAddr := echoServer(t)
	host, portStr, _ := net.SplitHostPort(upstreamAddr)
	var port int
	fmt.Sscanf(portStr, "%d", &port)

	discoveryServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type": "bound",
			"addrs": []map[string]any{
				{"ip": host, "port": port, "meta": map[string]any{"endpoint_addr_weight": 1.0}},
			},
		})
	}))
	defer discoveryServer.Close()

	listenAddr := freePort(t)
	cfg := config.ProxyConfig{
		Label: "test-proxy",
		Discovery: config.DiscoveryConfig{
			BaseAddr:   discoveryServer.URL,
			Namespace:  "ns",
			TargetPath: "/svc",
			PollPeriod: 20 * time.Millisecond,
		},
		Servers:    []config.ServerConfig{{Addr: listenAddr}},
		MaxWaiters: 4,
		Balancer:   config.BalancerConfig{FailureThreshold: 3, Cooldown: time.Second},
	}

	sink := metrics.New()
	p, err := NewProxy(cfg, 4096, sink, testSupervisorLogger())
	if err != nil {
		t.Fatalf("unexpected error building proxy: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	time.Sleep(100 * time.Millisecond) // let discovery resolve and reconcile

	conn, err := net.DialTimeout("tcp", listenAddr, time.Second)
	if err != nil {
		t.Fatalf("failed to dial proxy: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("expected echoed bytes, got error: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("expected echoed 'ping', got %q", buf)
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for proxy to shut down")
	}
}

func TestSupervisor_RunStopsAllChildrenOnCancel(t *testing.T) {
	cfg := &config.Config{
		Proxies: []config.ProxyConfig{{
			Label: "noop-proxy",
			Discovery: config.DiscoveryConfig{
				BaseAddr:   "http://127.0.0.1:1", // nothing listens here; resolver just logs failures
				Namespace:  "ns",
				TargetPath: "/svc",
				PollPeriod: time.Hour,
			},
			Servers:    []config.ServerConfig{{Addr: freePort(t)}},
			MaxWaiters: 1,
		}},
		Admin:      config.AdminConfig{Addr: freePort(t), MetricsIntervalSecs: time.Hour},
		BufferSize: 4096,
	}

	sink := metrics.New()
	sup, err := New(cfg, sink, testSupervisorLogger())
	if err != nil {
		t.Fatalf("unexpected error building supervisor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for supervisor to shut down")
	}
}
