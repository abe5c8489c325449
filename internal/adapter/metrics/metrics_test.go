package metrics

import (
	"strings"
	"testing"
	"time"
)

func TestRegistry_GatherIncludesRecordedMetrics(t *testing.T) {
	r := New()
	r.RecordDiscoveryPoll("web", true, 10*time.Millisecond)
	r.RecordConnectAttempt("web", "10.0.0.1:8080", false, 5*time.Millisecond)
	r.RecordSessionClosed("web", "10.0.0.1:8080", 1024, 2048, time.Second)
	r.RecordWaiterQueued("web", 3)
	r.RecordWaiterDiscarded("web")
	r.RecordEndpointGauges("web", "10.0.0.1:8080", 1, 2)

	body, err := r.Gather()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := string(body)

	for _, want := range []string{
		"olla_l4_discovery_polls_total",
		"olla_l4_connect_attempts_total",
		"olla_l4_sessions_closed_total",
		"olla_l4_waiters_queued",
		"olla_l4_waiters_discarded_total",
		"olla_l4_endpoint_pending",
		"olla_l4_endpoint_active",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected gathered text to contain %q", want)
		}
	}
}

func TestRegistry_GatherOnFreshRegistryHasNoSessionSamples(t *testing.T) {
	r := New()
	body, err := r.Gather()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(string(body), "olla_l4_sessions_closed_total{") {
		t.Error("expected no session-closed samples before any are recorded")
	}
}
