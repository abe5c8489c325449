package ports

import "time"

// MetricsSink records per-proxy, per-endpoint counters for the admin
// surface to scrape. Labels are the proxy name and, for per-endpoint
// metrics, the upstream endpoint address; never the client address
// (spec.md §9 cardinality note).
type MetricsSink interface {
	RecordDiscoveryPoll(proxy string, ok bool, latency time.Duration)
	RecordConnectAttempt(proxy, addr string, ok bool, latency time.Duration)
	RecordSessionClosed(proxy, addr string, bytesIn, bytesOut int64, duration time.Duration)
	RecordWaiterQueued(proxy string, depth int)
	RecordWaiterDiscarded(proxy string)

	// RecordEndpointGauges publishes one endpoint's current pending and
	// active connect counts (spec.md §3 EndpointState, §8/§9), so the
	// admin surface carries a live per-endpoint view alongside the
	// counters above.
	RecordEndpointGauges(proxy, addr string, pending, active int)

	// Gather renders the current registry in the Prometheus text
	// exposition format for the admin surface to serve.
	Gather() ([]byte, error)
}
