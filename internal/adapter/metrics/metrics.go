// Package metrics implements ports.MetricsSink on top of a dedicated
// Prometheus registry (spec.md §6's admin surface collaborator: the
// registry the core writes into, not the HTTP handler that serves it).
package metrics

import (
	"bytes"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry is a ports.MetricsSink backed by its own prometheus.Registry
// rather than the global default, so multiple proxies in one process
// never collide on metric names and an admin server can Gather() the
// full snapshot on demand (spec.md §6 "periodic aggregator-drain").
type Registry struct {
	registry *prometheus.Registry

	discoveryPolls   *prometheus.CounterVec
	discoveryLatency *prometheus.HistogramVec
	connectAttempts  *prometheus.CounterVec
	connectLatency   *prometheus.HistogramVec
	sessionsClosed   *prometheus.CounterVec
	sessionBytesIn   *prometheus.CounterVec
	sessionBytesOut  *prometheus.CounterVec
	sessionDuration  *prometheus.HistogramVec
	waitersQueued    *prometheus.GaugeVec
	waitersDiscarded *prometheus.CounterVec
	endpointPending  *prometheus.GaugeVec
	endpointActive   *prometheus.GaugeVec
}

// New builds a Registry with every metric spec.md §8/§9 names
// pre-registered, labeled by proxy (and address, where per-endpoint).
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		discoveryPolls: promRegisterCounterVec(reg, prometheus.CounterOpts{
			Name: "olla_l4_discovery_polls_total",
			Help: "Discovery polls, labeled by proxy and outcome.",
		}, []string{"proxy", "ok"}),
		discoveryLatency: promRegisterHistogramVec(reg, prometheus.HistogramOpts{
			Name:    "olla_l4_discovery_poll_duration_seconds",
			Help:    "Discovery poll round-trip latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"proxy"}),
		connectAttempts: promRegisterCounterVec(reg, prometheus.CounterOpts{
			Name: "olla_l4_connect_attempts_total",
			Help: "Upstream connect attempts, labeled by proxy, endpoint and outcome.",
		}, []string{"proxy", "addr", "ok"}),
		connectLatency: promRegisterHistogramVec(reg, prometheus.HistogramOpts{
			Name:    "olla_l4_connect_duration_seconds",
			Help:    "Upstream connect latency.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"proxy", "addr"}),
		sessionsClosed: promRegisterCounterVec(reg, prometheus.CounterOpts{
			Name: "olla_l4_sessions_closed_total",
			Help: "Forwarding sessions that have ended, labeled by proxy and endpoint.",
		}, []string{"proxy", "addr"}),
		sessionBytesIn: promRegisterCounterVec(reg, prometheus.CounterOpts{
			Name: "olla_l4_session_bytes_in_total",
			Help: "Bytes read from the downstream side of closed sessions.",
		}, []string{"proxy", "addr"}),
		sessionBytesOut: promRegisterCounterVec(reg, prometheus.CounterOpts{
			Name: "olla_l4_session_bytes_out_total",
			Help: "Bytes written to the downstream side of closed sessions.",
		}, []string{"proxy", "addr"}),
		sessionDuration: promRegisterHistogramVec(reg, prometheus.HistogramOpts{
			Name:    "olla_l4_session_duration_seconds",
			Help:    "Forwarding session lifetime.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
		}, []string{"proxy", "addr"}),
		waitersQueued: promRegisterGaugeVec(reg, prometheus.GaugeOpts{
			Name: "olla_l4_waiters_queued",
			Help: "Current depth of the waiter queue, labeled by proxy.",
		}, []string{"proxy"}),
		waitersDiscarded: promRegisterCounterVec(reg, prometheus.CounterOpts{
			Name: "olla_l4_waiters_discarded_total",
			Help: "Waiters discarded because their downstream socket closed first.",
		}, []string{"proxy"}),
		endpointPending: promRegisterGaugeVec(reg, prometheus.GaugeOpts{
			Name: "olla_l4_endpoint_pending",
			Help: "In-flight connect attempts per endpoint.",
		}, []string{"proxy", "addr"}),
		endpointActive: promRegisterGaugeVec(reg, prometheus.GaugeOpts{
			Name: "olla_l4_endpoint_active",
			Help: "Established forwarding sessions per endpoint.",
		}, []string{"proxy", "addr"}),
	}
	return r
}

func (r *Registry) RecordDiscoveryPoll(proxy string, ok bool, latency time.Duration) {
	r.discoveryPolls.WithLabelValues(proxy, boolLabel(ok)).Inc()
	r.discoveryLatency.WithLabelValues(proxy).Observe(latency.Seconds())
}

func (r *Registry) RecordConnectAttempt(proxy, addr string, ok bool, latency time.Duration) {
	r.connectAttempts.WithLabelValues(proxy, addr, boolLabel(ok)).Inc()
	r.connectLatency.WithLabelValues(proxy, addr).Observe(latency.Seconds())
}

func (r *Registry) RecordSessionClosed(proxy, addr string, bytesIn, bytesOut int64, duration time.Duration) {
	r.sessionsClosed.WithLabelValues(proxy, addr).Inc()
	r.sessionBytesIn.WithLabelValues(proxy, addr).Add(float64(bytesIn))
	r.sessionBytesOut.WithLabelValues(proxy, addr).Add(float64(bytesOut))
	r.sessionDuration.WithLabelValues(proxy, addr).Observe(duration.Seconds())
}

func (r *Registry) RecordWaiterQueued(proxy string, depth int) {
	r.waitersQueued.WithLabelValues(proxy).Set(float64(depth))
}

func (r *Registry) RecordWaiterDiscarded(proxy string) {
	r.waitersDiscarded.WithLabelValues(proxy).Inc()
}

func (r *Registry) RecordEndpointGauges(proxy, addr string, pending, active int) {
	r.endpointPending.WithLabelValues(proxy, addr).Set(float64(pending))
	r.endpointActive.WithLabelValues(proxy, addr).Set(float64(active))
}

// Gather implements ports.MetricsSink: renders every registered metric
// family in the Prometheus text exposition format for an admin HTTP
// handler to serve verbatim.
func (r *Registry) Gather() ([]byte, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func boolLabel(ok bool) string {
	if ok {
		return "true"
	}
	return "false"
}

func promRegisterCounterVec(reg *prometheus.Registry, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	v := prometheus.NewCounterVec(opts, labels)
	reg.MustRegister(v)
	return v
}

func promRegisterHistogramVec(reg *prometheus.Registry, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	v := prometheus.NewHistogramVec(opts, labels)
	reg.MustRegister(v)
	return v
}

func promRegisterGaugeVec(reg *prometheus.Registry, opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	v := prometheus.NewGaugeVec(opts, labels)
	reg.MustRegister(v)
	return v
}
