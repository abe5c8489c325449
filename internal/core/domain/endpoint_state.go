package domain

import (
	"net"
	"sync"
	"time"
)

// EndpointLifecycle is the status of one endpoint as tracked by the
// balancer's state table.
type EndpointLifecycle string

const (
	// StatusUnprobed means no connect to the endpoint has succeeded yet
	// (any failures so far are below the threshold), or the endpoint's
	// cooldown has just elapsed and it is eligible for another attempt.
	StatusUnprobed EndpointLifecycle = "unprobed"
	// StatusReady means a connect attempt has succeeded and the failures
	// since then, if any, are below the threshold.
	StatusReady EndpointLifecycle = "ready"
	// StatusFailed means consecutive_failures has reached the configured
	// threshold; the endpoint is excluded from selection until cooldown.
	StatusFailed EndpointLifecycle = "failed"
)

func (s EndpointLifecycle) Routable() bool {
	return s == StatusReady || s == StatusUnprobed
}

func (s EndpointLifecycle) String() string {
	return string(s)
}

// EndpointState is the balancer's per-address record (spec.md §3). It is
// mutated both by the balancer's reconciliation loop and by concurrent
// Connect calls; the mutex below makes each transition and each
// Snapshot read atomic.
type EndpointState struct {
	Addr *net.TCPAddr

	mu                  sync.Mutex
	weight              float64
	pending             int
	active              int
	consecutiveFailures int
	status              EndpointLifecycle
	tombstoned          bool
	failedAt            time.Time
}

// NewEndpointState creates a fresh, never-probed endpoint record.
func NewEndpointState(addr *net.TCPAddr, weight float64) *EndpointState {
	return &EndpointState{
		Addr:   addr,
		weight: weight,
		status: StatusUnprobed,
	}
}

// EndpointSnapshot is an immutable, point-in-time copy of an
// EndpointState used by the selector so selection never races with
// concurrent mutation of counters.
type EndpointSnapshot struct {
	Addr       *net.TCPAddr
	Weight     float64
	Pending    int
	Active     int
	Status     EndpointLifecycle
	Tombstoned bool
}

func (e *EndpointState) Snapshot() EndpointSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EndpointSnapshot{
		Addr:       e.Addr,
		Weight:     e.weight,
		Pending:    e.pending,
		Active:     e.active,
		Status:     e.status,
		Tombstoned: e.tombstoned,
	}
}

// Routable reports whether the endpoint is a selection candidate: it
// must be Unprobed or Ready, and not tombstoned.
func (e *EndpointState) Routable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.Routable() && !e.tombstoned
}

func (e *EndpointState) SetWeight(w float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.weight = w
}

func (e *EndpointState) Tombstone() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tombstoned = true
}

func (e *EndpointState) Untombstone() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tombstoned = false
}

// Drained reports whether the endpoint has no in-flight work, so a
// tombstoned entry absent from the latest resolver update may be
// removed from the table.
func (e *EndpointState) Drained() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending == 0 && e.active == 0
}

// BeginConnect records one in-flight connect attempt.
func (e *EndpointState) BeginConnect() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending++
}

// ConnectSucceeded transitions pending->active, resets the failure
// streak and marks the endpoint Ready.
func (e *EndpointState) ConnectSucceeded() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending--
	e.active++
	e.consecutiveFailures = 0
	e.status = StatusReady
}

// ConnectFailed transitions pending back down, increments the failure
// streak and, once it reaches threshold, marks the endpoint Failed and
// stamps the cooldown start. Returns the endpoint's new status.
func (e *EndpointState) ConnectFailed(threshold int, now time.Time) EndpointLifecycle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending--
	e.consecutiveFailures++
	if e.consecutiveFailures >= threshold {
		e.status = StatusFailed
		e.failedAt = now
	}
	return e.status
}

// MaybeRecoverFromCooldown transitions Failed -> Unprobed once cooldown
// has elapsed since the endpoint was marked Failed. Returns true if a
// transition happened.
func (e *EndpointState) MaybeRecoverFromCooldown(cooldown time.Duration, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusFailed {
		return false
	}
	if now.Sub(e.failedAt) < cooldown {
		return false
	}
	e.status = StatusUnprobed
	e.consecutiveFailures = 0
	return true
}

// SessionEnded decrements the active count when a forwarding session
// bound to this endpoint terminates.
func (e *EndpointState) SessionEnded() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active > 0 {
		e.active--
	}
}
