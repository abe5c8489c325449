package balancer

import (
	"sync"
	"time"

	"github.com/thushan/olla/internal/core/domain"
)

// table is the balancer's endpoint state table: one EndpointState per
// address, in the insertion order selection walks for weighted draws
// and tie-breaking (spec.md §4.2).
type table struct {
	mu      sync.Mutex
	byAddr  map[string]*domain.EndpointState
	order   []string
}

func newTable() *table {
	return &table{
		byAddr: make(map[string]*domain.EndpointState),
	}
}

// reconcile applies a fresh resolver snapshot: new addresses are
// inserted Unprobed, addresses in both the table and the set have their
// weight updated in place, and addresses missing from the set are
// either removed (if drained) or tombstoned (spec.md §3/§4.2).
func (t *table) reconcile(set domain.EndpointSet) {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]bool, set.Len())
	for _, wa := range set.Addresses() {
		key := wa.Addr.String()
		seen[key] = true

		if existing, ok := t.byAddr[key]; ok {
			existing.SetWeight(wa.Weight)
			existing.Untombstone()
			continue
		}

		t.byAddr[key] = domain.NewEndpointState(wa.Addr, wa.Weight)
		t.order = append(t.order, key)
	}

	for key, state := range t.byAddr {
		if seen[key] {
			continue
		}
		if state.Drained() {
			delete(t.byAddr, key)
			t.removeFromOrder(key)
			continue
		}
		state.Tombstone()
	}
}

func (t *table) removeFromOrder(key string) {
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

// candidates returns the routable endpoint states in table order,
// optionally excluding one address (used by the single-retry path).
func (t *table) candidates(exclude string) []*domain.EndpointState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*domain.EndpointState, 0, len(t.order))
	for _, key := range t.order {
		if key == exclude {
			continue
		}
		state := t.byAddr[key]
		if state.Routable() {
			out = append(out, state)
		}
	}
	return out
}

// snapshot returns every tracked endpoint's point-in-time state.
func (t *table) snapshot() []domain.EndpointSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.EndpointSnapshot, 0, len(t.order))
	for _, key := range t.order {
		out = append(out, t.byAddr[key].Snapshot())
	}
	return out
}

// recoverCooldowns transitions any Failed endpoint whose cooldown has
// elapsed back to Unprobed, returning true if any transitioned.
func (t *table) recoverCooldowns(cooldown time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	any := false
	now := time.Now()
	for _, state := range t.byAddr {
		if state.MaybeRecoverFromCooldown(cooldown, now) {
			any = true
		}
	}
	return any
}

func (t *table) get(key string) (*domain.EndpointState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byAddr[key]
	return s, ok
}
