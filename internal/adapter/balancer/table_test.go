package balancer

import (
	"net"
	"testing"
	"time"

	"github.com/thushan/olla/internal/core/domain"
)

func addr(port int) *net.TCPAddr {
	return &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}
}

func TestTable_ReconcileInsertsUnprobed(t *testing.T) {
	tb := newTable()
	set := domain.NewEndpointSet([]domain.WeightedAddress{{Addr: addr(9001), Weight: 1.0}})

	tb.reconcile(set)

	cands := tb.candidates("")
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	if cands[0].Snapshot().Status != domain.StatusUnprobed {
		t.Errorf("expected Unprobed, got %s", cands[0].Snapshot().Status)
	}
}

func TestTable_ReconcileIsIdempotent(t *testing.T) {
	tb := newTable()
	set := domain.NewEndpointSet([]domain.WeightedAddress{
		{Addr: addr(9001), Weight: 1.0},
		{Addr: addr(9002), Weight: 2.0},
	})

	tb.reconcile(set)
	first := tb.snapshot()
	tb.reconcile(set)
	second := tb.snapshot()

	if len(first) != len(second) {
		t.Fatalf("expected stable table size, got %d then %d", len(first), len(second))
	}
}

func TestTable_RemovalAtomicity(t *testing.T) {
	tb := newTable()
	a := addr(9001)
	full := domain.NewEndpointSet([]domain.WeightedAddress{{Addr: a, Weight: 1.0}})
	empty := domain.NewEndpointSet(nil)

	tb.reconcile(full)
	tb.reconcile(empty)

	if len(tb.candidates("")) != 0 {
		t.Fatal("expected address with no in-flight work to be removed once absent from an update")
	}

	tb.reconcile(full)
	cands := tb.candidates("")
	if len(cands) != 1 || cands[0].Snapshot().Weight != 1.0 {
		t.Fatalf("expected address to be restored at its given weight, got %+v", cands)
	}
}

func TestTable_TombstoneRetainsUntilDrained(t *testing.T) {
	tb := newTable()
	a := addr(9001)
	full := domain.NewEndpointSet([]domain.WeightedAddress{{Addr: a, Weight: 1.0}})
	tb.reconcile(full)

	state, ok := tb.get(a.String())
	if !ok {
		t.Fatal("expected endpoint in table")
	}
	state.BeginConnect() // simulate in-flight work

	tb.reconcile(domain.NewEndpointSet(nil))

	if len(tb.candidates("")) != 0 {
		t.Fatal("tombstoned endpoint must not be a selection candidate")
	}
	if _, ok := tb.get(a.String()); !ok {
		t.Fatal("tombstoned endpoint with in-flight work must not be removed yet")
	}

	state.ConnectSucceeded()
	state.SessionEnded()
	tb.reconcile(domain.NewEndpointSet(nil))
	if _, ok := tb.get(a.String()); ok {
		t.Fatal("expected drained tombstoned endpoint to be removed on the next reconcile")
	}
}

func TestTable_RecoverCooldowns(t *testing.T) {
	tb := newTable()
	a := addr(9001)
	tb.reconcile(domain.NewEndpointSet([]domain.WeightedAddress{{Addr: a, Weight: 1.0}}))

	state, _ := tb.get(a.String())
	state.BeginConnect()
	state.ConnectFailed(1, time.Now().Add(-time.Hour))

	if len(tb.candidates("")) != 0 {
		t.Fatal("expected Failed endpoint to be excluded from candidates")
	}

	if !tb.recoverCooldowns(time.Millisecond) {
		t.Fatal("expected cooldown recovery after elapsed cooldown")
	}
	if len(tb.candidates("")) != 1 {
		t.Fatal("expected endpoint to be routable again after cooldown recovery")
	}
}
