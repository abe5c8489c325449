package balancer

import (
	"net"
	"testing"

	"github.com/thushan/olla/internal/core/domain"
)

func TestSelectWeighted_EmptyCandidates(t *testing.T) {
	_, err := selectWeighted(nil)
	if err != ErrNoCandidates {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
}

func TestSelectWeighted_SingleCandidate(t *testing.T) {
	a := domain.NewEndpointState(addr(9001), 1.0)
	picked, err := selectWeighted([]*domain.EndpointState{a})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if picked != a {
		t.Fatal("expected the single candidate to always be picked")
	}
}

func TestSelectWeighted_ConvergesToWeights(t *testing.T) {
	a := domain.NewEndpointState(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}, 1.0)
	b := domain.NewEndpointState(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 2}, 3.0)
	candidates := []*domain.EndpointState{a, b}

	const n = 10000
	var countA, countB int
	for i := 0; i < n; i++ {
		picked, err := selectWeighted(candidates)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if picked == a {
			countA++
		} else {
			countB++
		}
	}

	// expected ~2500/7500 split; allow a generous tolerance since this
	// is a statistical property, not an exact one
	wantA := n / 4
	tolerance := n / 20
	if diff := countA - wantA; diff < -tolerance || diff > tolerance {
		t.Errorf("expected ~%d draws for the weight-1.0 endpoint, got %d (b=%d)", wantA, countA, countB)
	}
}
