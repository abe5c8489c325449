package balancer

import (
	"errors"
	"math/rand"

	"github.com/thushan/olla/internal/core/domain"
)

// ErrNoCandidates is returned by selectWeighted when the candidate set
// is empty; callers decide whether that means "enqueue" or "fail fast".
var ErrNoCandidates = errors.New("no routable candidates")

// selectWeighted draws one candidate by weighted random selection:
// choose uniformly in [0, Σw) and walk candidates in table order,
// accumulating weight until the cumulative sum exceeds the draw. Ties
// (all-zero weight) break by iteration order (spec.md §4.2 step 4).
func selectWeighted(candidates []*domain.EndpointState) (*domain.EndpointState, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	total := 0.0
	for _, c := range candidates {
		total += c.Snapshot().Weight
	}

	if total <= 0 {
		return candidates[0], nil
	}

	draw := rand.Float64() * total
	sum := 0.0
	for _, c := range candidates {
		sum += c.Snapshot().Weight
		if draw < sum {
			return c, nil
		}
	}
	return candidates[len(candidates)-1], nil
}
