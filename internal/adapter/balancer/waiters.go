package balancer

import (
	"container/list"
	"sync"

	"github.com/thushan/olla/internal/core/domain"
)

// waiterQueue is a bounded strict-FIFO queue of connect requests that
// could not be served immediately (spec.md §4.2 waiter draining, §5
// ordering guarantees).
type waiterQueue struct {
	mu       sync.Mutex
	items    *list.List
	capacity int
}

func newWaiterQueue(capacity int) *waiterQueue {
	return &waiterQueue{
		items:    list.New(),
		capacity: capacity,
	}
}

// enqueue appends w if there is room, reporting false if the queue is
// at capacity.
func (q *waiterQueue) enqueue(w *domain.Waiter) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() >= q.capacity {
		return false
	}
	q.items.PushBack(w)
	return true
}

func (q *waiterQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// drain removes every waiter from the queue in FIFO order, discarding
// any whose downstream socket has already closed, and hands the rest to
// fn for re-selection. fn receives waiters strictly in enqueue order.
// The number of waiters discarded for a closed downstream is returned
// so the caller can record it against the waiters-discarded metric.
func (q *waiterQueue) drain(fn func(*domain.Waiter)) int {
	q.mu.Lock()
	var live []*domain.Waiter
	discarded := 0
	for e := q.items.Front(); e != nil; e = e.Next() {
		w := e.Value.(*domain.Waiter)
		if w.Discarded() {
			discarded++
			continue
		}
		live = append(live, w)
	}
	q.items.Init()
	q.mu.Unlock()

	for _, w := range live {
		fn(w)
	}
	return discarded
}
