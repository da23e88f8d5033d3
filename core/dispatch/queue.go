package dispatch

import (
	"container/heap"
	"sync"

	"github.com/carelink/medfleet/core/model"
)

// pending is a queued request awaiting a scheduling slot. The outcome is
// delivered on done.
type pending struct {
	req  model.DeliveryRequest
	done chan outcome
	seq  uint64 // FIFO tie-break within a priority level
}

type outcome struct {
	delivery model.Delivery
	err      error
}

// requestQueue orders pending requests by priority, FIFO within a level.
// Only queued requests are reordered; a request mid-assignment is never
// preempted.
type requestQueue struct {
	mu    sync.Mutex
	items pendingHeap
	seq   uint64
	max   int
	wake  chan struct{}
}

func newRequestQueue(capacity int) *requestQueue {
	return &requestQueue{max: capacity, wake: make(chan struct{}, 1)}
}

// push enqueues the request; reports false when the queue is full.
func (q *requestQueue) push(p *pending) bool {
	q.mu.Lock()
	if q.max > 0 && q.items.Len() >= q.max {
		q.mu.Unlock()
		return false
	}
	q.seq++
	p.seq = q.seq
	heap.Push(&q.items, p)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// pop removes the highest-priority request, or nil when empty.
func (q *requestQueue) pop() *pending {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.items).(*pending)
}

func (q *requestQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

type pendingHeap []*pending

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	if h[i].req.Priority != h[j].req.Priority {
		return h[i].req.Priority > h[j].req.Priority
	}
	if !h[i].req.RequestedAt.Equal(h[j].req.RequestedAt) {
		return h[i].req.RequestedAt.Before(h[j].req.RequestedAt)
	}
	return h[i].seq < h[j].seq
}

func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) { *h = append(*h, x.(*pending)) }

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
