package queue

import (
	"context"
	"sync"

	"github.com/relayworks/threadrelay/internal/model"
)

// MemoryQueue is an in-process Queue for tests and local development.
// Requeued envelopes go to the back of the queue immediately instead of
// waiting out a visibility timeout.
type MemoryQueue struct {
	mu      sync.Mutex
	pending []model.Envelope
}

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Send(ctx context.Context, env model.Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, env)
	return nil
}

func (q *MemoryQueue) Receive(ctx context.Context, max int) ([]Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if max <= 0 {
		max = 1
	}
	n := len(q.pending)
	if n > max {
		n = max
	}

	deliveries := make([]Delivery, 0, n)
	for _, env := range q.pending[:n] {
		deliveries = append(deliveries, &memDelivery{env: env, q: q})
	}
	q.pending = q.pending[n:]
	return deliveries, nil
}

// Len returns the number of pending (not in-flight) envelopes.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

type memDelivery struct {
	env model.Envelope
	q   *MemoryQueue

	mu   sync.Mutex
	done bool
}

func (d *memDelivery) Envelope() model.Envelope { return d.env }

func (d *memDelivery) Ack() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.done = true
	return nil
}

func (d *memDelivery) Requeue() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return nil
	}
	d.done = true
	d.q.mu.Lock()
	d.q.pending = append(d.q.pending, d.env)
	d.q.mu.Unlock()
	return nil
}
