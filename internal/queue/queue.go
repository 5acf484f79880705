// Package queue buffers externally-delivered billing events between the
// webhook edge and the processor: bounded-concurrency consumption, retry on
// handler failure, and a dead-letter path for poison messages.
package queue

import (
	"context"
	"sync"
	"time"
)

// MaxAttempts is how many deliveries a message gets before it is dead-lettered.
const MaxAttempts = 3

// Envelope wraps one provider event on its way through the buffer.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    []byte          `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

type Queue interface {
	Enqueue(ctx context.Context, env Envelope) error
	// Dequeue blocks up to the implementation's poll window and returns nil
	// when nothing arrived (idle batching).
	Dequeue(ctx context.Context) (*Envelope, error)
	// Ack removes a delivered message for good.
	Ack(ctx context.Context, env Envelope) error
	// Nack returns a failed message for redelivery, or dead-letters it once
	// its attempts are spent.
	Nack(ctx context.Context, env Envelope) error
}

// MemoryQueue is the in-process Queue used by unit tests.
type MemoryQueue struct {
	mu      sync.Mutex
	pending []Envelope
	dead    []Envelope
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(_ context.Context, env Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if env.EnqueuedAt.IsZero() {
		env.EnqueuedAt = time.Now().UTC()
	}
	q.pending = append(q.pending, env)
	return nil
}

func (q *MemoryQueue) Dequeue(_ context.Context) (*Envelope, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	env := q.pending[0]
	q.pending = q.pending[1:]
	return &env, nil
}

func (q *MemoryQueue) Ack(_ context.Context, _ Envelope) error {
	return nil
}

func (q *MemoryQueue) Nack(_ context.Context, env Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	env.Attempts++
	if env.Attempts >= MaxAttempts {
		q.dead = append(q.dead, env)
		return nil
	}
	// Requeued at the back, standing in for the redis delay set: everything
	// already pending runs before the retry.
	q.pending = append(q.pending, env)
	return nil
}

// DeadLetters returns the poison messages collected so far.
func (q *MemoryQueue) DeadLetters() []Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Envelope, len(q.dead))
	copy(out, q.dead)
	return out
}

// Len reports the number of pending messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
