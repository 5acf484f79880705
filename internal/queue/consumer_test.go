package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConsumerRetriesFailedHandler(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	var mu sync.Mutex
	attempts := 0
	consumer := NewConsumer(q, func(_ context.Context, env Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("store briefly unavailable")
		}
		return nil
	})

	require.NoError(t, q.Enqueue(ctx, Envelope{ID: "evt_1", Type: "invoice.paid"}))
	require.NoError(t, consumer.Drain(ctx))

	require.Equal(t, 2, attempts)
	require.Zero(t, q.Len())
	require.Empty(t, q.DeadLetters())
}

func TestConsumerDeadLettersPoisonMessage(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	var mu sync.Mutex
	handled := make(map[string]int)
	consumer := NewConsumer(q, func(_ context.Context, env Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		handled[env.ID]++
		if env.ID == "evt_poison" {
			return errors.New("unparseable payload")
		}
		return nil
	})

	require.NoError(t, q.Enqueue(ctx, Envelope{ID: "evt_poison", Type: "invoice.paid"}))
	require.NoError(t, q.Enqueue(ctx, Envelope{ID: "evt_ok", Type: "invoice.paid"}))
	require.NoError(t, consumer.Drain(ctx))

	// The poison message got every allowed attempt, then moved aside.
	require.Equal(t, MaxAttempts, handled["evt_poison"])
	require.Equal(t, 1, handled["evt_ok"])

	dead := q.DeadLetters()
	require.Len(t, dead, 1)
	require.Equal(t, "evt_poison", dead[0].ID)
	require.Equal(t, MaxAttempts, dead[0].Attempts)
	require.Zero(t, q.Len())
}

func TestProcessOneReportsIdleQueue(t *testing.T) {
	q := NewMemoryQueue()
	consumer := NewConsumer(q, func(_ context.Context, _ Envelope) error { return nil })

	seen, err := consumer.ProcessOne(context.Background())
	require.NoError(t, err)
	require.False(t, seen)
}
