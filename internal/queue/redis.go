package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	pendingKey    = "billing:events:pending"
	processingKey = "billing:events:processing"
	leaseKey      = "billing:events:leases"
	delayedKey    = "billing:events:delayed"
	deadKey       = "billing:events:dead"
)

// RedisQueue is the durable Queue: a pending list, a processing list whose
// entries hold a lease, and a dead-letter list. A reclaimer loop returns
// messages whose lease expired (consumer died mid-flight) to pending.
type RedisQueue struct {
	client *redis.Client

	// PollWindow is how long a Dequeue blocks while idle.
	PollWindow time.Duration
	// Visibility is the lease length; it must exceed worst-case handler time.
	Visibility time.Duration
	// RetryDelay is the base redelivery delay, doubled per attempt. It gives
	// an out-of-order event's prerequisite time to land before the retry
	// burns another attempt.
	RetryDelay time.Duration
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{
		client:     client,
		PollWindow: 5 * time.Second,
		Visibility: 2 * time.Minute,
		RetryDelay: 30 * time.Second,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, env Envelope) error {
	if env.EnqueuedAt.IsZero() {
		env.EnqueuedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope %s: %w", env.ID, err)
	}
	return q.client.LPush(ctx, pendingKey, raw).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Envelope, error) {
	raw, err := q.client.BLMove(ctx, pendingKey, processingKey, "RIGHT", "LEFT", q.PollWindow).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	deadline := float64(time.Now().Add(q.Visibility).Unix())
	if err := q.client.ZAdd(ctx, leaseKey, redis.Z{Score: deadline, Member: raw}).Err(); err != nil {
		log.Printf("could not record lease: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		// Unreadable entry: remove it so it cannot wedge the queue.
		q.remove(ctx, raw)
		q.client.LPush(ctx, deadKey, raw)
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

func (q *RedisQueue) Ack(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	q.remove(ctx, string(raw))
	return nil
}

func (q *RedisQueue) Nack(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	q.remove(ctx, string(raw))

	env.Attempts++
	retry, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if env.Attempts >= MaxAttempts {
		log.Printf("ALARM: event %s (%s) dead-lettered after %d attempts", env.ID, env.Type, env.Attempts)
		return q.client.LPush(ctx, deadKey, retry).Err()
	}

	// Not straight back to pending: an instant requeue would burn every
	// attempt within milliseconds, so a reordered event could dead-letter
	// before its prerequisite event arrives.
	readyAt := float64(time.Now().Add(q.retryDelayFor(env.Attempts)).Unix())
	return q.client.ZAdd(ctx, delayedKey, redis.Z{Score: readyAt, Member: retry}).Err()
}

func (q *RedisQueue) retryDelayFor(attempts int) time.Duration {
	delay := q.RetryDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
	}
	return delay
}

// Reclaim returns expired-lease messages and due retries to pending. Run it
// periodically from the consumer.
func (q *RedisQueue) Reclaim(ctx context.Context) (int, error) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	stale, err := q.client.ZRangeByScore(ctx, leaseKey, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return 0, err
	}
	for _, raw := range stale {
		q.remove(ctx, raw)
		if err := q.client.LPush(ctx, pendingKey, raw).Err(); err != nil {
			return 0, err
		}
	}
	if len(stale) > 0 {
		log.Printf("reclaimed %d expired-lease events", len(stale))
	}

	due, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return len(stale), err
	}
	for _, raw := range due {
		if err := q.client.ZRem(ctx, delayedKey, raw).Err(); err != nil {
			return len(stale), err
		}
		if err := q.client.LPush(ctx, pendingKey, raw).Err(); err != nil {
			return len(stale), err
		}
	}
	return len(stale) + len(due), nil
}

func (q *RedisQueue) remove(ctx context.Context, raw string) {
	if err := q.client.LRem(ctx, processingKey, 1, raw).Err(); err != nil {
		log.Printf("could not remove processing entry: %v", err)
	}
	if err := q.client.ZRem(ctx, leaseKey, raw).Err(); err != nil {
		log.Printf("could not remove lease entry: %v", err)
	}
}
