package queue

import (
	"context"
	"log"
	"sync"
	"time"
)

// Handler processes one envelope end-to-end. A nil return acknowledges the
// message, an error sends it back for redelivery.
type Handler func(ctx context.Context, env Envelope) error

// Consumer runs a fixed pool of workers over the queue. Workers share no
// in-memory state; all coordination goes through the stores.
type Consumer struct {
	Queue   Queue
	Handle  Handler
	Workers int
	// ReclaimEvery is how often expired leases are swept back to pending.
	// Zero disables the reclaimer (memory queue, tests).
	ReclaimEvery time.Duration
}

func NewConsumer(q Queue, handle Handler) *Consumer {
	return &Consumer{Queue: q, Handle: handle, Workers: 10, ReclaimEvery: time.Minute}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	workers := c.Workers
	if workers <= 0 {
		workers = 10
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.workerLoop(ctx)
		}()
	}

	if rq, ok := c.Queue.(*RedisQueue); ok && c.ReclaimEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(c.ReclaimEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := rq.Reclaim(ctx); err != nil {
						log.Printf("lease reclaim failed: %v", err)
					}
				}
			}
		}()
	}

	wg.Wait()
}

func (c *Consumer) workerLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := c.ProcessOne(ctx); err != nil && ctx.Err() == nil {
			log.Printf("queue worker: %v", err)
			time.Sleep(time.Second)
		}
	}
}

// ProcessOne handles at most one message and reports whether one was seen.
// Exposed so tests can drain a queue deterministically.
func (c *Consumer) ProcessOne(ctx context.Context) (bool, error) {
	env, err := c.Queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if env == nil {
		return false, nil
	}

	if err := c.Handle(ctx, *env); err != nil {
		log.Printf("event %s (%s) failed on attempt %d: %v", env.ID, env.Type, env.Attempts+1, err)
		if nerr := c.Queue.Nack(ctx, *env); nerr != nil {
			return true, nerr
		}
		return true, nil
	}
	if err := c.Queue.Ack(ctx, *env); err != nil {
		return true, err
	}
	return true, nil
}

// Drain processes messages until the queue reports empty. Test helper.
func (c *Consumer) Drain(ctx context.Context) error {
	for {
		seen, err := c.ProcessOne(ctx)
		if err != nil {
			return err
		}
		if !seen {
			return nil
		}
	}
}
