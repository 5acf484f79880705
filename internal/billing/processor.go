package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"

	"lodgepage_backend/internal/model"
	"lodgepage_backend/internal/store"
)

// Processor is the per-event unit of work: parse, idempotency check, apply,
// mark processed. A nil return acknowledges the message; an error sends it
// back to the queue for redelivery.
type Processor struct {
	Ledger store.LedgerStore
	Sync   *Synchronizer
	Now    func() time.Time
}

func NewProcessor(ledger store.LedgerStore, sync *Synchronizer) *Processor {
	return &Processor{Ledger: ledger, Sync: sync, Now: time.Now}
}

func (p *Processor) Process(ctx context.Context, eventID, eventType string, payload []byte) error {
	ev, err := ParseEvent(eventID, eventType, payload)
	if errors.Is(err, ErrUnknownEventType) {
		// The provider adds event kinds faster than we handle them; dropping
		// is correct, failing would poison the queue.
		log.Printf("dropping unhandled event %s (%s)", eventID, eventType)
		return nil
	}
	if err != nil {
		// Malformed payload for a known type: retrying cannot fix it.
		log.Printf("dropping malformed event %s (%s): %v", eventID, eventType, err)
		return nil
	}

	done, err := p.Ledger.HasProcessed(ctx, eventID)
	if err != nil {
		return fmt.Errorf("ledger check for %s: %w", eventID, err)
	}
	if done {
		return nil
	}

	if err := p.Sync.Apply(ctx, ev); err != nil {
		return err
	}

	// The ledger mark is a fast path, not the correctness mechanism: the
	// handlers above are idempotent on their own, so if this write fails and
	// the event is redelivered, re-applying it is harmless.
	if err := p.Ledger.MarkProcessed(ctx, &model.ProcessedEvent{
		EventID:     eventID,
		EventType:   eventType,
		Payload:     datatypes.JSON(payload),
		ProcessedAt: p.Now().UTC(),
	}); err != nil {
		log.Printf("could not mark event %s processed: %v", eventID, err)
	}
	return nil
}
