// Package sweep drives the time-based slot transitions the event stream
// cannot: the expiring-soon warning and the expiry itself.
package sweep

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"lodgepage_backend/internal/model"
	"lodgepage_backend/internal/notify"
	"lodgepage_backend/internal/publish"
	"lodgepage_backend/internal/slot"
	"lodgepage_backend/internal/store"
)

const (
	// WarningWindow is how far ahead of expiry the warning transition fires.
	WarningWindow = 7 * 24 * time.Hour

	// UnpaidGrace is how long a SUSPENDED subscription keeps its slots
	// before the sweep revokes them regardless of their own expiry dates.
	UnpaidGrace = 7 * 24 * time.Hour

	defaultParallelism = 4
)

// Report counts per-item outcomes of one sweep run. One failing slot never
// aborts the batch.
type Report struct {
	Scanned     int
	Transitions int32
	Failures    int32
}

type Sweeper struct {
	Store       store.Store
	Slots       *slot.Manager
	Coordinator *publish.Coordinator
	Notifier    notify.Dispatcher
	Now         func() time.Time
	Parallelism int
}

func NewSweeper(st store.Store, slots *slot.Manager, coord *publish.Coordinator, notifier notify.Dispatcher) *Sweeper {
	return &Sweeper{
		Store:       st,
		Slots:       slots,
		Coordinator: coord,
		Notifier:    notifier,
		Now:         time.Now,
		Parallelism: defaultParallelism,
	}
}

// RunExpiryWarning moves ACTIVE slots expiring inside the warning window to
// EXPIRING_SOON and notifies their hosts. No visibility change.
func (s *Sweeper) RunExpiryWarning(ctx context.Context) Report {
	now := s.Now().UTC()
	slots, err := s.Store.ListSlotsExpiringBefore(ctx, now.Add(WarningWindow), []model.SlotStatus{model.SlotActive})
	if err != nil {
		log.Printf("warning sweep: could not list slots: %v", err)
		return Report{}
	}

	report := Report{Scanned: len(slots)}
	g, gctx := s.group(ctx)
	for i := range slots {
		sl := slots[i]
		g.Go(func() error {
			changed, err := s.Slots.MarkExpiringSoon(gctx, &sl)
			if err != nil {
				atomic.AddInt32(&report.Failures, 1)
				log.Printf("warning sweep: slot %s: %v", sl.SlotID, err)
				return nil
			}
			if !changed {
				return nil
			}
			atomic.AddInt32(&report.Transitions, 1)
			s.Notifier.Dispatch(notify.TemplateSlotExpiryWarning, sl.HostID, map[string]interface{}{
				"listing_id": sl.ListingID,
				"expires_at": sl.ExpiresAt,
			})
			return nil
		})
	}
	_ = g.Wait()

	log.Printf("warning sweep: %d scanned, %d warned, %d failed",
		report.Scanned, report.Transitions, report.Failures)
	return report
}

// RunExpiryStep expires every slot whose date has passed, plus the slots of
// hosts whose subscription has been suspended past the unpaid grace period,
// and takes the affected listings offline.
func (s *Sweeper) RunExpiryStep(ctx context.Context) Report {
	now := s.Now().UTC()
	due, err := s.Store.ListSlotsExpiringBefore(ctx, now,
		[]model.SlotStatus{model.SlotActive, model.SlotExpiringSoon, model.SlotDoNotRenew})
	if err != nil {
		log.Printf("expiry sweep: could not list slots: %v", err)
		return Report{}
	}

	batch := due
	seen := make(map[string]bool, len(due))
	for _, sl := range due {
		seen[sl.SlotID] = true
	}
	for _, sl := range s.unpaidGraceSlots(ctx, now) {
		if !seen[sl.SlotID] {
			batch = append(batch, sl)
		}
	}

	report := Report{Scanned: len(batch)}
	g, gctx := s.group(ctx)
	for i := range batch {
		sl := batch[i]
		g.Go(func() error {
			if err := s.expireOne(gctx, sl); err != nil {
				atomic.AddInt32(&report.Failures, 1)
				log.Printf("expiry sweep: slot %s: %v", sl.SlotID, err)
				return nil
			}
			atomic.AddInt32(&report.Transitions, 1)
			return nil
		})
	}
	_ = g.Wait()

	log.Printf("expiry sweep: %d scanned, %d expired, %d failed",
		report.Scanned, report.Transitions, report.Failures)
	return report
}

func (s *Sweeper) expireOne(ctx context.Context, sl model.AdvertisingSlot) error {
	changed, err := s.Slots.Expire(ctx, &sl)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	// The listing may already be offline (manual unpublish); Unpublish is a
	// no-op then.
	if err := s.Coordinator.Unpublish(ctx, sl.ListingID); err != nil {
		return err
	}

	s.Notifier.Dispatch(notify.TemplateSlotExpired, sl.HostID, map[string]interface{}{
		"listing_id": sl.ListingID,
	})
	return nil
}

// unpaidGraceSlots collects live slots of hosts suspended longer than the
// grace period.
func (s *Sweeper) unpaidGraceSlots(ctx context.Context, now time.Time) []model.AdvertisingSlot {
	subs, err := s.Store.ListSuspendedBefore(ctx, now.Add(-UnpaidGrace))
	if err != nil {
		log.Printf("expiry sweep: could not list suspended subscriptions: %v", err)
		return nil
	}
	var out []model.AdvertisingSlot
	for _, sub := range subs {
		slots, err := s.Store.ListLiveSlotsByHost(ctx, sub.HostID)
		if err != nil {
			log.Printf("expiry sweep: could not list slots for host %d: %v", sub.HostID, err)
			continue
		}
		out = append(out, slots...)
	}
	return out
}

func (s *Sweeper) group(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	limit := s.Parallelism
	if limit <= 0 {
		limit = defaultParallelism
	}
	g.SetLimit(limit)
	return g, gctx
}
