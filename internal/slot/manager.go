// Package slot owns the AdvertisingSlot lifecycle: grant on publish, renewal
// from paid invoices, the expiring-soon warning state, and expiry.
package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lodgepage_backend/internal/model"
	"lodgepage_backend/internal/store"
)

// ErrNoActiveSubscription means the host has no subscription in a state that
// permits granting slots.
var ErrNoActiveSubscription = errors.New("host has no active subscription")

// DefaultSlotPeriod is used when a subscription carries no expiry date yet
// (checkout processed but the first subscription.updated has not arrived).
const DefaultSlotPeriod = 30 * 24 * time.Hour

type Manager struct {
	Slots store.SlotStore
	Subs  store.SubscriptionStore
	Now   func() time.Time
}

func NewManager(slots store.SlotStore, subs store.SubscriptionStore) *Manager {
	return &Manager{Slots: slots, Subs: subs, Now: time.Now}
}

// Grant creates an ACTIVE slot for the listing if the host's entitlement
// allows. The capacity check is serialized per host inside the store, so two
// concurrent publishes at the limit cannot both win.
func (m *Manager) Grant(ctx context.Context, listing *model.Listing) (*model.AdvertisingSlot, error) {
	sub, err := m.Subs.GetSubscriptionByHost(ctx, listing.HostID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoActiveSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("load subscription for host %d: %w", listing.HostID, err)
	}
	if sub.Status != model.SubscriptionActive {
		return nil, ErrNoActiveSubscription
	}

	now := m.Now().UTC()
	expiresAt := now.Add(DefaultSlotPeriod)
	if sub.ExpiresAt != nil && sub.ExpiresAt.After(now) {
		expiresAt = sub.ExpiresAt.UTC()
	}

	slot := &model.AdvertisingSlot{
		SlotID:      uuid.NewString(),
		ListingID:   listing.ID,
		HostID:      listing.HostID,
		Status:      model.SlotActive,
		ActivatedAt: now,
		ExpiresAt:   expiresAt,
	}
	if err := m.Slots.CreateSlotConditional(ctx, slot, sub.MaxListings); err != nil {
		return nil, err
	}
	return slot, nil
}

// RenewForHost extends every ACTIVE/EXPIRING_SOON slot of the host to the
// invoice's period end. The extension target comes from the event payload,
// so a replayed or late invoice is a no-op once applied (expiresAt never
// moves backwards). DO_NOT_RENEW slots are deliberately skipped.
func (m *Manager) RenewForHost(ctx context.Context, hostID uint, periodEnd time.Time) (int, error) {
	slots, err := m.Slots.ListLiveSlotsByHost(ctx, hostID)
	if err != nil {
		return 0, fmt.Errorf("list slots for host %d: %w", hostID, err)
	}

	renewed := 0
	for i := range slots {
		s := &slots[i]
		if s.Status == model.SlotDoNotRenew {
			continue
		}
		if !periodEnd.After(s.ExpiresAt) {
			continue
		}
		s.ExpiresAt = periodEnd.UTC()
		s.Status = model.SlotActive
		s.RenewalCount++
		if err := m.Slots.SaveSlot(ctx, s); err != nil {
			return renewed, fmt.Errorf("renew slot %s: %w", s.SlotID, err)
		}
		renewed++
	}
	return renewed, nil
}

// MarkExpiringSoon moves an ACTIVE slot into the warning state. Any other
// status is left alone and reported as unchanged.
func (m *Manager) MarkExpiringSoon(ctx context.Context, s *model.AdvertisingSlot) (bool, error) {
	if s.Status != model.SlotActive {
		return false, nil
	}
	s.Status = model.SlotExpiringSoon
	if err := m.Slots.SaveSlot(ctx, s); err != nil {
		return false, fmt.Errorf("mark slot %s expiring: %w", s.SlotID, err)
	}
	return true, nil
}

// Expire terminates the slot. Expiring an already-EXPIRED slot is a no-op,
// so the sweep can be re-run safely.
func (m *Manager) Expire(ctx context.Context, s *model.AdvertisingSlot) (bool, error) {
	if s.Status == model.SlotExpired {
		return false, nil
	}
	s.Status = model.SlotExpired
	if err := m.Slots.SaveSlot(ctx, s); err != nil {
		return false, fmt.Errorf("expire slot %s: %w", s.SlotID, err)
	}
	return true, nil
}

// FlagDoNotRenewForHost mirrors a provider-side cancel-at-period-end: every
// live slot of the host lapses at its own expiry date instead of renewing.
func (m *Manager) FlagDoNotRenewForHost(ctx context.Context, hostID uint) (int, error) {
	slots, err := m.Slots.ListLiveSlotsByHost(ctx, hostID)
	if err != nil {
		return 0, fmt.Errorf("list slots for host %d: %w", hostID, err)
	}
	flagged := 0
	for i := range slots {
		s := &slots[i]
		if s.Status == model.SlotDoNotRenew {
			continue
		}
		s.Status = model.SlotDoNotRenew
		if err := m.Slots.SaveSlot(ctx, s); err != nil {
			return flagged, fmt.Errorf("flag slot %s do-not-renew: %w", s.SlotID, err)
		}
		flagged++
	}
	return flagged, nil
}

// SetDoNotRenew flags the listing's live slot to run out naturally at its
// expiry date instead of renewing with the next invoice.
func (m *Manager) SetDoNotRenew(ctx context.Context, listingID, hostID uint) (*model.AdvertisingSlot, error) {
	s, err := m.Slots.GetLiveSlotByListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if s.HostID != hostID {
		return nil, store.ErrNotFound
	}
	if s.Status == model.SlotDoNotRenew {
		return s, nil
	}
	s.Status = model.SlotDoNotRenew
	if err := m.Slots.SaveSlot(ctx, s); err != nil {
		return nil, fmt.Errorf("flag slot %s do-not-renew: %w", s.SlotID, err)
	}
	return s, nil
}
