package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"lodgepage_backend/internal/model"
	"lodgepage_backend/internal/notify"
	"lodgepage_backend/internal/slot"
	"lodgepage_backend/internal/store"
	"lodgepage_backend/pkg/plan"
)

// Synchronizer reconciles HostSubscription state from provider events and
// drives slot renewals. Every handler derives the new state from the event's
// own payload, never from arrival order, so duplicates and reordering for the
// same host converge on the same final state.
type Synchronizer struct {
	Subs     store.SubscriptionStore
	Plans    store.PlanStore
	Slots    *slot.Manager
	Notifier notify.Dispatcher
	Now      func() time.Time
}

func NewSynchronizer(st store.Store, slots *slot.Manager, notifier notify.Dispatcher) *Synchronizer {
	return &Synchronizer{Subs: st, Plans: st, Slots: slots, Notifier: notifier, Now: time.Now}
}

// Apply dispatches one event. The switch is exhaustive over the Event union;
// an unlisted variant is a programming error, not a silent drop.
func (s *Synchronizer) Apply(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case CheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, e)
	case SubscriptionUpdated:
		return s.applySubscriptionUpdated(ctx, e)
	case SubscriptionDeleted:
		return s.applySubscriptionDeleted(ctx, e)
	case InvoicePaid:
		return s.applyInvoicePaid(ctx, e)
	case InvoicePaymentFailed:
		return s.applyInvoicePaymentFailed(ctx, e)
	case CustomerDeleted:
		return s.applyCustomerDeleted(ctx, e)
	case ProductChanged:
		return s.applyProductChanged(ctx, e)
	case PriceChanged:
		return s.applyPriceChanged(ctx, e)
	default:
		return fmt.Errorf("no handler for event %T", ev)
	}
}

func (s *Synchronizer) applyCheckoutCompleted(ctx context.Context, ev CheckoutCompleted) error {
	planName := "unknown"
	planID := uint(0)
	maxListings := plan.DefaultMaxListings
	if ev.PriceID != "" {
		p, err := s.Plans.GetPlanByStripePrice(ctx, ev.PriceID)
		if err == nil {
			planName = p.Name
			planID = p.ID
			maxListings = p.MaxListings
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("look up plan %s: %w", ev.PriceID, err)
		} else {
			log.Printf("checkout %s references unknown price %s, granting single-listing entitlement", ev.ID, ev.PriceID)
		}
	}

	sub, err := s.Subs.GetSubscriptionByHost(ctx, ev.HostID)
	if errors.Is(err, store.ErrNotFound) {
		sub = &model.HostSubscription{
			HostID:    ev.HostID,
			StartedAt: s.Now().UTC(),
		}
		err = nil
	}
	if err != nil {
		return fmt.Errorf("load subscription for host %d: %w", ev.HostID, err)
	}

	// Re-checkout of an existing host reuses the one-per-host row.
	sub.PlanID = planID
	sub.PlanName = planName
	sub.MaxListings = maxListings
	sub.Status = model.SubscriptionActive
	sub.StripeCustomerID = ev.CustomerID
	sub.StripeSubID = ev.SubscriptionID
	sub.CancelledAt = nil
	sub.SuspendedAt = nil

	if err := s.Subs.SaveSubscription(ctx, sub); err != nil {
		return fmt.Errorf("save subscription for host %d: %w", ev.HostID, err)
	}

	s.Notifier.Dispatch(notify.TemplateSubscriptionStarted, sub.HostID, map[string]interface{}{
		"plan":         sub.PlanName,
		"max_listings": sub.MaxListings,
	})
	return nil
}

func (s *Synchronizer) applySubscriptionUpdated(ctx context.Context, ev SubscriptionUpdated) error {
	sub, err := s.findSubscription(ctx, ev.SubscriptionID, ev.CustomerID)
	if err != nil {
		// Likely the checkout event has not landed yet; redelivery will
		// find the row.
		return fmt.Errorf("subscription update %s: %w", ev.SubscriptionID, err)
	}

	if ev.PriceID != "" {
		p, err := s.Plans.GetPlanByStripePrice(ctx, ev.PriceID)
		if err == nil {
			sub.PlanID = p.ID
			sub.PlanName = p.Name
			sub.MaxListings = p.MaxListings
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("look up plan %s: %w", ev.PriceID, err)
		}
	}

	// expiresAt only moves forward: a late-arriving update for an older
	// billing cycle must not rewind what a paid invoice already extended.
	if !ev.CurrentPeriodEnd.IsZero() {
		if sub.ExpiresAt == nil || ev.CurrentPeriodEnd.After(*sub.ExpiresAt) {
			end := ev.CurrentPeriodEnd
			sub.ExpiresAt = &end
		}
	}

	switch mapProviderStatus(ev.Status) {
	case model.SubscriptionActive:
		sub.Status = model.SubscriptionActive
		sub.SuspendedAt = nil
	case model.SubscriptionSuspended:
		if sub.Status == model.SubscriptionActive {
			now := s.Now().UTC()
			sub.SuspendedAt = &now
		}
		sub.Status = model.SubscriptionSuspended
	case model.SubscriptionCancelled:
		if sub.CancelledAt == nil {
			now := s.Now().UTC()
			sub.CancelledAt = &now
		}
		sub.Status = model.SubscriptionCancelled
	}

	if err := s.Subs.SaveSubscription(ctx, sub); err != nil {
		return fmt.Errorf("save subscription %s: %w", ev.SubscriptionID, err)
	}

	// Cancel-at-period-end: the subscription stays live but its slots must
	// not pick up the next invoice's renewal. Host-set flags are left alone
	// when the host un-cancels, so only the true direction is mirrored.
	if ev.CancelAtPeriodEnd {
		if _, err := s.Slots.FlagDoNotRenewForHost(ctx, sub.HostID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synchronizer) applySubscriptionDeleted(ctx context.Context, ev SubscriptionDeleted) error {
	sub, err := s.findSubscription(ctx, ev.SubscriptionID, ev.CustomerID)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("subscription deletion %s for unknown subscription, dropping", ev.ID)
		return nil
	}
	if err != nil {
		return err
	}

	if sub.Status == model.SubscriptionCancelled {
		return nil
	}

	// Grace policy: slots are not revoked here, they run out at their own
	// expiry dates.
	sub.Status = model.SubscriptionCancelled
	cancelledAt := ev.EndedAt
	if cancelledAt.IsZero() {
		cancelledAt = s.Now().UTC()
	}
	sub.CancelledAt = &cancelledAt
	if err := s.Subs.SaveSubscription(ctx, sub); err != nil {
		return fmt.Errorf("cancel subscription %s: %w", ev.SubscriptionID, err)
	}

	s.Notifier.Dispatch(notify.TemplateSubscriptionCancelled, sub.HostID, map[string]interface{}{
		"plan": sub.PlanName,
	})
	return nil
}

func (s *Synchronizer) applyInvoicePaid(ctx context.Context, ev InvoicePaid) error {
	sub, err := s.findSubscription(ctx, ev.SubscriptionID, ev.CustomerID)
	if err != nil {
		return fmt.Errorf("invoice %s: %w", ev.ID, err)
	}

	if sub.Status == model.SubscriptionSuspended {
		sub.Status = model.SubscriptionActive
		sub.SuspendedAt = nil
	}
	if sub.ExpiresAt == nil || ev.PeriodEnd.After(*sub.ExpiresAt) {
		end := ev.PeriodEnd
		sub.ExpiresAt = &end
	}
	if err := s.Subs.SaveSubscription(ctx, sub); err != nil {
		return fmt.Errorf("save subscription for invoice %s: %w", ev.ID, err)
	}

	renewed, err := s.Slots.RenewForHost(ctx, sub.HostID, ev.PeriodEnd)
	if err != nil {
		return fmt.Errorf("renew slots for host %d: %w", sub.HostID, err)
	}
	if renewed > 0 {
		s.Notifier.Dispatch(notify.TemplateSubscriptionRenewed, sub.HostID, map[string]interface{}{
			"plan":         sub.PlanName,
			"max_listings": sub.MaxListings,
			"slots":        renewed,
			"paid_until":   ev.PeriodEnd,
		})
	}
	return nil
}

func (s *Synchronizer) applyInvoicePaymentFailed(ctx context.Context, ev InvoicePaymentFailed) error {
	sub, err := s.findSubscription(ctx, ev.SubscriptionID, ev.CustomerID)
	if err != nil {
		return fmt.Errorf("invoice failure %s: %w", ev.ID, err)
	}

	// Slots are not revoked here; the expiry sweep takes them once the
	// unpaid grace period runs out.
	if sub.Status != model.SubscriptionActive {
		return nil
	}
	now := s.Now().UTC()
	sub.Status = model.SubscriptionSuspended
	sub.SuspendedAt = &now
	if err := s.Subs.SaveSubscription(ctx, sub); err != nil {
		return fmt.Errorf("suspend subscription for host %d: %w", sub.HostID, err)
	}

	s.Notifier.Dispatch(notify.TemplatePaymentFailed, sub.HostID, map[string]interface{}{
		"attempt": ev.AttemptCount,
	})
	return nil
}

func (s *Synchronizer) applyCustomerDeleted(ctx context.Context, ev CustomerDeleted) error {
	sub, err := s.Subs.GetSubscriptionByCustomer(ctx, ev.CustomerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if sub.Status == model.SubscriptionCancelled {
		return nil
	}
	now := s.Now().UTC()
	sub.Status = model.SubscriptionCancelled
	sub.CancelledAt = &now
	return s.Subs.SaveSubscription(ctx, sub)
}

func (s *Synchronizer) applyProductChanged(ctx context.Context, ev ProductChanged) error {
	return s.Plans.UpsertPlanCatalog(ctx, &model.SubscriptionPlan{
		StripeProductID: ev.ProductID,
		Name:            ev.Name,
		Description:     ev.Description,
	})
}

func (s *Synchronizer) applyPriceChanged(ctx context.Context, ev PriceChanged) error {
	return s.Plans.UpsertPlanCatalog(ctx, &model.SubscriptionPlan{
		StripeProductID: ev.ProductID,
		StripePriceID:   ev.PriceID,
		Price:           float64(ev.UnitAmount) / 100,
		Currency:        strings.ToUpper(ev.Currency),
	})
}

func (s *Synchronizer) findSubscription(ctx context.Context, stripeSubID, customerID string) (*model.HostSubscription, error) {
	if stripeSubID != "" {
		sub, err := s.Subs.GetSubscriptionByStripeSub(ctx, stripeSubID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if customerID != "" {
		return s.Subs.GetSubscriptionByCustomer(ctx, customerID)
	}
	return nil, store.ErrNotFound
}

func mapProviderStatus(status string) model.SubscriptionStatus {
	switch status {
	case "active", "trialing":
		return model.SubscriptionActive
	case "past_due", "unpaid", "incomplete":
		return model.SubscriptionSuspended
	case "canceled", "incomplete_expired":
		return model.SubscriptionCancelled
	default:
		return model.SubscriptionActive
	}
}
