package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownEventType marks provider event kinds the engine does not handle.
// Callers log and acknowledge these so new provider types cannot poison the
// queue.
var ErrUnknownEventType = errors.New("unknown billing event type")

// Event is the closed set of billing events the engine reacts to. Each
// variant carries only the payload fields its handler needs; dispatch is an
// exhaustive type switch, so adding a variant surfaces every gap at compile
// time.
type Event interface {
	EventID() string
	EventType() string
}

type eventMeta struct {
	ID   string
	Type string
}

func (m eventMeta) EventID() string   { return m.ID }
func (m eventMeta) EventType() string { return m.Type }

type CheckoutCompleted struct {
	eventMeta
	CustomerID     string
	SubscriptionID string
	PriceID        string
	HostID         uint
}

type SubscriptionUpdated struct {
	eventMeta
	SubscriptionID    string
	CustomerID        string
	PriceID           string
	Status            string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
}

type SubscriptionDeleted struct {
	eventMeta
	SubscriptionID string
	CustomerID     string
	EndedAt        time.Time
}

type InvoicePaid struct {
	eventMeta
	CustomerID     string
	SubscriptionID string
	PeriodEnd      time.Time
}

type InvoicePaymentFailed struct {
	eventMeta
	CustomerID     string
	SubscriptionID string
	AttemptCount   int
}

type CustomerDeleted struct {
	eventMeta
	CustomerID string
}

type ProductChanged struct {
	eventMeta
	ProductID   string
	Name        string
	Description string
}

type PriceChanged struct {
	eventMeta
	PriceID    string
	ProductID  string
	Currency   string
	UnitAmount int64
}

// ParseEvent maps a raw provider event into the closed Event union.
func ParseEvent(id, eventType string, payload []byte) (Event, error) {
	meta := eventMeta{ID: id, Type: eventType}

	switch eventType {
	case "checkout.session.completed":
		var data struct {
			Customer          string `json:"customer"`
			Subscription      string `json:"subscription"`
			ClientReferenceID string `json:"client_reference_id"`
			Metadata          struct {
				PriceID string `json:"price_id"`
			} `json:"metadata"`
		}
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		hostID, err := strconv.ParseUint(data.ClientReferenceID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("checkout session %s: bad client reference %q", id, data.ClientReferenceID)
		}
		return CheckoutCompleted{
			eventMeta:      meta,
			CustomerID:     data.Customer,
			SubscriptionID: data.Subscription,
			PriceID:        data.Metadata.PriceID,
			HostID:         uint(hostID),
		}, nil

	case "customer.subscription.updated":
		var data struct {
			ID                string `json:"id"`
			Customer          string `json:"customer"`
			Status            string `json:"status"`
			CurrentPeriodEnd  int64  `json:"current_period_end"`
			CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
			Items             struct {
				Data []struct {
					Price struct {
						ID string `json:"id"`
					} `json:"price"`
				} `json:"data"`
			} `json:"items"`
		}
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("decode subscription update: %w", err)
		}
		ev := SubscriptionUpdated{
			eventMeta:         meta,
			SubscriptionID:    data.ID,
			CustomerID:        data.Customer,
			Status:            data.Status,
			CancelAtPeriodEnd: data.CancelAtPeriodEnd,
		}
		if data.CurrentPeriodEnd > 0 {
			ev.CurrentPeriodEnd = time.Unix(data.CurrentPeriodEnd, 0).UTC()
		}
		if len(data.Items.Data) > 0 {
			ev.PriceID = data.Items.Data[0].Price.ID
		}
		return ev, nil

	case "customer.subscription.deleted":
		var data struct {
			ID       string `json:"id"`
			Customer string `json:"customer"`
			EndedAt  int64  `json:"ended_at"`
		}
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("decode subscription deletion: %w", err)
		}
		ev := SubscriptionDeleted{
			eventMeta:      meta,
			SubscriptionID: data.ID,
			CustomerID:     data.Customer,
		}
		if data.EndedAt > 0 {
			ev.EndedAt = time.Unix(data.EndedAt, 0).UTC()
		}
		return ev, nil

	case "invoice.paid":
		var data struct {
			Customer     string `json:"customer"`
			Subscription string `json:"subscription"`
			Lines        struct {
				Data []struct {
					Period struct {
						End int64 `json:"end"`
					} `json:"period"`
				} `json:"data"`
			} `json:"lines"`
		}
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		// The paid-through date comes from the invoice's own line periods,
		// never from wall-clock now, so late deliveries cannot drift.
		var periodEnd int64
		for _, line := range data.Lines.Data {
			if line.Period.End > periodEnd {
				periodEnd = line.Period.End
			}
		}
		if periodEnd == 0 {
			return nil, fmt.Errorf("invoice event %s has no line periods", id)
		}
		return InvoicePaid{
			eventMeta:      meta,
			CustomerID:     data.Customer,
			SubscriptionID: data.Subscription,
			PeriodEnd:      time.Unix(periodEnd, 0).UTC(),
		}, nil

	case "invoice.payment_failed":
		var data struct {
			Customer     string `json:"customer"`
			Subscription string `json:"subscription"`
			AttemptCount int    `json:"attempt_count"`
		}
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("decode invoice failure: %w", err)
		}
		return InvoicePaymentFailed{
			eventMeta:      meta,
			CustomerID:     data.Customer,
			SubscriptionID: data.Subscription,
			AttemptCount:   data.AttemptCount,
		}, nil

	case "customer.deleted":
		var data struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("decode customer deletion: %w", err)
		}
		return CustomerDeleted{eventMeta: meta, CustomerID: data.ID}, nil
	}

	if strings.HasPrefix(eventType, "product.") {
		var data struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("decode product event: %w", err)
		}
		return ProductChanged{
			eventMeta:   meta,
			ProductID:   data.ID,
			Name:        data.Name,
			Description: data.Description,
		}, nil
	}

	if strings.HasPrefix(eventType, "price.") {
		var data struct {
			ID         string `json:"id"`
			Product    string `json:"product"`
			Currency   string `json:"currency"`
			UnitAmount int64  `json:"unit_amount"`
		}
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("decode price event: %w", err)
		}
		return PriceChanged{
			eventMeta:  meta,
			PriceID:    data.ID,
			ProductID:  data.Product,
			Currency:   data.Currency,
			UnitAmount: data.UnitAmount,
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
}
