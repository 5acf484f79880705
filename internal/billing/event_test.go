package billing

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseEventCheckoutCompleted(t *testing.T) {
	payload := []byte(`{
		"customer": "cus_123",
		"subscription": "sub_123",
		"client_reference_id": "42",
		"metadata": {"price_id": "price_pro"}
	}`)

	ev, err := ParseEvent("evt_1", "checkout.session.completed", payload)
	require.NoError(t, err)

	checkout, ok := ev.(CheckoutCompleted)
	require.True(t, ok)
	require.Equal(t, "evt_1", checkout.EventID())
	require.Equal(t, "cus_123", checkout.CustomerID)
	require.Equal(t, "sub_123", checkout.SubscriptionID)
	require.Equal(t, "price_pro", checkout.PriceID)
	require.Equal(t, uint(42), checkout.HostID)
}

func TestParseEventInvoicePaidTakesLatestLinePeriod(t *testing.T) {
	end := time.Date(2026, 9, 24, 0, 0, 0, 0, time.UTC)
	payload := []byte(fmt.Sprintf(`{
		"customer": "cus_123",
		"subscription": "sub_123",
		"lines": {"data": [
			{"period": {"end": %d}},
			{"period": {"end": %d}}
		]}
	}`, end.Add(-24*time.Hour).Unix(), end.Unix()))

	ev, err := ParseEvent("evt_2", "invoice.paid", payload)
	require.NoError(t, err)

	paid, ok := ev.(InvoicePaid)
	require.True(t, ok)
	require.True(t, paid.PeriodEnd.Equal(end))
}

func TestParseEventSubscriptionUpdated(t *testing.T) {
	payload := []byte(`{
		"id": "sub_123",
		"customer": "cus_123",
		"status": "past_due",
		"current_period_end": 1790000000,
		"cancel_at_period_end": true,
		"items": {"data": [{"price": {"id": "price_elite"}}]}
	}`)

	ev, err := ParseEvent("evt_3", "customer.subscription.updated", payload)
	require.NoError(t, err)

	updated, ok := ev.(SubscriptionUpdated)
	require.True(t, ok)
	require.Equal(t, "past_due", updated.Status)
	require.Equal(t, "price_elite", updated.PriceID)
	require.True(t, updated.CancelAtPeriodEnd)
}

func TestParseEventCatalogKinds(t *testing.T) {
	ev, err := ParseEvent("evt_4", "price.updated", []byte(`{
		"id": "price_pro", "product": "prod_pro", "currency": "usd", "unit_amount": 4900
	}`))
	require.NoError(t, err)
	price, ok := ev.(PriceChanged)
	require.True(t, ok)
	require.Equal(t, int64(4900), price.UnitAmount)

	ev, err = ParseEvent("evt_5", "product.created", []byte(`{"id": "prod_pro", "name": "Pro"}`))
	require.NoError(t, err)
	product, ok := ev.(ProductChanged)
	require.True(t, ok)
	require.Equal(t, "Pro", product.Name)
}

func TestParseEventUnknownType(t *testing.T) {
	_, err := ParseEvent("evt_6", "payment_intent.created", []byte(`{}`))
	require.True(t, errors.Is(err, ErrUnknownEventType))
}

func TestParseEventBadClientReference(t *testing.T) {
	_, err := ParseEvent("evt_7", "checkout.session.completed", []byte(`{"client_reference_id": "host-abc"}`))
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrUnknownEventType))
}
