package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lodgepage_backend/internal/model"
	"lodgepage_backend/internal/publish"
	"lodgepage_backend/internal/slot"
	"lodgepage_backend/internal/store"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingDispatcher) Dispatch(template string, hostID uint, _ map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, template)
}

func (r *recordingDispatcher) count(template string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, sent := range r.sent {
		if sent == template {
			n++
		}
	}
	return n
}

type sweepEnv struct {
	ms  *store.MemoryStore
	sw  *Sweeper
	co  *publish.Coordinator
	rec *recordingDispatcher
	loc *model.Location
	now time.Time
}

func newSweepEnv(t *testing.T, ms *store.MemoryStore, st store.Store) *sweepEnv {
	t.Helper()
	if ms == nil {
		ms = store.NewMemoryStore()
	}
	if st == nil {
		st = ms
	}

	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	mgr := slot.NewManager(ms, ms)
	mgr.Now = func() time.Time { return now }
	co := publish.NewCoordinator(st, mgr)
	rec := &recordingDispatcher{}
	sw := NewSweeper(st, mgr, co, rec)
	sw.Now = func() time.Time { return now }

	loc, err := ms.ResolveLocation(context.Background(), model.Location{
		Kind:        model.LocationPlace,
		CountryCode: "PT",
		Place:       "Porto",
	})
	require.NoError(t, err)

	return &sweepEnv{ms: ms, sw: sw, co: co, rec: rec, loc: loc, now: now}
}

func (e *sweepEnv) seedHostWithSub(t *testing.T, hostID uint, status model.SubscriptionStatus) {
	t.Helper()
	expiresAt := e.now.AddDate(0, 1, 0)
	sub := &model.HostSubscription{
		HostID:      hostID,
		PlanName:    "Pro",
		MaxListings: 10,
		Status:      status,
		ExpiresAt:   &expiresAt,
	}
	require.NoError(t, e.ms.CreateSubscription(context.Background(), sub))
}

// publishListing seeds an approved listing, publishes it, and pins its slot's
// expiry date.
func (e *sweepEnv) publishListing(t *testing.T, listingID, hostID uint, expiresAt time.Time) *model.AdvertisingSlot {
	t.Helper()
	ctx := context.Background()
	e.ms.SeedListing(model.Listing{
		Model:      gorm.Model{ID: listingID},
		Title:      "Riverside Flat",
		Status:     model.ListingApproved,
		HostID:     hostID,
		LocationID: e.loc.ID,
	})
	granted, err := e.co.Publish(ctx, listingID)
	require.NoError(t, err)
	granted.ExpiresAt = expiresAt
	require.NoError(t, e.ms.SaveSlot(ctx, granted))
	return granted
}

func TestWarningSweepMarksSlotsInsideWindow(t *testing.T) {
	e := newSweepEnv(t, nil, nil)
	e.seedHostWithSub(t, 1, model.SubscriptionActive)
	ctx := context.Background()

	soon := e.publishListing(t, 10, 1, e.now.AddDate(0, 0, 3))
	far := e.publishListing(t, 11, 1, e.now.AddDate(0, 0, 20))

	report := e.sw.RunExpiryWarning(ctx)
	require.Equal(t, 1, report.Scanned)
	require.Equal(t, int32(1), report.Transitions)
	require.Zero(t, report.Failures)

	got, err := e.ms.GetSlot(ctx, soon.SlotID)
	require.NoError(t, err)
	require.Equal(t, model.SlotExpiringSoon, got.Status)

	got, err = e.ms.GetSlot(ctx, far.SlotID)
	require.NoError(t, err)
	require.Equal(t, model.SlotActive, got.Status)

	require.Equal(t, 1, e.rec.count("slot_expiry_warning"))

	// Listings stay online through the warning.
	listing, err := e.ms.GetListing(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, model.ListingOnline, listing.Status)

	// Re-running warns nobody twice.
	report = e.sw.RunExpiryWarning(ctx)
	require.Zero(t, report.Transitions)
	require.Equal(t, 1, e.rec.count("slot_expiry_warning"))
}

func TestExpirySweepTakesListingsOffline(t *testing.T) {
	e := newSweepEnv(t, nil, nil)
	e.seedHostWithSub(t, 1, model.SubscriptionActive)
	ctx := context.Background()

	due := e.publishListing(t, 10, 1, e.now.Add(-time.Hour))
	alive := e.publishListing(t, 11, 1, e.now.AddDate(0, 0, 20))

	report := e.sw.RunExpiryStep(ctx)
	require.Equal(t, 1, report.Scanned)
	require.Equal(t, int32(1), report.Transitions)
	require.Zero(t, report.Failures)

	got, err := e.ms.GetSlot(ctx, due.SlotID)
	require.NoError(t, err)
	require.Equal(t, model.SlotExpired, got.Status)

	listing, err := e.ms.GetListing(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, model.ListingOffline, listing.Status)
	_, err = e.ms.GetPublicListingByListing(ctx, 10)
	require.ErrorIs(t, err, store.ErrNotFound)

	// The untouched listing keeps its slot and its visibility.
	got, err = e.ms.GetSlot(ctx, alive.SlotID)
	require.NoError(t, err)
	require.Equal(t, model.SlotActive, got.Status)
	remaining, err := e.ms.GetLocation(ctx, e.loc.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), remaining.ListingsCount)

	require.Equal(t, 1, e.rec.count("slot_expired"))

	// Expiry is idempotent across runs.
	report = e.sw.RunExpiryStep(ctx)
	require.Zero(t, report.Scanned)
	require.Equal(t, 1, e.rec.count("slot_expired"))
}

func TestExpirySweepToleratesManualUnpublish(t *testing.T) {
	e := newSweepEnv(t, nil, nil)
	e.seedHostWithSub(t, 1, model.SubscriptionActive)
	ctx := context.Background()

	due := e.publishListing(t, 10, 1, e.now.Add(-time.Hour))
	require.NoError(t, e.co.Unpublish(ctx, 10))

	report := e.sw.RunExpiryStep(ctx)
	require.Equal(t, int32(1), report.Transitions)
	require.Zero(t, report.Failures)

	got, err := e.ms.GetSlot(ctx, due.SlotID)
	require.NoError(t, err)
	require.Equal(t, model.SlotExpired, got.Status)

	// Counter was already released by the manual unpublish.
	loc, err := e.ms.GetLocation(ctx, e.loc.ID)
	require.NoError(t, err)
	require.Zero(t, loc.ListingsCount)
}

func TestExpirySweepRevokesSlotsPastUnpaidGrace(t *testing.T) {
	e := newSweepEnv(t, nil, nil)
	ctx := context.Background()

	e.seedHostWithSub(t, 1, model.SubscriptionActive)
	lapsed := e.publishListing(t, 10, 1, e.now.AddDate(0, 0, 20))
	suspendedAt := e.now.Add(-UnpaidGrace - 24*time.Hour)
	sub, err := e.ms.GetSubscriptionByHost(ctx, 1)
	require.NoError(t, err)
	sub.Status = model.SubscriptionSuspended
	sub.SuspendedAt = &suspendedAt
	require.NoError(t, e.ms.SaveSubscription(ctx, sub))

	e.seedHostWithSub(t, 2, model.SubscriptionActive)
	fresh := e.publishListing(t, 20, 2, e.now.AddDate(0, 0, 20))
	freshSuspend := e.now.Add(-24 * time.Hour)
	sub, err = e.ms.GetSubscriptionByHost(ctx, 2)
	require.NoError(t, err)
	sub.Status = model.SubscriptionSuspended
	sub.SuspendedAt = &freshSuspend
	require.NoError(t, e.ms.SaveSubscription(ctx, sub))

	report := e.sw.RunExpiryStep(ctx)
	require.Equal(t, 1, report.Scanned)
	require.Equal(t, int32(1), report.Transitions)

	got, err := e.ms.GetSlot(ctx, lapsed.SlotID)
	require.NoError(t, err)
	require.Equal(t, model.SlotExpired, got.Status)
	listing, err := e.ms.GetListing(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, model.ListingOffline, listing.Status)

	// Inside the grace period nothing is touched.
	got, err = e.ms.GetSlot(ctx, fresh.SlotID)
	require.NoError(t, err)
	require.Equal(t, model.SlotActive, got.Status)
}

type deleteFailStore struct {
	*store.MemoryStore
	failListingID uint
}

func (f *deleteFailStore) DeletePublicListing(ctx context.Context, listingID uint) (bool, error) {
	if listingID == f.failListingID {
		return false, errors.New("projection store unavailable")
	}
	return f.MemoryStore.DeletePublicListing(ctx, listingID)
}

func TestExpirySweepIsolatesItemFailures(t *testing.T) {
	ms := store.NewMemoryStore()
	failing := &deleteFailStore{MemoryStore: ms, failListingID: 10}
	e := newSweepEnv(t, ms, failing)
	e.seedHostWithSub(t, 1, model.SubscriptionActive)
	ctx := context.Background()

	e.publishListing(t, 10, 1, e.now.Add(-time.Hour))
	healthy := e.publishListing(t, 11, 1, e.now.Add(-time.Hour))

	report := e.sw.RunExpiryStep(ctx)
	require.Equal(t, 2, report.Scanned)
	require.Equal(t, int32(1), report.Transitions)
	require.Equal(t, int32(1), report.Failures)

	// The healthy slot went through despite its neighbor failing.
	got, err := e.ms.GetSlot(ctx, healthy.SlotID)
	require.NoError(t, err)
	require.Equal(t, model.SlotExpired, got.Status)
	listing, err := e.ms.GetListing(ctx, 11)
	require.NoError(t, err)
	require.Equal(t, model.ListingOffline, listing.Status)
}
