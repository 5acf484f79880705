package publish

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lodgepage_backend/internal/model"
	"lodgepage_backend/internal/slot"
	"lodgepage_backend/internal/store"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func buildCoordinator(ms *store.MemoryStore, st store.Store) *Coordinator {
	mgr := slot.NewManager(ms, ms)
	mgr.Now = func() time.Time { return testNow }
	return NewCoordinator(st, mgr)
}

func seedLocation(t *testing.T, ms *store.MemoryStore) *model.Location {
	t.Helper()
	loc, err := ms.ResolveLocation(context.Background(), model.Location{
		Kind:        model.LocationPlace,
		CountryCode: "PT",
		Place:       "Lisbon",
	})
	require.NoError(t, err)
	return loc
}

func seedSubscription(t *testing.T, ms *store.MemoryStore, hostID uint, maxListings int) {
	t.Helper()
	expiresAt := testNow.AddDate(0, 1, 0)
	require.NoError(t, ms.CreateSubscription(context.Background(), &model.HostSubscription{
		HostID:      hostID,
		PlanName:    "Pro",
		MaxListings: maxListings,
		Status:      model.SubscriptionActive,
		ExpiresAt:   &expiresAt,
	}))
}

func seedApproved(ms *store.MemoryStore, id, hostID, locationID uint) model.Listing {
	return ms.SeedListing(model.Listing{
		Model:      gorm.Model{ID: id},
		Title:      "Sea View Apartment",
		Status:     model.ListingApproved,
		Price:      1200,
		Currency:   "EUR",
		HostID:     hostID,
		LocationID: locationID,
	}, model.ListingImage{URL: "https://cdn.example.com/1.jpg", IsCover: true})
}

func locationCount(t *testing.T, ms *store.MemoryStore, locationID uint) int64 {
	t.Helper()
	loc, err := ms.GetLocation(context.Background(), locationID)
	require.NoError(t, err)
	return loc.ListingsCount
}

func TestPublishBringsListingOnline(t *testing.T) {
	ms := store.NewMemoryStore()
	co := buildCoordinator(ms, ms)
	ctx := context.Background()
	loc := seedLocation(t, ms)
	seedSubscription(t, ms, 1, 5)
	listing := seedApproved(ms, 10, 1, loc.ID)

	granted, err := co.Publish(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, model.SlotActive, granted.Status)

	got, err := ms.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, model.ListingOnline, got.Status)

	pub, err := ms.GetPublicListingByListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, "sea-view-apartment", pub.Slug)
	require.Equal(t, loc.ID, pub.LocationID)
	require.Len(t, pub.Media, 1)
	require.True(t, pub.Media[0].IsCover)

	require.Equal(t, int64(1), locationCount(t, ms, loc.ID))
}

func TestPublishIsIdempotent(t *testing.T) {
	ms := store.NewMemoryStore()
	co := buildCoordinator(ms, ms)
	ctx := context.Background()
	loc := seedLocation(t, ms)
	seedSubscription(t, ms, 1, 5)
	listing := seedApproved(ms, 10, 1, loc.ID)

	first, err := co.Publish(ctx, listing.ID)
	require.NoError(t, err)
	second, err := co.Publish(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, first.SlotID, second.SlotID)
	require.Equal(t, int64(1), locationCount(t, ms, loc.ID))
}

func TestPublishDeclinedAtEntitlementLeavesNoTrace(t *testing.T) {
	ms := store.NewMemoryStore()
	co := buildCoordinator(ms, ms)
	ctx := context.Background()
	loc := seedLocation(t, ms)
	seedSubscription(t, ms, 1, 1)
	seedApproved(ms, 10, 1, loc.ID)
	second := seedApproved(ms, 11, 1, loc.ID)

	_, err := co.Publish(ctx, 10)
	require.NoError(t, err)

	_, err = co.Publish(ctx, second.ID)
	require.ErrorIs(t, err, store.ErrEntitlementExceeded)

	got, err := ms.GetListing(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, model.ListingApproved, got.Status)

	_, err = ms.GetPublicListingByListing(ctx, second.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	count, err := ms.CountLiveSlotsByHost(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	require.Equal(t, int64(1), locationCount(t, ms, loc.ID))
}

func TestPublishRejectsUnreviewedListing(t *testing.T) {
	ms := store.NewMemoryStore()
	co := buildCoordinator(ms, ms)
	ctx := context.Background()
	loc := seedLocation(t, ms)
	seedSubscription(t, ms, 1, 5)

	draft := ms.SeedListing(model.Listing{Model: gorm.Model{ID: 10}, Title: "Draft", Status: model.ListingDraft, HostID: 1, LocationID: loc.ID})
	_, err := co.Publish(ctx, draft.ID)
	require.ErrorIs(t, err, ErrNotPublishable)

	unlocated := ms.SeedListing(model.Listing{Model: gorm.Model{ID: 11}, Title: "Nowhere", Status: model.ListingApproved, HostID: 1})
	_, err = co.Publish(ctx, unlocated.ID)
	require.ErrorIs(t, err, ErrNoLocation)
}

type projectionFailStore struct {
	*store.MemoryStore
	fail bool
}

func (f *projectionFailStore) PutPublicListing(ctx context.Context, pub *model.PublicListing, media []model.PublicListingMedia) error {
	if f.fail {
		return errors.New("projection store unavailable")
	}
	return f.MemoryStore.PutPublicListing(ctx, pub, media)
}

func TestPublishCompensatesFailedProjectionWrite(t *testing.T) {
	ms := store.NewMemoryStore()
	failing := &projectionFailStore{MemoryStore: ms, fail: true}
	co := buildCoordinator(ms, failing)
	ctx := context.Background()
	loc := seedLocation(t, ms)
	seedSubscription(t, ms, 1, 5)
	listing := seedApproved(ms, 10, 1, loc.ID)

	_, err := co.Publish(ctx, listing.ID)
	require.Error(t, err)

	// Counter rolled back, slot revoked, status untouched.
	require.Equal(t, int64(0), locationCount(t, ms, loc.ID))
	count, err := ms.CountLiveSlotsByHost(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, count)
	got, err := ms.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, model.ListingApproved, got.Status)

	// The same publish succeeds once the projection store recovers.
	failing.fail = false
	_, err = co.Publish(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), locationCount(t, ms, loc.ID))
}

type flipRaceStore struct {
	*store.MemoryStore
	// raceTo is applied to the listing right before the ONLINE flip, as if
	// another actor got there first.
	raceTo  model.ListingStatus
	listing uint
	tripped bool
}

func (f *flipRaceStore) SetListingStatus(ctx context.Context, listingID uint, allowedFrom []model.ListingStatus, to model.ListingStatus) (bool, error) {
	if to == model.ListingOnline && listingID == f.listing && !f.tripped {
		f.tripped = true
		if _, err := f.MemoryStore.SetListingStatus(ctx, listingID, []model.ListingStatus{model.ListingApproved, model.ListingOffline}, f.raceTo); err != nil {
			return false, err
		}
	}
	return f.MemoryStore.SetListingStatus(ctx, listingID, allowedFrom, to)
}

func TestPublishCompensatesWhenListingPulledMidPublish(t *testing.T) {
	ms := store.NewMemoryStore()
	racing := &flipRaceStore{MemoryStore: ms, raceTo: model.ListingSuspended, listing: 10}
	co := buildCoordinator(ms, racing)
	ctx := context.Background()
	loc := seedLocation(t, ms)
	seedSubscription(t, ms, 1, 5)
	listing := seedApproved(ms, 10, 1, loc.ID)

	_, err := co.Publish(ctx, listing.ID)
	require.ErrorIs(t, err, ErrNotPublishable)

	// No projection for a non-ONLINE listing, no counter drift, no slot.
	got, err := ms.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, model.ListingSuspended, got.Status)
	_, err = ms.GetPublicListingByListing(ctx, listing.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Equal(t, int64(0), locationCount(t, ms, loc.ID))
	count, err := ms.CountLiveSlotsByHost(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestPublishLosingFlipToConcurrentPublishKeepsSingleCount(t *testing.T) {
	ms := store.NewMemoryStore()
	racing := &flipRaceStore{MemoryStore: ms, raceTo: model.ListingOnline, listing: 10}
	co := buildCoordinator(ms, racing)
	ctx := context.Background()
	loc := seedLocation(t, ms)
	seedSubscription(t, ms, 1, 5)
	listing := seedApproved(ms, 10, 1, loc.ID)

	// The racing flip already counted the listing once; our duplicate
	// increment must be rolled back, nothing else.
	require.NoError(t, ms.AddListingsCount(ctx, loc.ID, 1))

	granted, err := co.Publish(ctx, listing.ID)
	require.NoError(t, err)
	require.NotNil(t, granted)

	got, err := ms.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, model.ListingOnline, got.Status)
	_, err = ms.GetPublicListingByListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), locationCount(t, ms, loc.ID))
}

func TestUnpublishRemovesProjectionAndDecrementsOnce(t *testing.T) {
	ms := store.NewMemoryStore()
	co := buildCoordinator(ms, ms)
	ctx := context.Background()
	loc := seedLocation(t, ms)
	seedSubscription(t, ms, 1, 5)
	listing := seedApproved(ms, 10, 1, loc.ID)

	_, err := co.Publish(ctx, listing.ID)
	require.NoError(t, err)

	require.NoError(t, co.Unpublish(ctx, listing.ID))
	got, err := ms.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, model.ListingOffline, got.Status)
	_, err = ms.GetPublicListingByListing(ctx, listing.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Equal(t, int64(0), locationCount(t, ms, loc.ID))

	// Retry must not decrement again.
	require.NoError(t, co.Unpublish(ctx, listing.ID))
	require.Equal(t, int64(0), locationCount(t, ms, loc.ID))
}

func TestUnpublishFinishesInterruptedCleanup(t *testing.T) {
	ms := store.NewMemoryStore()
	co := buildCoordinator(ms, ms)
	ctx := context.Background()
	loc := seedLocation(t, ms)
	seedSubscription(t, ms, 1, 5)
	listing := seedApproved(ms, 10, 1, loc.ID)

	_, err := co.Publish(ctx, listing.ID)
	require.NoError(t, err)

	// A previous unpublish flipped the status but died before cleanup.
	changed, err := ms.SetListingStatus(ctx, listing.ID, []model.ListingStatus{model.ListingOnline}, model.ListingOffline)
	require.NoError(t, err)
	require.True(t, changed)

	require.NoError(t, co.Unpublish(ctx, listing.ID))
	_, err = ms.GetPublicListingByListing(ctx, listing.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Equal(t, int64(0), locationCount(t, ms, loc.ID))
}

func TestRepublishReusesLiveSlot(t *testing.T) {
	ms := store.NewMemoryStore()
	co := buildCoordinator(ms, ms)
	ctx := context.Background()
	loc := seedLocation(t, ms)
	seedSubscription(t, ms, 1, 5)
	listing := seedApproved(ms, 10, 1, loc.ID)

	first, err := co.Publish(ctx, listing.ID)
	require.NoError(t, err)
	require.NoError(t, co.Unpublish(ctx, listing.ID))

	// The paid slot survives the unpublish and covers the re-publish.
	second, err := co.Publish(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, first.SlotID, second.SlotID)
	require.Equal(t, int64(1), locationCount(t, ms, loc.ID))
}

func TestCounterMatchesOnlineListingsUnderRandomOps(t *testing.T) {
	ms := store.NewMemoryStore()
	co := buildCoordinator(ms, ms)
	ctx := context.Background()
	loc := seedLocation(t, ms)
	seedSubscription(t, ms, 1, 100)

	const listingCount = 6
	ids := make([]uint, 0, listingCount)
	for i := uint(0); i < listingCount; i++ {
		ids = append(ids, seedApproved(ms, 100+i, 1, loc.ID).ID)
	}

	rng := rand.New(rand.NewSource(42))
	for op := 0; op < 400; op++ {
		id := ids[rng.Intn(len(ids))]
		if rng.Intn(2) == 0 {
			_, err := co.Publish(ctx, id)
			require.NoError(t, err)
		} else {
			require.NoError(t, co.Unpublish(ctx, id))
		}

		var online int64
		for _, lid := range ids {
			listing, err := ms.GetListing(ctx, lid)
			require.NoError(t, err)
			if listing.Status == model.ListingOnline {
				online++
				_, err := ms.GetPublicListingByListing(ctx, lid)
				require.NoError(t, err)
			} else {
				_, err := ms.GetPublicListingByListing(ctx, lid)
				require.ErrorIs(t, err, store.ErrNotFound)
			}
		}
		require.Equal(t, online, locationCount(t, ms, loc.ID), "op %d", op)
	}
}
