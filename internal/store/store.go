package store

import (
	"context"
	"errors"
	"time"

	"lodgepage_backend/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrEntitlementExceeded means the host's plan capacity is already fully
	// used. A business outcome, not a system failure.
	ErrEntitlementExceeded = errors.New("listing limit reached for plan")

	// ErrSlotConflict means a live slot already exists for the listing.
	ErrSlotConflict = errors.New("listing already has a live advertising slot")
)

type HostStore interface {
	GetHost(ctx context.Context, id uint) (*model.Host, error)
}

type SubscriptionStore interface {
	GetSubscriptionByHost(ctx context.Context, hostID uint) (*model.HostSubscription, error)
	GetSubscriptionByCustomer(ctx context.Context, stripeCustomerID string) (*model.HostSubscription, error)
	GetSubscriptionByStripeSub(ctx context.Context, stripeSubID string) (*model.HostSubscription, error)
	CreateSubscription(ctx context.Context, sub *model.HostSubscription) error
	SaveSubscription(ctx context.Context, sub *model.HostSubscription) error
	// ListSuspendedBefore returns subscriptions suspended at or before the
	// cutoff, still unpaid. Used by the expiry sweep's grace-period check.
	ListSuspendedBefore(ctx context.Context, cutoff time.Time) ([]model.HostSubscription, error)
}

type SlotStore interface {
	GetSlot(ctx context.Context, slotID string) (*model.AdvertisingSlot, error)
	// GetLiveSlotByListing returns the single ACTIVE/EXPIRING_SOON/DO_NOT_RENEW
	// slot of a listing, or ErrNotFound.
	GetLiveSlotByListing(ctx context.Context, listingID uint) (*model.AdvertisingSlot, error)
	// CreateSlotConditional inserts the slot only while the host's live slot
	// count stays below maxListings and the listing has no live slot yet. The
	// check and the insert are serialized per host, so two concurrent
	// publishes at the limit cannot both succeed.
	CreateSlotConditional(ctx context.Context, slot *model.AdvertisingSlot, maxListings int) error
	SaveSlot(ctx context.Context, slot *model.AdvertisingSlot) error
	CountLiveSlotsByHost(ctx context.Context, hostID uint) (int64, error)
	ListLiveSlotsByHost(ctx context.Context, hostID uint) ([]model.AdvertisingSlot, error)
	// ListSlotsExpiringBefore walks the expiry-ordered index.
	ListSlotsExpiringBefore(ctx context.Context, cutoff time.Time, statuses []model.SlotStatus) ([]model.AdvertisingSlot, error)
}

type ListingStore interface {
	GetListing(ctx context.Context, id uint) (*model.Listing, error)
	GetListingImages(ctx context.Context, listingID uint) ([]model.ListingImage, error)
	// SetListingStatus flips the status only when the current status is one of
	// allowedFrom; returns false without error when it is not (already-done
	// retries land here).
	SetListingStatus(ctx context.Context, listingID uint, allowedFrom []model.ListingStatus, to model.ListingStatus) (bool, error)
}

type LocationStore interface {
	GetLocation(ctx context.Context, id uint) (*model.Location, error)
	// ResolveLocation finds or creates the canonical row for the given
	// country/place/locality key.
	ResolveLocation(ctx context.Context, loc model.Location) (*model.Location, error)
	// AddListingsCount mutates the counter on the canonical row with an atomic
	// increment, never read-modify-write.
	AddListingsCount(ctx context.Context, locationID uint, delta int) error
}

type PublicStore interface {
	GetPublicListingByListing(ctx context.Context, listingID uint) (*model.PublicListing, error)
	// PutPublicListing writes the projection row plus its media rows,
	// replacing any previous projection of the same listing.
	PutPublicListing(ctx context.Context, pub *model.PublicListing, media []model.PublicListingMedia) error
	// DeletePublicListing removes the projection and reports whether a row
	// existed; deleting an absent row is a no-op. Callers pair the counter
	// decrement with the returned flag so a retried unpublish never
	// double-decrements.
	DeletePublicListing(ctx context.Context, listingID uint) (bool, error)
}

type LedgerStore interface {
	HasProcessed(ctx context.Context, eventID string) (bool, error)
	// MarkProcessed records the event id; marking an already-marked id is
	// success.
	MarkProcessed(ctx context.Context, entry *model.ProcessedEvent) error
}

type PlanStore interface {
	ListPlans(ctx context.Context) ([]model.SubscriptionPlan, error)
	GetPlanByStripePrice(ctx context.Context, priceID string) (*model.SubscriptionPlan, error)
	// UpsertPlanCatalog refreshes the local plan cache row from a catalog
	// event, matching by stripe product id.
	UpsertPlanCatalog(ctx context.Context, plan *model.SubscriptionPlan) error
}

// Store aggregates every repository the engine touches. The GORM
// implementation backs production, the memory implementation backs tests.
type Store interface {
	HostStore
	SubscriptionStore
	SlotStore
	ListingStore
	LocationStore
	PublicStore
	LedgerStore
	PlanStore
}
