// Package publish is the multi-store transaction surface that moves a
// listing across the ONLINE/OFFLINE boundary: authoritative status, the
// per-location counter, and the public search projection together.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gosimple/slug"

	"lodgepage_backend/internal/model"
	"lodgepage_backend/internal/slot"
	"lodgepage_backend/internal/store"
)

var (
	// ErrNotPublishable means the listing's status does not allow going
	// online (not yet approved, rejected, suspended).
	ErrNotPublishable = errors.New("listing is not in a publishable state")

	// ErrNoLocation means the listing has no resolved location and cannot be
	// counted or projected.
	ErrNoLocation = errors.New("listing has no location")
)

var publishableFrom = []model.ListingStatus{model.ListingApproved, model.ListingOffline}

type Coordinator struct {
	Store store.Store
	Slots *slot.Manager
}

func NewCoordinator(st store.Store, slots *slot.Manager) *Coordinator {
	return &Coordinator{Store: st, Slots: slots}
}

// Publish takes the listing online. Step order keeps the counter ahead of
// the visible rows, and every failure after the increment runs a
// compensating decrement, so the counter can only drift high inside the
// failure window, never permanently.
func (c *Coordinator) Publish(ctx context.Context, listingID uint) (*model.AdvertisingSlot, error) {
	listing, err := c.Store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if listing.Status == model.ListingOnline {
		// Retried publish: report the existing grant.
		return c.Store.GetLiveSlotByListing(ctx, listingID)
	}
	if listing.Status != model.ListingApproved && listing.Status != model.ListingOffline {
		return nil, ErrNotPublishable
	}
	if listing.LocationID == 0 {
		return nil, ErrNoLocation
	}

	canonicalID, err := c.canonicalLocation(ctx, listing.LocationID)
	if err != nil {
		return nil, err
	}

	// An unpublished listing may still hold a live, paid slot. Reuse it
	// instead of granting a second one.
	liveSlot, err := c.Store.GetLiveSlotByListing(ctx, listingID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	// Step 1: counter first.
	if err := c.Store.AddListingsCount(ctx, canonicalID, 1); err != nil {
		return nil, fmt.Errorf("increment location %d: %w", canonicalID, err)
	}

	// Step 2: the slot grant, which also carries the entitlement check.
	grantedSlot := liveSlot
	if grantedSlot == nil {
		grantedSlot, err = c.Slots.Grant(ctx, listing)
		if err != nil {
			c.compensateCount(ctx, canonicalID)
			return nil, err
		}
	}

	// Step 3: projection rows.
	if err := c.writeProjection(ctx, listing, canonicalID); err != nil {
		if liveSlot == nil {
			c.compensateSlot(ctx, grantedSlot)
		}
		c.compensateCount(ctx, canonicalID)
		return nil, err
	}

	// Step 4: authoritative flip.
	changed, err := c.Store.SetListingStatus(ctx, listingID, publishableFrom, model.ListingOnline)
	if err != nil {
		if _, derr := c.Store.DeletePublicListing(ctx, listingID); derr != nil {
			log.Printf("compensation: could not remove projection for listing %d: %v", listingID, derr)
		}
		if liveSlot == nil {
			c.compensateSlot(ctx, grantedSlot)
		}
		c.compensateCount(ctx, canonicalID)
		return nil, fmt.Errorf("flip listing %d online: %w", listingID, err)
	}
	if !changed {
		// The listing moved state between our read and the flip. Re-read to
		// tell a concurrent publish winning from the listing leaving the
		// publishable set entirely.
		current, rerr := c.Store.GetListing(ctx, listingID)
		if rerr == nil && current.Status == model.ListingOnline {
			// A concurrent publish won; its projection stands, only our
			// duplicate increment has to go.
			c.compensateCount(ctx, canonicalID)
			return grantedSlot, nil
		}

		// Suspended, rejected or otherwise pulled mid-publish: undo all of it,
		// the projection must not outlive a non-ONLINE listing.
		if _, derr := c.Store.DeletePublicListing(ctx, listingID); derr != nil {
			log.Printf("compensation: could not remove projection for listing %d: %v", listingID, derr)
		}
		if liveSlot == nil {
			c.compensateSlot(ctx, grantedSlot)
		}
		c.compensateCount(ctx, canonicalID)
		if rerr != nil {
			return nil, fmt.Errorf("re-read listing %d after lost flip: %w", listingID, rerr)
		}
		return nil, ErrNotPublishable
	}
	return grantedSlot, nil
}

// Unpublish takes the listing offline: authoritative flip first (host sees
// the result immediately), then projection removal, then the counter. The
// decrement is paired with the observed projection removal, so a retry after
// a partial failure finishes the cleanup without double-decrementing.
func (c *Coordinator) Unpublish(ctx context.Context, listingID uint) error {
	listing, err := c.Store.GetListing(ctx, listingID)
	if err != nil {
		return err
	}

	// The flip result is not the idempotency gate here: a retry that finds
	// the listing already OFFLINE must still finish the projection cleanup.
	_, err = c.Store.SetListingStatus(ctx, listingID, []model.ListingStatus{model.ListingOnline}, model.ListingOffline)
	if err != nil {
		return fmt.Errorf("flip listing %d offline: %w", listingID, err)
	}

	existed, err := c.Store.DeletePublicListing(ctx, listingID)
	if err != nil {
		return fmt.Errorf("remove projection for listing %d: %w", listingID, err)
	}
	if !existed {
		// Nothing was visible: either never published or already cleaned up.
		return nil
	}

	if listing.LocationID == 0 {
		log.Printf("ALARM: listing %d had a projection but no location, counter not decremented", listingID)
		return nil
	}
	canonicalID, err := c.canonicalLocation(ctx, listing.LocationID)
	if err != nil {
		return err
	}
	if err := c.Store.AddListingsCount(ctx, canonicalID, -1); err != nil {
		return fmt.Errorf("decrement location %d: %w", canonicalID, err)
	}
	return nil
}

func (c *Coordinator) canonicalLocation(ctx context.Context, locationID uint) (uint, error) {
	loc, err := c.Store.GetLocation(ctx, locationID)
	if err != nil {
		return 0, fmt.Errorf("load location %d: %w", locationID, err)
	}
	if loc.CanonicalID != 0 && loc.CanonicalID != loc.ID {
		return loc.CanonicalID, nil
	}
	return loc.ID, nil
}

func (c *Coordinator) writeProjection(ctx context.Context, listing *model.Listing, canonicalID uint) error {
	images, err := c.Store.GetListingImages(ctx, listing.ID)
	if err != nil {
		return fmt.Errorf("load images for listing %d: %w", listing.ID, err)
	}

	pub := &model.PublicListing{
		ListingID:  listing.ID,
		LocationID: canonicalID,
		HostID:     listing.HostID,
		Slug:       slug.Make(listing.Title),
		Title:      listing.Title,
		Price:      listing.Price,
		Currency:   listing.Currency,
	}
	media := make([]model.PublicListingMedia, 0, len(images))
	for _, img := range images {
		media = append(media, model.PublicListingMedia{
			ListingID: listing.ID,
			URL:       img.URL,
			IsCover:   img.IsCover,
			Order:     img.Order,
		})
	}
	if err := c.Store.PutPublicListing(ctx, pub, media); err != nil {
		return fmt.Errorf("write projection for listing %d: %w", listing.ID, err)
	}
	return nil
}

func (c *Coordinator) compensateCount(ctx context.Context, canonicalID uint) {
	if err := c.Store.AddListingsCount(ctx, canonicalID, -1); err != nil {
		log.Printf("ALARM: compensating decrement failed for location %d: %v", canonicalID, err)
	}
}

func (c *Coordinator) compensateSlot(ctx context.Context, s *model.AdvertisingSlot) {
	if _, err := c.Slots.Expire(ctx, s); err != nil {
		log.Printf("ALARM: could not revoke slot %s after failed publish: %v", s.SlotID, err)
	}
}
