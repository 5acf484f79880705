package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lodgepage_backend/internal/model"
)

var liveStatuses = []model.SlotStatus{model.SlotActive, model.SlotExpiringSoon, model.SlotDoNotRenew}

// GormStore is the production Store backed by PostgreSQL.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) GetHost(ctx context.Context, id uint) (*model.Host, error) {
	var host model.Host
	if err := s.db.WithContext(ctx).First(&host, id).Error; err != nil {
		return nil, translate(err)
	}
	return &host, nil
}

func (s *GormStore) GetSubscriptionByHost(ctx context.Context, hostID uint) (*model.HostSubscription, error) {
	var sub model.HostSubscription
	if err := s.db.WithContext(ctx).Where("host_id = ?", hostID).First(&sub).Error; err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *GormStore) GetSubscriptionByCustomer(ctx context.Context, stripeCustomerID string) (*model.HostSubscription, error) {
	var sub model.HostSubscription
	if err := s.db.WithContext(ctx).Where("stripe_customer_id = ?", stripeCustomerID).First(&sub).Error; err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *GormStore) GetSubscriptionByStripeSub(ctx context.Context, stripeSubID string) (*model.HostSubscription, error) {
	var sub model.HostSubscription
	if err := s.db.WithContext(ctx).Where("stripe_sub_id = ?", stripeSubID).First(&sub).Error; err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *GormStore) CreateSubscription(ctx context.Context, sub *model.HostSubscription) error {
	return s.db.WithContext(ctx).Create(sub).Error
}

func (s *GormStore) SaveSubscription(ctx context.Context, sub *model.HostSubscription) error {
	return s.db.WithContext(ctx).Save(sub).Error
}

func (s *GormStore) ListSuspendedBefore(ctx context.Context, cutoff time.Time) ([]model.HostSubscription, error) {
	var subs []model.HostSubscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND suspended_at <= ?", model.SubscriptionSuspended, cutoff).
		Find(&subs).Error
	return subs, err
}

func (s *GormStore) GetSlot(ctx context.Context, slotID string) (*model.AdvertisingSlot, error) {
	var slot model.AdvertisingSlot
	if err := s.db.WithContext(ctx).Where("slot_id = ?", slotID).First(&slot).Error; err != nil {
		return nil, translate(err)
	}
	return &slot, nil
}

func (s *GormStore) GetLiveSlotByListing(ctx context.Context, listingID uint) (*model.AdvertisingSlot, error) {
	var slot model.AdvertisingSlot
	err := s.db.WithContext(ctx).
		Where("listing_id = ? AND status IN ?", listingID, liveStatuses).
		First(&slot).Error
	if err != nil {
		return nil, translate(err)
	}
	return &slot, nil
}

// CreateSlotConditional serializes concurrent publishes of the same host on
// the host_subscriptions row, then re-checks the capacity and the one-live-
// slot-per-listing invariant before inserting.
func (s *GormStore) CreateSlotConditional(ctx context.Context, slot *model.AdvertisingSlot, maxListings int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub model.HostSubscription
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("host_id = ?", slot.HostID).
			First(&sub).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var liveCount int64
		if err := tx.Model(&model.AdvertisingSlot{}).
			Where("host_id = ? AND status IN ?", slot.HostID, liveStatuses).
			Count(&liveCount).Error; err != nil {
			return err
		}
		if liveCount >= int64(maxListings) {
			return ErrEntitlementExceeded
		}

		var listingLive int64
		if err := tx.Model(&model.AdvertisingSlot{}).
			Where("listing_id = ? AND status IN ?", slot.ListingID, liveStatuses).
			Count(&listingLive).Error; err != nil {
			return err
		}
		if listingLive > 0 {
			return ErrSlotConflict
		}

		return tx.Create(slot).Error
	})
}

func (s *GormStore) SaveSlot(ctx context.Context, slot *model.AdvertisingSlot) error {
	return s.db.WithContext(ctx).Save(slot).Error
}

func (s *GormStore) CountLiveSlotsByHost(ctx context.Context, hostID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.AdvertisingSlot{}).
		Where("host_id = ? AND status IN ?", hostID, liveStatuses).
		Count(&count).Error
	return count, err
}

func (s *GormStore) ListLiveSlotsByHost(ctx context.Context, hostID uint) ([]model.AdvertisingSlot, error) {
	var slots []model.AdvertisingSlot
	err := s.db.WithContext(ctx).
		Where("host_id = ? AND status IN ?", hostID, liveStatuses).
		Order("expires_at").
		Find(&slots).Error
	return slots, err
}

func (s *GormStore) ListSlotsExpiringBefore(ctx context.Context, cutoff time.Time, statuses []model.SlotStatus) ([]model.AdvertisingSlot, error) {
	var slots []model.AdvertisingSlot
	err := s.db.WithContext(ctx).
		Where("expires_at < ? AND status IN ?", cutoff, statuses).
		Order("expires_at").
		Find(&slots).Error
	return slots, err
}

func (s *GormStore) GetListing(ctx context.Context, id uint) (*model.Listing, error) {
	var listing model.Listing
	if err := s.db.WithContext(ctx).First(&listing, id).Error; err != nil {
		return nil, translate(err)
	}
	return &listing, nil
}

func (s *GormStore) GetListingImages(ctx context.Context, listingID uint) ([]model.ListingImage, error) {
	var images []model.ListingImage
	err := s.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order(`"order"`).
		Find(&images).Error
	return images, err
}

func (s *GormStore) SetListingStatus(ctx context.Context, listingID uint, allowedFrom []model.ListingStatus, to model.ListingStatus) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Listing{}).
		Where("id = ? AND status IN ?", listingID, allowedFrom).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) GetLocation(ctx context.Context, id uint) (*model.Location, error) {
	var loc model.Location
	if err := s.db.WithContext(ctx).First(&loc, id).Error; err != nil {
		return nil, translate(err)
	}
	return &loc, nil
}

func (s *GormStore) ResolveLocation(ctx context.Context, loc model.Location) (*model.Location, error) {
	var found model.Location
	err := s.db.WithContext(ctx).
		Where("country_code = ? AND place = ? AND locality = ?", loc.CountryCode, loc.Place, loc.Locality).
		First(&found).Error
	if err == nil {
		if found.CanonicalID != 0 && found.CanonicalID != found.ID {
			return s.GetLocation(ctx, found.CanonicalID)
		}
		return &found, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(&loc).Error; err != nil {
		return nil, err
	}
	loc.CanonicalID = loc.ID
	if err := s.db.WithContext(ctx).Model(&loc).Update("canonical_id", loc.ID).Error; err != nil {
		return nil, err
	}
	return &loc, nil
}

func (s *GormStore) AddListingsCount(ctx context.Context, locationID uint, delta int) error {
	return s.db.WithContext(ctx).Model(&model.Location{}).
		Where("id = ?", locationID).
		Update("listings_count", gorm.Expr("listings_count + ?", delta)).Error
}

func (s *GormStore) GetPublicListingByListing(ctx context.Context, listingID uint) (*model.PublicListing, error) {
	var pub model.PublicListing
	err := s.db.WithContext(ctx).
		Preload("Media").
		Where("listing_id = ?", listingID).
		First(&pub).Error
	if err != nil {
		return nil, translate(err)
	}
	return &pub, nil
}

func (s *GormStore) PutPublicListing(ctx context.Context, pub *model.PublicListing, media []model.PublicListingMedia) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stale model.PublicListing
		err := tx.Where("listing_id = ?", pub.ListingID).First(&stale).Error
		if err == nil {
			if err := tx.Where("public_listing_id = ?", stale.ID).Delete(&model.PublicListingMedia{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Delete(&stale).Error; err != nil {
				return err
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(pub).Error; err != nil {
			return err
		}
		for i := range media {
			media[i].PublicListingID = pub.ID
		}
		if len(media) > 0 {
			if err := tx.Create(&media).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) DeletePublicListing(ctx context.Context, listingID uint) (bool, error) {
	existed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pub model.PublicListing
		err := tx.Where("listing_id = ?", listingID).First(&pub).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		if err := tx.Where("public_listing_id = ?", pub.ID).Delete(&model.PublicListingMedia{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&pub).Error
	})
	return existed, err
}

func (s *GormStore) HasProcessed(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) MarkProcessed(ctx context.Context, entry *model.ProcessedEvent) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(entry).Error
}

func (s *GormStore) ListPlans(ctx context.Context) ([]model.SubscriptionPlan, error) {
	var plans []model.SubscriptionPlan
	err := s.db.WithContext(ctx).Order("price").Find(&plans).Error
	return plans, err
}

func (s *GormStore) GetPlanByStripePrice(ctx context.Context, priceID string) (*model.SubscriptionPlan, error) {
	var plan model.SubscriptionPlan
	if err := s.db.WithContext(ctx).Where("stripe_price_id = ?", priceID).First(&plan).Error; err != nil {
		return nil, translate(err)
	}
	return &plan, nil
}

func (s *GormStore) UpsertPlanCatalog(ctx context.Context, plan *model.SubscriptionPlan) error {
	var existing model.SubscriptionPlan
	err := s.db.WithContext(ctx).Where("stripe_product_id = ?", plan.StripeProductID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.WithContext(ctx).Create(plan).Error
	}
	if err != nil {
		return err
	}
	updates := map[string]interface{}{}
	if plan.Name != "" {
		updates["name"] = plan.Name
	}
	if plan.Description != "" {
		updates["description"] = plan.Description
	}
	if plan.Price > 0 {
		updates["price"] = plan.Price
	}
	if plan.Currency != "" {
		updates["currency"] = plan.Currency
	}
	if plan.StripePriceID != "" {
		updates["stripe_price_id"] = plan.StripePriceID
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&existing).Updates(updates).Error
}
