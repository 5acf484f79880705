package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"lodgepage_backend/internal/model"
)

// MemoryStore is an in-memory Store used by unit tests.
type MemoryStore struct {
	mu sync.Mutex

	hosts         map[uint]model.Host
	subscriptions map[uint]model.HostSubscription // by host id
	slots         map[string]model.AdvertisingSlot
	listings      map[uint]model.Listing
	images        map[uint][]model.ListingImage
	locations     map[uint]model.Location
	public        map[uint]model.PublicListing // by listing id
	publicMedia   map[uint][]model.PublicListingMedia
	processed     map[string]model.ProcessedEvent
	plans         map[uint]model.SubscriptionPlan

	nextID uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hosts:         make(map[uint]model.Host),
		subscriptions: make(map[uint]model.HostSubscription),
		slots:         make(map[string]model.AdvertisingSlot),
		listings:      make(map[uint]model.Listing),
		images:        make(map[uint][]model.ListingImage),
		locations:     make(map[uint]model.Location),
		public:        make(map[uint]model.PublicListing),
		publicMedia:   make(map[uint][]model.PublicListingMedia),
		processed:     make(map[string]model.ProcessedEvent),
		plans:         make(map[uint]model.SubscriptionPlan),
		nextID:        1,
	}
}

func (s *MemoryStore) allocID() uint {
	id := s.nextID
	s.nextID++
	return id
}

// Seed helpers for tests.

func (s *MemoryStore) SeedHost(host model.Host) model.Host {
	s.mu.Lock()
	defer s.mu.Unlock()
	if host.ID == 0 {
		host.ID = s.allocID()
	}
	s.hosts[host.ID] = host
	return host
}

func (s *MemoryStore) SeedListing(listing model.Listing, images ...model.ListingImage) model.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	if listing.ID == 0 {
		listing.ID = s.allocID()
	}
	s.listings[listing.ID] = listing
	for i := range images {
		images[i].ListingID = listing.ID
	}
	s.images[listing.ID] = images
	return listing
}

func (s *MemoryStore) SeedPlan(plan model.SubscriptionPlan) model.SubscriptionPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	if plan.ID == 0 {
		plan.ID = s.allocID()
	}
	s.plans[plan.ID] = plan
	return plan
}

func (s *MemoryStore) GetHost(_ context.Context, id uint) (*model.Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	host, ok := s.hosts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &host, nil
}

func (s *MemoryStore) GetSubscriptionByHost(_ context.Context, hostID uint) (*model.HostSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[hostID]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (s *MemoryStore) GetSubscriptionByCustomer(_ context.Context, stripeCustomerID string) (*model.HostSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscriptions {
		if sub.StripeCustomerID == stripeCustomerID {
			return &sub, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetSubscriptionByStripeSub(_ context.Context, stripeSubID string) (*model.HostSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscriptions {
		if sub.StripeSubID == stripeSubID {
			return &sub, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateSubscription(_ context.Context, sub *model.HostSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == 0 {
		sub.ID = s.allocID()
	}
	s.subscriptions[sub.HostID] = *sub
	return nil
}

func (s *MemoryStore) SaveSubscription(ctx context.Context, sub *model.HostSubscription) error {
	return s.CreateSubscription(ctx, sub)
}

func (s *MemoryStore) ListSuspendedBefore(_ context.Context, cutoff time.Time) ([]model.HostSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var subs []model.HostSubscription
	for _, sub := range s.subscriptions {
		if sub.Status == model.SubscriptionSuspended && sub.SuspendedAt != nil && !sub.SuspendedAt.After(cutoff) {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (s *MemoryStore) GetSlot(_ context.Context, slotID string) (*model.AdvertisingSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotID]
	if !ok {
		return nil, ErrNotFound
	}
	return &slot, nil
}

func (s *MemoryStore) GetLiveSlotByListing(_ context.Context, listingID uint) (*model.AdvertisingSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range s.slots {
		if slot.ListingID == listingID && slot.Status.Live() {
			return &slot, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateSlotConditional(_ context.Context, slot *model.AdvertisingSlot, maxListings int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var liveCount int
	for _, existing := range s.slots {
		if !existing.Status.Live() {
			continue
		}
		if existing.ListingID == slot.ListingID {
			return ErrSlotConflict
		}
		if existing.HostID == slot.HostID {
			liveCount++
		}
	}
	if liveCount >= maxListings {
		return ErrEntitlementExceeded
	}

	if slot.ID == 0 {
		slot.ID = s.allocID()
	}
	s.slots[slot.SlotID] = *slot
	return nil
}

func (s *MemoryStore) SaveSlot(_ context.Context, slot *model.AdvertisingSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot.SlotID] = *slot
	return nil
}

func (s *MemoryStore) CountLiveSlotsByHost(_ context.Context, hostID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, slot := range s.slots {
		if slot.HostID == hostID && slot.Status.Live() {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ListLiveSlotsByHost(_ context.Context, hostID uint) ([]model.AdvertisingSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var slots []model.AdvertisingSlot
	for _, slot := range s.slots {
		if slot.HostID == hostID && slot.Status.Live() {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].ExpiresAt.Before(slots[j].ExpiresAt) })
	return slots, nil
}

func (s *MemoryStore) ListSlotsExpiringBefore(_ context.Context, cutoff time.Time, statuses []model.SlotStatus) ([]model.AdvertisingSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	allowed := make(map[model.SlotStatus]bool, len(statuses))
	for _, st := range statuses {
		allowed[st] = true
	}
	var slots []model.AdvertisingSlot
	for _, slot := range s.slots {
		if allowed[slot.Status] && slot.ExpiresAt.Before(cutoff) {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].ExpiresAt.Before(slots[j].ExpiresAt) })
	return slots, nil
}

func (s *MemoryStore) GetListing(_ context.Context, id uint) (*model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &listing, nil
}

func (s *MemoryStore) GetListingImages(_ context.Context, listingID uint) ([]model.ListingImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	images := make([]model.ListingImage, len(s.images[listingID]))
	copy(images, s.images[listingID])
	return images, nil
}

func (s *MemoryStore) SetListingStatus(_ context.Context, listingID uint, allowedFrom []model.ListingStatus, to model.ListingStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.listings[listingID]
	if !ok {
		return false, nil
	}
	for _, from := range allowedFrom {
		if listing.Status == from {
			listing.Status = to
			s.listings[listingID] = listing
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetLocation(_ context.Context, id uint) (*model.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.locations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &loc, nil
}

func (s *MemoryStore) ResolveLocation(_ context.Context, loc model.Location) (*model.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.locations {
		if existing.CountryCode == loc.CountryCode && existing.Place == loc.Place && existing.Locality == loc.Locality {
			if existing.CanonicalID != 0 && existing.CanonicalID != existing.ID {
				canonical := s.locations[existing.CanonicalID]
				return &canonical, nil
			}
			return &existing, nil
		}
	}
	loc.ID = s.allocID()
	loc.CanonicalID = loc.ID
	s.locations[loc.ID] = loc
	return &loc, nil
}

func (s *MemoryStore) AddListingsCount(_ context.Context, locationID uint, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.locations[locationID]
	if !ok {
		return ErrNotFound
	}
	loc.ListingsCount += int64(delta)
	s.locations[locationID] = loc
	return nil
}

func (s *MemoryStore) GetPublicListingByListing(_ context.Context, listingID uint) (*model.PublicListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pub, ok := s.public[listingID]
	if !ok {
		return nil, ErrNotFound
	}
	pub.Media = append([]model.PublicListingMedia(nil), s.publicMedia[listingID]...)
	return &pub, nil
}

func (s *MemoryStore) PutPublicListing(_ context.Context, pub *model.PublicListing, media []model.PublicListingMedia) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub.ID == 0 {
		pub.ID = s.allocID()
	}
	s.public[pub.ListingID] = *pub
	rows := make([]model.PublicListingMedia, len(media))
	copy(rows, media)
	for i := range rows {
		rows[i].PublicListingID = pub.ID
	}
	s.publicMedia[pub.ListingID] = rows
	return nil
}

func (s *MemoryStore) DeletePublicListing(_ context.Context, listingID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.public[listingID]
	delete(s.public, listingID)
	delete(s.publicMedia, listingID)
	return existed, nil
}

func (s *MemoryStore) HasProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[eventID]
	return ok, nil
}

func (s *MemoryStore) MarkProcessed(_ context.Context, entry *model.ProcessedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[entry.EventID]; ok {
		return nil
	}
	s.processed[entry.EventID] = *entry
	return nil
}

func (s *MemoryStore) ListPlans(_ context.Context) ([]model.SubscriptionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plans := make([]model.SubscriptionPlan, 0, len(s.plans))
	for _, plan := range s.plans {
		plans = append(plans, plan)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Price < plans[j].Price })
	return plans, nil
}

func (s *MemoryStore) GetPlanByStripePrice(_ context.Context, priceID string) (*model.SubscriptionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, plan := range s.plans {
		if plan.StripePriceID == priceID {
			return &plan, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpsertPlanCatalog(_ context.Context, plan *model.SubscriptionPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.plans {
		if existing.StripeProductID == plan.StripeProductID {
			if plan.Name != "" {
				existing.Name = plan.Name
			}
			if plan.Description != "" {
				existing.Description = plan.Description
			}
			if plan.Price > 0 {
				existing.Price = plan.Price
			}
			if plan.Currency != "" {
				existing.Currency = plan.Currency
			}
			if plan.StripePriceID != "" {
				existing.StripePriceID = plan.StripePriceID
			}
			s.plans[id] = existing
			return nil
		}
	}
	if plan.ID == 0 {
		plan.ID = s.allocID()
	}
	s.plans[plan.ID] = *plan
	return nil
}
