// Package plan is the entitlement source: a short-lived cache over the
// SubscriptionPlan catalog so entitlement checks do not hit the database on
// every publish.
package plan

import (
	"context"
	"sync"
	"time"

	"lodgepage_backend/internal/model"
	"lodgepage_backend/internal/store"
)

// DefaultMaxListings applies to hosts whose plan cannot be resolved.
const DefaultMaxListings = 1

const cacheTTL = 5 * time.Minute

type Catalog struct {
	Plans store.PlanStore

	mu        sync.Mutex
	cached    []model.SubscriptionPlan
	refreshed time.Time
}

func NewCatalog(plans store.PlanStore) *Catalog {
	return &Catalog{Plans: plans}
}

func (c *Catalog) List(ctx context.Context) ([]model.SubscriptionPlan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.refreshed) < cacheTTL && c.cached != nil {
		return c.cached, nil
	}
	plans, err := c.Plans.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	c.cached = plans
	c.refreshed = time.Now()
	return plans, nil
}
