package model

import (
	"time"

	"gorm.io/gorm"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionSuspended SubscriptionStatus = "SUSPENDED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
)

type SubscriptionPlan struct {
	gorm.Model
	Name            string  `json:"name" gorm:"uniqueIndex;not null"`
	Description     string  `json:"description"`
	Price           float64 `json:"price" gorm:"not null"`
	Currency        string  `json:"currency" gorm:"default:'USD'"`
	DurationDays    int     `json:"duration_days" gorm:"not null"`
	MaxListings     int     `json:"max_listings" gorm:"not null"`
	StripeProductID string  `json:"stripe_product_id" gorm:"index"`
	StripePriceID   string  `json:"stripe_price_id" gorm:"index"`

	// İlişkiler
	HostSubscriptions []HostSubscription
}

// HostSubscription is the single billing record of a host. Cancellation is a
// status change, the row is never deleted.
type HostSubscription struct {
	gorm.Model
	HostID           uint               `json:"host_id" gorm:"uniqueIndex;not null"`
	PlanID           uint               `json:"plan_id"`
	PlanName         string             `json:"plan_name"`
	MaxListings      int                `json:"max_listings" gorm:"not null"`
	Status           SubscriptionStatus `json:"status" gorm:"default:'ACTIVE'"`
	StripeCustomerID string             `json:"stripe_customer_id" gorm:"index"`
	StripeSubID      string             `json:"stripe_subscription_id" gorm:"index"`
	StartedAt        time.Time          `json:"started_at"`
	ExpiresAt        *time.Time         `json:"expires_at"`
	CancelledAt      *time.Time         `json:"cancelled_at"`
	SuspendedAt      *time.Time         `json:"suspended_at"`

	// İlişkiler
	Host Host             `json:"-" gorm:"foreignKey:HostID"`
	Plan SubscriptionPlan `json:"-" gorm:"foreignKey:PlanID"`
}
