package model

import (
	"time"

	"gorm.io/gorm"
)

type SlotStatus string

const (
	SlotActive       SlotStatus = "ACTIVE"
	SlotExpiringSoon SlotStatus = "EXPIRING_SOON"
	SlotExpired      SlotStatus = "EXPIRED"
	SlotDoNotRenew   SlotStatus = "DO_NOT_RENEW"
)

// Live reports whether the slot still entitles its listing to public
// visibility. DO_NOT_RENEW slots stay live until their expiry date.
func (s SlotStatus) Live() bool {
	return s == SlotActive || s == SlotExpiringSoon || s == SlotDoNotRenew
}

// AdvertisingSlot grants one listing the right to appear in public search.
// Expired slots are kept for history, never deleted.
type AdvertisingSlot struct {
	gorm.Model
	SlotID       string     `json:"slot_id" gorm:"uniqueIndex;not null"`
	ListingID    uint       `json:"listing_id" gorm:"index;not null"`
	HostID       uint       `json:"host_id" gorm:"index;not null"`
	Status       SlotStatus `json:"status" gorm:"index;default:'ACTIVE'"`
	ActivatedAt  time.Time  `json:"activated_at"`
	ExpiresAt    time.Time  `json:"expires_at" gorm:"index"`
	RenewalCount int        `json:"renewal_count" gorm:"default:0"`

	// İlişkiler
	Listing Listing `json:"-" gorm:"foreignKey:ListingID"`
	Host    Host    `json:"-" gorm:"foreignKey:HostID"`
}
