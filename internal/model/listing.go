package model

import (
	"gorm.io/gorm"
)

type ListingStatus string

const (
	ListingDraft         ListingStatus = "DRAFT"
	ListingPendingReview ListingStatus = "PENDING_REVIEW"
	ListingApproved      ListingStatus = "APPROVED"
	ListingOnline        ListingStatus = "ONLINE"
	ListingOffline       ListingStatus = "OFFLINE"
	ListingRejected      ListingStatus = "REJECTED"
	ListingSuspended     ListingStatus = "SUSPENDED"
)

// Listing is the authoritative record. The sync engine only moves it across
// the ONLINE/OFFLINE boundary; everything else belongs to the review flow.
type Listing struct {
	gorm.Model
	Title       string        `json:"title" gorm:"not null"`
	Status      ListingStatus `json:"status" gorm:"index;default:'DRAFT'"`
	Price       float64       `json:"price"`
	Currency    string        `json:"currency" gorm:"default:'USD'"`
	Description string        `json:"description" gorm:"type:text"`

	HostID     uint `json:"host_id" gorm:"index;not null"`
	LocationID uint `json:"location_id" gorm:"index"`

	// İlişkiler
	Host     Host           `json:"-" gorm:"foreignKey:HostID"`
	Location Location       `json:"-" gorm:"foreignKey:LocationID"`
	Images   []ListingImage `json:"images" gorm:"foreignKey:ListingID;constraint:OnDelete:CASCADE"`
}

type ListingImage struct {
	gorm.Model
	ListingID uint   `json:"listing_id"`
	URL       string `json:"url" gorm:"not null"`
	IsCover   bool   `json:"is_cover" gorm:"default:false"`
	Order     int    `json:"order" gorm:"default:0"`
}

type LocationKind string

const (
	LocationCountry  LocationKind = "COUNTRY"
	LocationPlace    LocationKind = "PLACE"
	LocationLocality LocationKind = "LOCALITY"
)

// Location is a hierarchical place record. Name variants of the same physical
// place share one canonical row; ListingsCount is only ever mutated on that
// canonical row and must equal the number of ONLINE listings resolved to it.
type Location struct {
	gorm.Model
	Kind          LocationKind `json:"kind" gorm:"not null"`
	CountryCode   string       `json:"country_code" gorm:"index:idx_location_key,unique;not null"`
	Place         string       `json:"place" gorm:"index:idx_location_key,unique"`
	Locality      string       `json:"locality" gorm:"index:idx_location_key,unique"`
	CanonicalID   uint         `json:"canonical_id" gorm:"index"`
	ListingsCount int64        `json:"listings_count" gorm:"default:0"`
	ParentID      *uint        `json:"parent_id"`
}

// PublicListing is the denormalized search projection: a row exists iff the
// listing is ONLINE and its slot has not expired.
type PublicListing struct {
	gorm.Model
	ListingID  uint    `json:"listing_id" gorm:"uniqueIndex;not null"`
	LocationID uint    `json:"location_id" gorm:"index:idx_public_location_listing;not null"`
	HostID     uint    `json:"host_id" gorm:"index"`
	Slug       string  `json:"slug" gorm:"index"`
	Title      string  `json:"title" gorm:"not null"`
	Price      float64 `json:"price"`
	Currency   string  `json:"currency"`

	// İlişkiler
	Media []PublicListingMedia `json:"media" gorm:"foreignKey:PublicListingID;constraint:OnDelete:CASCADE"`
}

type PublicListingMedia struct {
	gorm.Model
	PublicListingID uint   `json:"public_listing_id" gorm:"index"`
	ListingID       uint   `json:"listing_id" gorm:"index"`
	URL             string `json:"url" gorm:"not null"`
	IsCover         bool   `json:"is_cover" gorm:"default:false"`
	Order           int    `json:"order" gorm:"default:0"`
}
