package model

import (
	"strings"

	"gorm.io/gorm"
)

type Host struct {
	gorm.Model
	Email       string `json:"email" gorm:"uniqueIndex;not null"`
	Username    string `json:"username" gorm:"uniqueIndex;not null"`
	CompanyName string `json:"company_name" gorm:"not null"`

	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`

	// İlişkiler
	Listings     []Listing         `json:"-"`
	Subscription *HostSubscription `json:"-" gorm:"foreignKey:HostID"`
}

func (h *Host) GetFullName() string {
	return strings.TrimSpace(h.FirstName + " " + h.LastName)
}
