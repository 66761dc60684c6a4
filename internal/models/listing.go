package models

import (
	"time"

	"greendrake/r1/internal/utils"
)

// PublicationStatus describes where a listing sits in its rental lifecycle.
type PublicationStatus string

const (
	PublicationPending    PublicationStatus = "pending"
	PublicationAvailable  PublicationStatus = "available"
	PublicationProcessing PublicationStatus = "processing"
	PublicationReserved   PublicationStatus = "reserved"
	PublicationRented     PublicationStatus = "rented"
	PublicationArchived   PublicationStatus = "archived"
)

// ValidationStatus is the staff review state of a listing.
type ValidationStatus string

const (
	ValidationPending  ValidationStatus = "pending"
	ValidationApproved ValidationStatus = "approved"
	ValidationRejected ValidationStatus = "rejected"
)

// IsValidPublicationStatus reports whether s is one of the known publication
// statuses. Used to validate staff override input.
func IsValidPublicationStatus(s PublicationStatus) bool {
	switch s {
	case PublicationPending, PublicationAvailable, PublicationProcessing,
		PublicationReserved, PublicationRented, PublicationArchived:
		return true
	}
	return false
}

// Occupancy records the current tenant of a rented listing.
type Occupancy struct {
	TenantID  utils.SixID `bson:"tenant_id" json:"tenant_id"`
	StartDate time.Time   `bson:"start_date" json:"start_date"`
	EndDate   *time.Time  `bson:"end_date,omitempty" json:"end_date,omitempty"`
}

// Listing represents a rentable room published by an owner.
// MonthlyFee is in currency minor units.
type Listing struct {
	Base              `bson:",inline"`
	OwnerID           utils.SixID       `bson:"owner_id" json:"owner_id"`
	Title             string            `bson:"title" json:"title"`
	Address           string            `bson:"address" json:"address"`
	MonthlyFee        int64             `bson:"monthly_fee" json:"monthly_fee"`
	CurrencyCode      string            `bson:"currency_code" json:"currency_code"`
	PublicationStatus PublicationStatus `bson:"publication_status" json:"publication_status"`
	ValidationStatus  ValidationStatus  `bson:"validation_status" json:"validation_status"`
	RejectionReason   string            `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	Occupancy         *Occupancy        `bson:"occupancy,omitempty" json:"occupancy,omitempty"`
	ViewCount         int64             `bson:"view_count" json:"view_count"`
	ContactCount      int64             `bson:"contact_count" json:"contact_count"`
	CreatedAt         time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `bson:"updated_at" json:"updated_at"`
	Deleted           bool              `bson:"deleted" json:"-"` // Soft delete flag
}

// Contactable reports whether the listing may receive a new contact case:
// approved by staff and currently available.
func (l *Listing) Contactable() bool {
	return l.ValidationStatus == ValidationApproved && l.PublicationStatus == PublicationAvailable
}
