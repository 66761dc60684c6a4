package models

import (
	"time"
)

// User represents an account in the system. Authentication and session
// issuance live outside this service; the fields here are what the payment
// and mediation workflows need: the customer snapshot sent to the gateway
// and the staff role gating mediation operations.
type User struct {
	Base      `bson:",inline"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email" json:"email"`
	Phone     string    `bson:"phone,omitempty" json:"phone,omitempty"`
	IsStaff   bool      `bson:"is_staff" json:"is_staff"`
	Suspended bool      `bson:"suspended" json:"suspended"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	Deleted   bool      `bson:"deleted" json:"-"` // Soft delete flag
}
