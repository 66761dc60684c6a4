package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"greendrake/r1/internal/utils"
)

// PaymentPurpose distinguishes the introduction fee from the commission
// collected after a successful rental.
type PaymentPurpose string

const (
	PurposeContact    PaymentPurpose = "contact"
	PurposeCommission PaymentPurpose = "commission"
)

// PaymentStatus is the lifecycle state of a fee collection attempt.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Payment represents one attempted fee collection. CorrelationID is generated
// at initialization, is globally unique and never changes: it is the key the
// gateway echoes back in callbacks and the idempotency key for applying them.
// Amount is in currency minor units.
type Payment struct {
	Base          `bson:",inline"`
	CorrelationID string         `bson:"correlation_id" json:"correlation_id"`
	PayerID       utils.SixID    `bson:"payer_id" json:"payer_id"`
	ListingID     utils.SixID    `bson:"listing_id" json:"listing_id"`
	Purpose       PaymentPurpose `bson:"purpose" json:"purpose"`
	Amount        int64          `bson:"amount" json:"amount"`
	CurrencyCode  string         `bson:"currency_code" json:"currency_code"`
	Status        PaymentStatus  `bson:"status" json:"status"`

	// Checkout handle returned by the gateway at initialization.
	CheckoutURL   string `bson:"checkout_url,omitempty" json:"checkout_url,omitempty"`
	CheckoutToken string `bson:"checkout_token,omitempty" json:"-"`

	// Gateway confirmation metadata.
	Method      string     `bson:"method,omitempty" json:"method,omitempty"`
	PaidAt      *time.Time `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
	RawCallback bson.M     `bson:"raw_callback,omitempty" json:"-"`
	FailureNote string     `bson:"failure_note,omitempty" json:"-"`

	// Introduction request data carried until the contact case is created.
	Message        string   `bson:"message,omitempty" json:"message,omitempty"`
	PreferredSlots []string `bson:"preferred_slots,omitempty" json:"preferred_slots,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the payment has reached a final status.
// Terminal statuses admit no further transitions; re-delivered gateway
// results for a terminal payment are no-ops.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentCompleted, PaymentFailed, PaymentRefunded, PaymentCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving to target is a legal transition.
// pending resolves exactly once to completed, failed or cancelled; refunded
// is reachable only from completed by staff action.
func (p *Payment) CanTransitionTo(target PaymentStatus) error {
	switch p.Status {
	case PaymentPending:
		if target == PaymentCompleted || target == PaymentFailed || target == PaymentCancelled {
			return nil
		}
	case PaymentCompleted:
		if target == PaymentRefunded {
			return nil
		}
	}
	return fmt.Errorf("payment transition %s -> %s is not permitted", p.Status, target)
}
