package models

import (
	"time"

	"greendrake/r1/internal/utils"
)

// ContactStatus is the lifecycle state of a mediated introduction.
type ContactStatus string

const (
	ContactPending        ContactStatus = "pending"
	ContactContacted      ContactStatus = "contacted"
	ContactVisitScheduled ContactStatus = "visit_scheduled"
	ContactVisitDone      ContactStatus = "visit_done"
	ContactNegotiating    ContactStatus = "negotiating"
	ContactSuccess        ContactStatus = "success"
	ContactCancelled      ContactStatus = "cancelled"
	ContactFailed         ContactStatus = "failed"
)

// IsTerminalContactStatus reports whether s admits no further transitions.
func IsTerminalContactStatus(s ContactStatus) bool {
	switch s {
	case ContactSuccess, ContactCancelled, ContactFailed:
		return true
	}
	return false
}

// VisitRecord holds the scheduled viewing and its result.
type VisitRecord struct {
	Date     string `bson:"date" json:"date"` // YYYY-MM-DD
	Time     string `bson:"time,omitempty" json:"time,omitempty"`
	Address  string `bson:"address,omitempty" json:"address,omitempty"`
	Notes    string `bson:"notes,omitempty" json:"notes,omitempty"`
	Attended *bool  `bson:"attended,omitempty" json:"attended,omitempty"`
	Feedback string `bson:"feedback,omitempty" json:"feedback,omitempty"`
}

// OutcomeRecord is stamped when a case closes.
type OutcomeRecord struct {
	Result              string       `bson:"result" json:"result"`
	Reason              string       `bson:"reason,omitempty" json:"reason,omitempty"`
	ClosedAt            time.Time    `bson:"closed_at" json:"closed_at"`
	CommissionPaid      bool         `bson:"commission_paid" json:"commission_paid"`
	CommissionPaymentID *utils.SixID `bson:"commission_payment,omitempty" json:"commission_payment,omitempty"`
}

// StaffNote is one entry of the append-only staff log on a case.
type StaffNote struct {
	AuthorID  utils.SixID `bson:"author_id" json:"author_id"`
	Text      string      `bson:"text" json:"text"`
	CreatedAt time.Time   `bson:"created_at" json:"created_at"`
}

// ContactCase is a staff-mediated introduction between a requester and a
// listing owner. A case exists only as the side effect of a completed
// contact-purpose payment, which it references via PaymentID.
//
// Active mirrors "status is non-terminal" and exists so the store can enforce
// at most one active case per (requester, listing) with a plain-equality
// partial index. Every status transition keeps it in sync.
type ContactCase struct {
	Base           `bson:",inline"`
	RequesterID    utils.SixID    `bson:"requester_id" json:"requester_id"`
	ListingID      utils.SixID    `bson:"listing_id" json:"listing_id"`
	PaymentID      utils.SixID    `bson:"payment_id" json:"payment_id"`
	Message        string         `bson:"message,omitempty" json:"message,omitempty"`
	PreferredSlots []string       `bson:"preferred_slots,omitempty" json:"preferred_slots,omitempty"`
	Status         ContactStatus  `bson:"status" json:"status"`
	Active         bool           `bson:"active" json:"-"`
	Visit          *VisitRecord   `bson:"visit,omitempty" json:"visit,omitempty"`
	Outcome        *OutcomeRecord `bson:"outcome,omitempty" json:"outcome,omitempty"`
	Priority       int            `bson:"priority" json:"priority"`
	AssignedStaff  *utils.SixID   `bson:"assigned_staff,omitempty" json:"assigned_staff,omitempty"`
	Notes          []StaffNote    `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt      time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `bson:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the case has closed.
func (c *ContactCase) IsTerminal() bool {
	return IsTerminalContactStatus(c.Status)
}
