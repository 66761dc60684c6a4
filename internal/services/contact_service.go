package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"greendrake/r1/internal/config"
	"greendrake/r1/internal/db"
	"greendrake/r1/internal/models"
	"greendrake/r1/internal/utils"
)

// IContactService defines the interface for contact case operations.
type IContactService interface {
	CreateFromPayment(ctx context.Context, payment *models.Payment) (*models.ContactCase, bool, error)
	FindByID(ctx context.Context, caseID utils.SixID) (*models.ContactCase, error)
	FindByPaymentID(ctx context.Context, paymentID utils.SixID) (*models.ContactCase, error)
	ListByStatus(ctx context.Context, status models.ContactStatus) ([]models.ContactCase, error)
	ListByRequester(ctx context.Context, requesterID utils.SixID) ([]models.ContactCase, error)
	MarkContacted(ctx context.Context, caseID, staffID utils.SixID) error
	ScheduleVisit(ctx context.Context, caseID, staffID utils.SixID, visit models.VisitRecord) error
	CompleteVisit(ctx context.Context, caseID, staffID utils.SixID, attended bool, feedback string) error
	StartNegotiation(ctx context.Context, caseID, staffID utils.SixID) error
	CloseAsSuccess(ctx context.Context, caseID, staffID utils.SixID, commissionPaymentID *utils.SixID) error
	CloseAsFailed(ctx context.Context, caseID, staffID utils.SixID, reason string) error
	Cancel(ctx context.Context, caseID, requesterID utils.SixID) error
	AssignStaff(ctx context.Context, caseID, staffID utils.SixID) error
	SetPriority(ctx context.Context, caseID utils.SixID, priority int) error
	AddNote(ctx context.Context, caseID, authorID utils.SixID, text string) error
}

const contactCasesCollection = "contact_cases"

// contactService implements IContactService.
type contactService struct {
	db             *mongo.Database
	cfg            *config.Config
	listingService IListingService
}

// NewContactService creates a new ContactService.
func NewContactService(db *mongo.Database, cfg *config.Config, listingService IListingService) IContactService {
	return &contactService{db: db, cfg: cfg, listingService: listingService}
}

// CreateFromPayment opens a mediation case backed by a completed contact
// payment. The unique index on payment_id makes the call idempotent: a second
// call for the same payment returns the existing case with created=false. The
// partial unique index on (requester_id, listing_id, active) rejects a second
// live case for the same pair with ErrDuplicateActiveRequest. Callers that
// attach side effects to case creation must key them off the created flag.
func (s *contactService) CreateFromPayment(ctx context.Context, payment *models.Payment) (*models.ContactCase, bool, error) {
	if payment.Status != models.PaymentCompleted {
		return nil, false, fmt.Errorf("%w: contact case requires a completed payment, got %s", ErrInvalidTransition, payment.Status)
	}
	if payment.Purpose != models.PurposeContact {
		return nil, false, fmt.Errorf("%w: payment %s is a %s payment", ErrInvalidTransition, payment.ID.String(), payment.Purpose)
	}

	now := time.Now().UTC()
	contactCase := &models.ContactCase{
		RequesterID:    payment.PayerID,
		ListingID:      payment.ListingID,
		PaymentID:      payment.ID,
		Message:        payment.Message,
		PreferredSlots: payment.PreferredSlots,
		Status:         models.ContactPending,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	contactCase.GenIDIfEmpty()

	// Not wrapped in the id-collision retry on purpose: a duplicate key here
	// must be classified by index, not blindly retried.
	_, err := s.db.Collection(contactCasesCollection).InsertOne(ctx, contactCase)
	if err != nil {
		switch idx := db.DuplicateKeyIndex(err); idx {
		case db.IdxContactPayment, db.IdxContactActivePair:
			// A replayed payment violates both unique indexes and the server
			// reports whichever aborted the insert first. A case keyed to
			// this payment means replay, not a conflicting earlier request.
			existing, findErr := s.FindByPaymentID(ctx, payment.ID)
			if findErr == nil {
				return existing, false, nil
			}
			if idx == db.IdxContactActivePair && errors.Is(findErr, mongo.ErrNoDocuments) {
				return nil, false, ErrDuplicateActiveRequest
			}
			return nil, false, fmt.Errorf("case for payment %s could not be loaded after duplicate key: %w", payment.ID.String(), findErr)
		case "_id_":
			// SixID collision, vanishingly rare. Retry once with a fresh id.
			contactCase.GenID()
			if _, retryErr := s.db.Collection(contactCasesCollection).InsertOne(ctx, contactCase); retryErr == nil {
				return contactCase, true, nil
			}
			fallthrough
		default:
			return nil, false, fmt.Errorf("failed to insert contact case for payment %s: %w", payment.ID.String(), err)
		}
	}

	log.Printf("Contact case %s opened for listing %s (payment %s).", contactCase.ID.String(), payment.ListingID.String(), payment.ID.String())
	return contactCase, true, nil
}

// FindByID finds a contact case by its ID.
func (s *contactService) FindByID(ctx context.Context, caseID utils.SixID) (*models.ContactCase, error) {
	var contactCase models.ContactCase
	err := s.db.Collection(contactCasesCollection).FindOne(ctx, bson.M{"_id": caseID}).Decode(&contactCase)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding contact case %s: %w", caseID.String(), err)
	}
	return &contactCase, nil
}

// FindByPaymentID finds the case opened by a specific payment.
func (s *contactService) FindByPaymentID(ctx context.Context, paymentID utils.SixID) (*models.ContactCase, error) {
	var contactCase models.ContactCase
	err := s.db.Collection(contactCasesCollection).FindOne(ctx, bson.M{"payment_id": paymentID}).Decode(&contactCase)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding contact case for payment %s: %w", paymentID.String(), err)
	}
	return &contactCase, nil
}

// ListByStatus returns cases in a given status, highest priority first.
func (s *contactService) ListByStatus(ctx context.Context, status models.ContactStatus) ([]models.ContactCase, error) {
	opts := options.Find().SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "created_at", Value: 1}})
	cursor, err := s.db.Collection(contactCasesCollection).Find(ctx, bson.M{"status": status}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query contact cases with status %s: %w", status, err)
	}
	defer cursor.Close(ctx)

	var cases []models.ContactCase
	if err = cursor.All(ctx, &cases); err != nil {
		return nil, fmt.Errorf("failed to decode contact cases with status %s: %w", status, err)
	}
	return cases, nil
}

// ListByRequester returns all cases opened by a requester, newest first.
func (s *contactService) ListByRequester(ctx context.Context, requesterID utils.SixID) ([]models.ContactCase, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.db.Collection(contactCasesCollection).Find(ctx, bson.M{"requester_id": requesterID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query contact cases for requester %s: %w", requesterID.String(), err)
	}
	defer cursor.Close(ctx)

	var cases []models.ContactCase
	if err = cursor.All(ctx, &cases); err != nil {
		return nil, fmt.Errorf("failed to decode contact cases for requester %s: %w", requesterID.String(), err)
	}
	return cases, nil
}

// transition applies a conditional status update. allowedFrom lists the
// statuses the update may start from; extraSet carries fields set alongside
// the status. On MatchedCount 0 it loads the case to produce a precise error.
func (s *contactService) transition(ctx context.Context, caseID utils.SixID, allowedFrom []models.ContactStatus, target models.ContactStatus, extraSet bson.M) error {
	set := bson.M{
		"status":     target,
		"active":     !models.IsTerminalContactStatus(target),
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extraSet {
		set[k] = v
	}

	collection := s.db.Collection(contactCasesCollection)
	result, err := collection.UpdateOne(ctx,
		bson.M{"_id": caseID, "status": bson.M{"$in": allowedFrom}},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("db error moving contact case %s to %s: %w", caseID.String(), target, err)
	}
	if result.MatchedCount == 0 {
		var contactCase models.ContactCase
		checkErr := collection.FindOne(ctx, bson.M{"_id": caseID}).Decode(&contactCase)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return mongo.ErrNoDocuments
		}
		if contactCase.Status == target {
			return nil // already there
		}
		return fmt.Errorf("%w: contact case %s is %s, cannot move to %s", ErrInvalidTransition, caseID.String(), contactCase.Status, target)
	}
	return nil
}

// MarkContacted records that staff reached the listing owner.
func (s *contactService) MarkContacted(ctx context.Context, caseID, staffID utils.SixID) error {
	err := s.transition(ctx, caseID, []models.ContactStatus{models.ContactPending}, models.ContactContacted, nil)
	if err == nil {
		log.Printf("Contact case %s marked contacted by staff %s.", caseID.String(), staffID.String())
	}
	return err
}

// ScheduleVisit books a viewing. Allowed from any non-terminal state: a
// requester may name a slot the owner accepts before staff record first
// contact, and a fallen-through visit can be rescheduled.
func (s *contactService) ScheduleVisit(ctx context.Context, caseID, staffID utils.SixID, visit models.VisitRecord) error {
	if visit.Date == "" {
		return fmt.Errorf("visit date is required")
	}
	from := []models.ContactStatus{
		models.ContactPending,
		models.ContactContacted,
		models.ContactVisitScheduled,
		models.ContactVisitDone,
		models.ContactNegotiating,
	}
	err := s.transition(ctx, caseID, from, models.ContactVisitScheduled, bson.M{"visit": visit})
	if err == nil {
		log.Printf("Contact case %s: visit scheduled for %s by staff %s.", caseID.String(), visit.Date, staffID.String())
	}
	return err
}

// CompleteVisit records the outcome of a scheduled viewing.
func (s *contactService) CompleteVisit(ctx context.Context, caseID, staffID utils.SixID, attended bool, feedback string) error {
	return s.transition(ctx, caseID,
		[]models.ContactStatus{models.ContactVisitScheduled},
		models.ContactVisitDone,
		bson.M{"visit.attended": attended, "visit.feedback": feedback},
	)
}

// StartNegotiation moves a case into negotiation after a completed visit.
func (s *contactService) StartNegotiation(ctx context.Context, caseID, staffID utils.SixID) error {
	return s.transition(ctx, caseID,
		[]models.ContactStatus{models.ContactVisitDone},
		models.ContactNegotiating,
		nil,
	)
}

// CloseAsSuccess closes the case as a concluded rental and marks the listing
// rented to the requester. Calling it again on an already successful case is
// a no-op. This is the only path that marks a listing rented.
func (s *contactService) CloseAsSuccess(ctx context.Context, caseID, staffID utils.SixID, commissionPaymentID *utils.SixID) error {
	contactCase, err := s.FindByID(ctx, caseID)
	if err != nil {
		return err
	}

	outcome := models.OutcomeRecord{
		Result:              "rented",
		ClosedAt:            time.Now().UTC(),
		CommissionPaid:      commissionPaymentID != nil,
		CommissionPaymentID: commissionPaymentID,
	}
	from := []models.ContactStatus{
		models.ContactContacted,
		models.ContactVisitScheduled,
		models.ContactVisitDone,
		models.ContactNegotiating,
	}
	if err := s.transition(ctx, caseID, from, models.ContactSuccess, bson.M{"outcome": outcome}); err != nil {
		return err
	}

	if err := s.listingService.MarkRented(ctx, contactCase.ListingID, contactCase.RequesterID); err != nil {
		// The case is closed either way; the listing state is repairable by
		// staff via the status override.
		log.Printf("CRITICAL: Contact case %s closed as success but listing %s could not be marked rented: %v", caseID.String(), contactCase.ListingID.String(), err)
		return fmt.Errorf("case closed but listing %s not marked rented: %w", contactCase.ListingID.String(), err)
	}

	log.Printf("Contact case %s closed as success by staff %s; listing %s rented.", caseID.String(), staffID.String(), contactCase.ListingID.String())
	return nil
}

// CloseAsFailed closes the case without a rental.
func (s *contactService) CloseAsFailed(ctx context.Context, caseID, staffID utils.SixID, reason string) error {
	if reason == "" {
		return fmt.Errorf("failure reason is required")
	}
	outcome := models.OutcomeRecord{
		Result:   "failed",
		Reason:   reason,
		ClosedAt: time.Now().UTC(),
	}
	from := []models.ContactStatus{
		models.ContactPending,
		models.ContactContacted,
		models.ContactVisitScheduled,
		models.ContactVisitDone,
		models.ContactNegotiating,
	}
	err := s.transition(ctx, caseID, from, models.ContactFailed, bson.M{"outcome": outcome})
	if err == nil {
		log.Printf("Contact case %s closed as failed by staff %s: %s", caseID.String(), staffID.String(), reason)
	}
	return err
}

// Cancel lets the requester withdraw early, before staff work has gone past
// first contact. Only the case's own requester may cancel.
func (s *contactService) Cancel(ctx context.Context, caseID, requesterID utils.SixID) error {
	contactCase, err := s.FindByID(ctx, caseID)
	if err != nil {
		return err
	}
	if contactCase.RequesterID != requesterID {
		return ErrNotRequester
	}

	outcome := models.OutcomeRecord{
		Result:   "cancelled",
		Reason:   "withdrawn by requester",
		ClosedAt: time.Now().UTC(),
	}
	return s.transition(ctx, caseID,
		[]models.ContactStatus{models.ContactPending, models.ContactContacted},
		models.ContactCancelled,
		bson.M{"outcome": outcome},
	)
}

// AssignStaff sets the staff member handling the case.
func (s *contactService) AssignStaff(ctx context.Context, caseID, staffID utils.SixID) error {
	result, err := s.db.Collection(contactCasesCollection).UpdateOne(ctx,
		bson.M{"_id": caseID, "active": true},
		bson.M{"$set": bson.M{"assigned_staff": staffID, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("db error assigning staff to contact case %s: %w", caseID.String(), err)
	}
	if result.MatchedCount == 0 {
		return s.activeCheckFailure(ctx, caseID)
	}
	return nil
}

// SetPriority adjusts the handling priority of an active case.
func (s *contactService) SetPriority(ctx context.Context, caseID utils.SixID, priority int) error {
	result, err := s.db.Collection(contactCasesCollection).UpdateOne(ctx,
		bson.M{"_id": caseID, "active": true},
		bson.M{"$set": bson.M{"priority": priority, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("db error setting priority on contact case %s: %w", caseID.String(), err)
	}
	if result.MatchedCount == 0 {
		return s.activeCheckFailure(ctx, caseID)
	}
	return nil
}

// AddNote appends an internal staff note. Notes are allowed on closed cases.
func (s *contactService) AddNote(ctx context.Context, caseID, authorID utils.SixID, text string) error {
	if text == "" {
		return fmt.Errorf("note text is required")
	}
	note := models.StaffNote{AuthorID: authorID, Text: text, CreatedAt: time.Now().UTC()}
	result, err := s.db.Collection(contactCasesCollection).UpdateOne(ctx,
		bson.M{"_id": caseID},
		bson.M{"$push": bson.M{"notes": note}, "$set": bson.M{"updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("db error adding note to contact case %s: %w", caseID.String(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *contactService) activeCheckFailure(ctx context.Context, caseID utils.SixID) error {
	var contactCase models.ContactCase
	checkErr := s.db.Collection(contactCasesCollection).FindOne(ctx, bson.M{"_id": caseID}).Decode(&contactCase)
	if errors.Is(checkErr, mongo.ErrNoDocuments) {
		return mongo.ErrNoDocuments
	}
	return fmt.Errorf("%w: contact case %s is closed (%s)", ErrInvalidTransition, caseID.String(), contactCase.Status)
}
