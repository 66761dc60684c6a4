package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"greendrake/r1/internal/config"
	"greendrake/r1/internal/db"
	"greendrake/r1/internal/gateway"
	"greendrake/r1/internal/models"
	"greendrake/r1/internal/utils"
)

// IPaymentService defines the interface for payment operations.
type IPaymentService interface {
	InitializeContactPayment(ctx context.Context, payerID, listingID utils.SixID, message string, preferredSlots []string) (*models.Payment, error)
	InitializeCommissionPayment(ctx context.Context, payerID, listingID utils.SixID) (*models.Payment, error)
	ApplyGatewayResult(ctx context.Context, correlationID string, status gateway.Status, result *gateway.StatusResult, rawPayload bson.M) error
	DemoComplete(ctx context.Context, correlationID string, payerID utils.SixID) error
	Refund(ctx context.Context, paymentID, staffID utils.SixID) error
	GetByCorrelationID(ctx context.Context, correlationID string) (*models.Payment, error)
	ListByPayer(ctx context.Context, payerID utils.SixID) ([]models.Payment, error)
	PollPendingPayments(ctx context.Context) (int, error)
	ReconcileMissingCases(ctx context.Context) (int, error)
}

const paymentsCollection = "payments"

// paymentService implements IPaymentService.
type paymentService struct {
	db             *mongo.Database
	cfg            *config.Config
	configService  IConfigService
	userService    IUserService
	listingService IListingService
	contactService IContactService
	gateway        gateway.Client
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(db *mongo.Database, cfg *config.Config, configService IConfigService, userService IUserService, listingService IListingService, contactService IContactService, gw gateway.Client) IPaymentService {
	return &paymentService{
		db:             db,
		cfg:            cfg,
		configService:  configService,
		userService:    userService,
		listingService: listingService,
		contactService: contactService,
		gateway:        gw,
	}
}

// InitializeContactPayment starts collection of the introduction fee for a
// listing. The listing must be approved and available, and the payer must not
// already hold a completed contact payment for it. The payment record is
// persisted as pending before the gateway is called; if the gateway call
// fails, the pending record stays behind so the payer can retry and the
// background poller can pick it up.
func (s *paymentService) InitializeContactPayment(ctx context.Context, payerID, listingID utils.SixID, message string, preferredSlots []string) (*models.Payment, error) {
	listing, err := s.listingService.FindListingByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("failed to load listing %s for contact payment: %w", listingID.String(), err)
	}
	if !listing.Contactable() {
		return nil, ErrListingUnavailable
	}

	// A completed contact payment for this pair already grants the
	// introduction; refuse to charge twice. The partial unique index is the
	// authoritative guard, this check just fails fast.
	count, err := s.db.Collection(paymentsCollection).CountDocuments(ctx, bson.M{
		"payer_id":   payerID,
		"listing_id": listingID,
		"purpose":    models.PurposeContact,
		"status":     models.PaymentCompleted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check existing payments for payer %s: %w", payerID.String(), err)
	}
	if count > 0 {
		return nil, ErrAlreadyPaid
	}

	fee := s.configService.GetInt64(ctx, "CONTACT_FEE", s.cfg.ContactFee)
	payment, err := s.createPending(ctx, payerID, listingID, models.PurposeContact, fee, message, preferredSlots)
	if err != nil {
		return nil, err
	}

	if err := s.startCheckout(ctx, payment, listing); err != nil {
		log.Printf("WARN: Gateway initialization failed for payment %s (correlation %s): %v", payment.ID.String(), payment.CorrelationID, err)
		return payment, fmt.Errorf("payment recorded but gateway checkout could not be started: %w", err)
	}
	return payment, nil
}

// InitializeCommissionPayment starts collection of the success commission for
// a rented listing. The amount is a configured percentage of one month's fee.
func (s *paymentService) InitializeCommissionPayment(ctx context.Context, payerID, listingID utils.SixID) (*models.Payment, error) {
	listing, err := s.listingService.FindListingByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("failed to load listing %s for commission payment: %w", listingID.String(), err)
	}

	percent := s.configService.GetInt(ctx, "COMMISSION_PERCENT", s.cfg.CommissionPercent)
	amount := listing.MonthlyFee * int64(percent) / 100
	if amount <= 0 {
		return nil, fmt.Errorf("commission amount for listing %s works out to zero", listingID.String())
	}

	payment, err := s.createPending(ctx, payerID, listingID, models.PurposeCommission, amount, "", nil)
	if err != nil {
		return nil, err
	}

	if err := s.startCheckout(ctx, payment, listing); err != nil {
		log.Printf("WARN: Gateway initialization failed for commission payment %s (correlation %s): %v", payment.ID.String(), payment.CorrelationID, err)
		return payment, fmt.Errorf("payment recorded but gateway checkout could not be started: %w", err)
	}
	return payment, nil
}

func (s *paymentService) createPending(ctx context.Context, payerID, listingID utils.SixID, purpose models.PaymentPurpose, amount int64, message string, preferredSlots []string) (*models.Payment, error) {
	now := time.Now().UTC()
	doc, err := db.InsertOne(ctx, s.db.Collection(paymentsCollection), &models.Payment{
		CorrelationID:  uuid.NewString(),
		PayerID:        payerID,
		ListingID:      listingID,
		Purpose:        purpose,
		Amount:         amount,
		CurrencyCode:   s.cfg.CurrencyCode,
		Status:         models.PaymentPending,
		Message:        message,
		PreferredSlots: preferredSlots,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert %s payment for payer %s: %w", purpose, payerID.String(), err)
	}
	return doc.(*models.Payment), nil
}

// startCheckout calls the gateway and stores the returned checkout handle on
// the payment.
func (s *paymentService) startCheckout(ctx context.Context, payment *models.Payment, listing *models.Listing) error {
	payer, err := s.userService.FindByID(ctx, payment.PayerID)
	if err != nil {
		return fmt.Errorf("failed to load payer %s for checkout: %w", payment.PayerID.String(), err)
	}

	result, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		CorrelationID: payment.CorrelationID,
		Amount:        payment.Amount,
		CurrencyCode:  payment.CurrencyCode,
		Description:   fmt.Sprintf("%s: %s fee for %q", s.cfg.AppName, payment.Purpose, listing.Title),
		CustomerName:  payer.Name,
		CustomerEmail: payer.Email,
		ReturnURL:     fmt.Sprintf("%s/payment/%s/return", s.cfg.PublicBaseURL, payment.CorrelationID),
		CallbackURL:   fmt.Sprintf("%s/v1/payment/callback", s.cfg.PublicBaseURL),
	})
	if err != nil {
		return err
	}

	_, err = s.db.Collection(paymentsCollection).UpdateOne(ctx,
		bson.M{"_id": payment.ID, "status": models.PaymentPending},
		bson.M{"$set": bson.M{
			"checkout_url":   result.CheckoutURL,
			"checkout_token": result.CheckoutToken,
			"updated_at":     time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to store checkout handle for payment %s: %w", payment.ID.String(), err)
	}
	payment.CheckoutURL = result.CheckoutURL
	payment.CheckoutToken = result.CheckoutToken
	return nil
}

// ApplyGatewayResult applies an authoritative gateway status to the payment
// identified by correlationID. It is the single entry point for webhook
// callbacks, background polls and sandbox completions, and is safe to call
// any number of times with the same result: a payment already in a terminal
// status absorbs redeliveries as no-ops.
//
// The status transition itself is a conditional update filtered on
// status=pending, so two concurrent deliveries race for one winner and the
// loser falls through to the terminal no-op path.
func (s *paymentService) ApplyGatewayResult(ctx context.Context, correlationID string, status gateway.Status, result *gateway.StatusResult, rawPayload bson.M) error {
	payment, err := s.GetByCorrelationID(ctx, correlationID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrUnknownTransaction
		}
		return fmt.Errorf("failed to load payment for correlation %s: %w", correlationID, err)
	}

	if payment.IsTerminal() {
		// Redelivery after resolution. If this payment should have produced a
		// contact case, make sure one exists before acking.
		if payment.Status == models.PaymentCompleted && payment.Purpose == models.PurposeContact {
			return s.ensureContactCase(ctx, payment)
		}
		return nil
	}

	switch status {
	case gateway.StatusAccepted:
		return s.complete(ctx, payment, result, rawPayload)
	case gateway.StatusRefused:
		return s.resolve(ctx, payment, models.PaymentFailed, "gateway refused the payment", rawPayload)
	case gateway.StatusCancelled:
		return s.resolve(ctx, payment, models.PaymentCancelled, "payer cancelled at checkout", rawPayload)
	case gateway.StatusPending:
		// Nothing to apply yet.
		return nil
	default:
		log.Printf("WARN: Unrecognized gateway status %q for correlation %s; leaving payment pending.", status, correlationID)
		return nil
	}
}

// complete moves a pending payment to completed and creates the contact case
// it paid for. The two steps are not atomic; if case creation fails after the
// payment is stamped, the error propagates so the gateway redelivers, and the
// terminal-redelivery path plus the reconcile sweep repair the gap.
func (s *paymentService) complete(ctx context.Context, payment *models.Payment, result *gateway.StatusResult, rawPayload bson.M) error {
	now := time.Now().UTC()
	set := bson.M{
		"status":     models.PaymentCompleted,
		"paid_at":    now,
		"updated_at": now,
	}
	if result != nil {
		if result.Method != "" {
			set["method"] = result.Method
		}
		if result.PaidAt != nil {
			set["paid_at"] = *result.PaidAt
		}
	}
	if rawPayload != nil {
		set["raw_callback"] = rawPayload
	}

	collection := s.db.Collection(paymentsCollection)
	res := collection.FindOneAndUpdate(ctx,
		bson.M{"_id": payment.ID, "status": models.PaymentPending},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var updated models.Payment
	if err := res.Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Lost the race; the winner resolved it.
			return nil
		}
		if idx := db.DuplicateKeyIndex(err); idx == db.IdxPaymentCompletedPair {
			// Another payment by this payer for this listing completed first.
			// This one cannot also complete, so fail it and keep the money
			// trail for staff to refund.
			log.Printf("CRITICAL: Payment %s completed at the gateway but a completed contact payment already exists for payer %s / listing %s. Marking failed; refund required.",
				payment.ID.String(), payment.PayerID.String(), payment.ListingID.String())
			return s.resolve(ctx, payment, models.PaymentFailed, "duplicate completion: another payment for this listing already completed", rawPayload)
		}
		return fmt.Errorf("failed to complete payment %s: %w", payment.ID.String(), err)
	}

	log.Printf("Payment %s (correlation %s) completed.", updated.ID.String(), updated.CorrelationID)

	if updated.Purpose == models.PurposeContact {
		return s.ensureContactCase(ctx, &updated)
	}
	return nil
}

// ensureContactCase guarantees a contact case exists for a completed contact
// payment. The unique index on contact_cases.payment_id makes this idempotent
// under concurrent calls; the contact counter moves only when a case is
// actually created, so callback redeliveries leave it untouched.
func (s *paymentService) ensureContactCase(ctx context.Context, payment *models.Payment) error {
	_, created, err := s.contactService.CreateFromPayment(ctx, payment)
	if err != nil {
		if errors.Is(err, ErrDuplicateActiveRequest) {
			// The requester already has a live case for this listing from an
			// earlier payment. The new payment bought nothing; surface it for
			// staff and refund handling.
			log.Printf("CRITICAL: Completed payment %s has no contact case because an active case already exists for requester %s / listing %s. Refund required.",
				payment.ID.String(), payment.PayerID.String(), payment.ListingID.String())
			return s.markCaseConflict(ctx, payment)
		}
		log.Printf("CRITICAL: Failed to create contact case for completed payment %s: %v. The reconcile sweep will retry.", payment.ID.String(), err)
		return fmt.Errorf("contact case creation for payment %s failed: %w", payment.ID.String(), err)
	}
	if !created {
		return nil
	}
	if err := s.listingService.IncrementContactCount(ctx, payment.ListingID); err != nil {
		// Counter only; do not fail the workflow over it.
		log.Printf("WARN: Failed to increment contact count for listing %s: %v", payment.ListingID.String(), err)
	}
	return nil
}

// markCaseConflict annotates a completed payment whose contact case could not
// be created because of a pre-existing active case. The payment stays
// completed (money was taken) with a failure note for the refund queue.
func (s *paymentService) markCaseConflict(ctx context.Context, payment *models.Payment) error {
	_, err := s.db.Collection(paymentsCollection).UpdateOne(ctx,
		bson.M{"_id": payment.ID},
		bson.M{"$set": bson.M{
			"failure_note": "active contact case already exists; refund required",
			"updated_at":   time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to annotate payment %s: %w", payment.ID.String(), err)
	}
	return nil
}

// resolve moves a pending payment to a terminal failure-side status.
func (s *paymentService) resolve(ctx context.Context, payment *models.Payment, target models.PaymentStatus, note string, rawPayload bson.M) error {
	if err := payment.CanTransitionTo(target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}

	set := bson.M{
		"status":       target,
		"failure_note": note,
		"updated_at":   time.Now().UTC(),
	}
	if rawPayload != nil {
		set["raw_callback"] = rawPayload
	}

	result, err := s.db.Collection(paymentsCollection).UpdateOne(ctx,
		bson.M{"_id": payment.ID, "status": models.PaymentPending},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("failed to resolve payment %s to %s: %w", payment.ID.String(), target, err)
	}
	if result.MatchedCount == 0 {
		// Already resolved by a concurrent delivery.
		return nil
	}
	log.Printf("Payment %s (correlation %s) resolved to %s: %s", payment.ID.String(), payment.CorrelationID, target, note)
	return nil
}

// DemoComplete simulates a successful gateway confirmation. Only available in
// sandbox mode, and only to the payer who owns the payment.
func (s *paymentService) DemoComplete(ctx context.Context, correlationID string, payerID utils.SixID) error {
	if !s.cfg.GatewaySandbox {
		return ErrSandboxDisabled
	}

	payment, err := s.GetByCorrelationID(ctx, correlationID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrUnknownTransaction
		}
		return err
	}
	if payment.PayerID != payerID {
		return ErrNotRequester
	}

	if sandbox, ok := s.gateway.(*gateway.Sandbox); ok {
		sandbox.Resolve(correlationID, gateway.StatusAccepted)
	}

	now := time.Now().UTC()
	return s.ApplyGatewayResult(ctx, correlationID, gateway.StatusAccepted, &gateway.StatusResult{
		Status: gateway.StatusAccepted,
		Method: "sandbox",
		PaidAt: &now,
	}, bson.M{"result": "accepted", "source": "sandbox"})
}

// Refund marks a completed payment refunded. The actual money movement is a
// manual gateway-side operation by staff; this records that it happened.
func (s *paymentService) Refund(ctx context.Context, paymentID, staffID utils.SixID) error {
	now := time.Now().UTC()
	collection := s.db.Collection(paymentsCollection)
	result, err := collection.UpdateOne(ctx,
		bson.M{"_id": paymentID, "status": models.PaymentCompleted},
		bson.M{"$set": bson.M{
			"status":     models.PaymentRefunded,
			"updated_at": now,
		}},
	)
	if err != nil {
		return fmt.Errorf("db error refunding payment %s: %w", paymentID.String(), err)
	}
	if result.MatchedCount == 0 {
		var payment models.Payment
		checkErr := collection.FindOne(ctx, bson.M{"_id": paymentID}).Decode(&payment)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return mongo.ErrNoDocuments
		}
		return fmt.Errorf("%w: cannot refund payment in status %s", ErrInvalidTransition, payment.Status)
	}
	log.Printf("Payment %s refunded by staff %s.", paymentID.String(), staffID.String())
	return nil
}

// GetByCorrelationID finds a payment by its gateway correlation id.
func (s *paymentService) GetByCorrelationID(ctx context.Context, correlationID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.Collection(paymentsCollection).FindOne(ctx, bson.M{"correlation_id": correlationID}).Decode(&payment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding payment by correlation %s: %w", correlationID, err)
	}
	return &payment, nil
}

// ListByPayer returns all payments made by a payer, newest first.
func (s *paymentService) ListByPayer(ctx context.Context, payerID utils.SixID) ([]models.Payment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.db.Collection(paymentsCollection).Find(ctx, bson.M{"payer_id": payerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments for payer %s: %w", payerID.String(), err)
	}
	defer cursor.Close(ctx)

	var payments []models.Payment
	if err = cursor.All(ctx, &payments); err != nil {
		return nil, fmt.Errorf("failed to decode payments for payer %s: %w", payerID.String(), err)
	}
	return payments, nil
}

// PollPendingPayments re-queries the gateway for payments that have sat in
// pending longer than the configured threshold. Callbacks get lost; this is
// the pull-side safety net. Returns the number of payments that resolved.
func (s *paymentService) PollPendingPayments(ctx context.Context) (int, error) {
	threshold := time.Now().UTC().Add(-s.cfg.PendingPollAfter)
	cursor, err := s.db.Collection(paymentsCollection).Find(ctx, bson.M{
		"status":     models.PaymentPending,
		"created_at": bson.M{"$lt": threshold},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query stale pending payments: %w", err)
	}
	defer cursor.Close(ctx)

	var stale []models.Payment
	if err = cursor.All(ctx, &stale); err != nil {
		return 0, fmt.Errorf("failed to decode stale pending payments: %w", err)
	}

	resolved := 0
	for i := range stale {
		p := &stale[i]
		result, err := s.gateway.CheckStatus(ctx, p.CorrelationID)
		if err != nil {
			log.Printf("WARN: Status poll failed for payment %s (correlation %s): %v", p.ID.String(), p.CorrelationID, err)
			continue
		}
		if result.Status == gateway.StatusPending {
			continue
		}
		if err := s.ApplyGatewayResult(ctx, p.CorrelationID, result.Status, result, bson.M{"source": "poll"}); err != nil {
			log.Printf("WARN: Failed to apply polled status %s to payment %s: %v", result.Status, p.ID.String(), err)
			continue
		}
		resolved++
	}
	return resolved, nil
}

// ReconcileMissingCases finds completed contact payments that have no contact
// case and creates the missing cases. This is the repair path for crashes or
// errors between payment completion and case creation. Returns the number of
// payments repaired.
func (s *paymentService) ReconcileMissingCases(ctx context.Context) (int, error) {
	cursor, err := s.db.Collection(paymentsCollection).Find(ctx, bson.M{
		"status":       models.PaymentCompleted,
		"purpose":      models.PurposeContact,
		"failure_note": bson.M{"$exists": false},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query completed contact payments: %w", err)
	}
	defer cursor.Close(ctx)

	var completed []models.Payment
	if err = cursor.All(ctx, &completed); err != nil {
		return 0, fmt.Errorf("failed to decode completed contact payments: %w", err)
	}

	repaired := 0
	for i := range completed {
		p := &completed[i]
		_, err := s.contactService.FindByPaymentID(ctx, p.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			log.Printf("WARN: Reconcile sweep could not check case for payment %s: %v", p.ID.String(), err)
			continue
		}
		log.Printf("Reconcile sweep: completed payment %s has no contact case, creating.", p.ID.String())
		if err := s.ensureContactCase(ctx, p); err != nil {
			log.Printf("WARN: Reconcile sweep failed to create case for payment %s: %v", p.ID.String(), err)
			continue
		}
		repaired++
	}
	return repaired, nil
}
