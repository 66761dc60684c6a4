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

// IListingService defines the interface for listing-related operations.
type IListingService interface {
	CreateListing(ctx context.Context, ownerID utils.SixID, title, address string, monthlyFee int64, currencyCode string) (*models.Listing, error)
	FindListingByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error)
	FindListingsByOwner(ctx context.Context, ownerID utils.SixID) ([]models.Listing, error)
	Approve(ctx context.Context, listingID, staffID utils.SixID) error
	Reject(ctx context.Context, listingID, staffID utils.SixID, reason string) error
	OverrideStatus(ctx context.Context, listingID, staffID utils.SixID, status models.PublicationStatus) error
	IncrementViewCount(ctx context.Context, listingID utils.SixID) error
	IncrementContactCount(ctx context.Context, listingID utils.SixID) error
	MarkRented(ctx context.Context, listingID, tenantID utils.SixID) error
}

const listingsCollection = "listings"

// listingService implements IListingService.
type listingService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewListingService creates a new ListingService.
func NewListingService(db *mongo.Database, cfg *config.Config) IListingService {
	return &listingService{db: db, cfg: cfg}
}

// CreateListing creates a new listing awaiting staff validation.
func (s *listingService) CreateListing(ctx context.Context, ownerID utils.SixID, title, address string, monthlyFee int64, currencyCode string) (*models.Listing, error) {
	if title == "" {
		return nil, fmt.Errorf("listing title is required")
	}
	if monthlyFee <= 0 {
		return nil, fmt.Errorf("listing monthly fee must be positive")
	}
	if currencyCode == "" {
		currencyCode = s.cfg.CurrencyCode
	}

	now := time.Now().UTC()
	doc, err := db.InsertOne(ctx, s.db.Collection(listingsCollection), &models.Listing{
		OwnerID:           ownerID,
		Title:             title,
		Address:           address,
		MonthlyFee:        monthlyFee,
		CurrencyCode:      currencyCode,
		PublicationStatus: models.PublicationPending,
		ValidationStatus:  models.ValidationPending,
		CreatedAt:         now,
		UpdatedAt:         now,
		Deleted:           false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert new listing for owner %s: %w", ownerID.String(), err)
	}
	return doc.(*models.Listing), nil
}

// FindListingByID finds a non-deleted listing by its ID.
func (s *listingService) FindListingByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error) {
	var listing models.Listing
	collection := s.db.Collection(listingsCollection)
	filter := bson.M{"_id": listingID, "deleted": false}

	err := collection.FindOne(ctx, filter).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding listing by ID %s: %w", listingID.String(), err)
	}
	return &listing, nil
}

// FindListingsByOwner returns all non-deleted listings for an owner.
func (s *listingService) FindListingsByOwner(ctx context.Context, ownerID utils.SixID) ([]models.Listing, error) {
	coll := s.db.Collection(listingsCollection)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := coll.Find(ctx, bson.M{"owner_id": ownerID, "deleted": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings for owner %s: %w", ownerID.String(), err)
	}
	defer cursor.Close(ctx)

	var listings []models.Listing
	if err = cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode listings for owner %s: %w", ownerID.String(), err)
	}
	return listings, nil
}

// Approve marks a pending listing as approved and publishes it as available.
// Only a listing whose validation is still pending can be approved; anything
// else fails with ErrAlreadyProcessed.
func (s *listingService) Approve(ctx context.Context, listingID, staffID utils.SixID) error {
	now := time.Now().UTC()
	filter := bson.M{
		"_id":               listingID,
		"deleted":           false,
		"validation_status": models.ValidationPending,
	}
	update := bson.M{"$set": bson.M{
		"validation_status":  models.ValidationApproved,
		"publication_status": models.PublicationAvailable,
		"updated_at":         now,
	}}

	collection := s.db.Collection(listingsCollection)
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("db error approving listing %s: %w", listingID.String(), err)
	}
	if result.MatchedCount == 0 {
		// Check why it couldn't be approved
		var listing models.Listing
		checkErr := collection.FindOne(ctx, bson.M{"_id": listingID, "deleted": false}).Decode(&listing)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return mongo.ErrNoDocuments
		}
		if listing.ValidationStatus != models.ValidationPending {
			return ErrAlreadyProcessed
		}
		return fmt.Errorf("failed to approve listing %s (condition not met)", listingID.String())
	}

	log.Printf("Listing %s approved by staff %s.", listingID.String(), staffID.String())
	return nil
}

// Reject marks a pending listing as rejected and archives it. A non-empty
// reason is required.
func (s *listingService) Reject(ctx context.Context, listingID, staffID utils.SixID, reason string) error {
	if reason == "" {
		return fmt.Errorf("rejection reason is required")
	}

	now := time.Now().UTC()
	filter := bson.M{
		"_id":               listingID,
		"deleted":           false,
		"validation_status": models.ValidationPending,
	}
	update := bson.M{"$set": bson.M{
		"validation_status":  models.ValidationRejected,
		"publication_status": models.PublicationArchived,
		"rejection_reason":   reason,
		"updated_at":         now,
	}}

	collection := s.db.Collection(listingsCollection)
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("db error rejecting listing %s: %w", listingID.String(), err)
	}
	if result.MatchedCount == 0 {
		var listing models.Listing
		checkErr := collection.FindOne(ctx, bson.M{"_id": listingID, "deleted": false}).Decode(&listing)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return mongo.ErrNoDocuments
		}
		if listing.ValidationStatus != models.ValidationPending {
			return ErrAlreadyProcessed
		}
		return fmt.Errorf("failed to reject listing %s (condition not met)", listingID.String())
	}

	log.Printf("Listing %s rejected by staff %s: %s", listingID.String(), staffID.String(), reason)
	return nil
}

// OverrideStatus sets the publication status directly, bypassing the state
// machine. Staff use this for operational corrections; the one transition it
// refuses is making an unapproved listing available, which the approve gate
// exists to prevent.
func (s *listingService) OverrideStatus(ctx context.Context, listingID, staffID utils.SixID, status models.PublicationStatus) error {
	if !models.IsValidPublicationStatus(status) {
		return fmt.Errorf("unknown publication status %q", status)
	}

	filter := bson.M{"_id": listingID, "deleted": false}
	if status == models.PublicationAvailable {
		filter["validation_status"] = models.ValidationApproved
	}
	update := bson.M{"$set": bson.M{
		"publication_status": status,
		"updated_at":         time.Now().UTC(),
	}}

	collection := s.db.Collection(listingsCollection)
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("db error overriding status of listing %s: %w", listingID.String(), err)
	}
	if result.MatchedCount == 0 {
		var listing models.Listing
		checkErr := collection.FindOne(ctx, bson.M{"_id": listingID, "deleted": false}).Decode(&listing)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return mongo.ErrNoDocuments
		}
		if status == models.PublicationAvailable && listing.ValidationStatus != models.ValidationApproved {
			return ErrListingUnavailable
		}
		return fmt.Errorf("failed to override status of listing %s (condition not met)", listingID.String())
	}

	log.Printf("Listing %s publication status overridden to %s by staff %s.", listingID.String(), status, staffID.String())
	return nil
}

// IncrementViewCount bumps the view counter. Not a state change.
func (s *listingService) IncrementViewCount(ctx context.Context, listingID utils.SixID) error {
	return s.incrementCounter(ctx, listingID, "view_count")
}

// IncrementContactCount bumps the contact counter. Called once per contact
// case created; idempotency is the payment service's responsibility.
func (s *listingService) IncrementContactCount(ctx context.Context, listingID utils.SixID) error {
	return s.incrementCounter(ctx, listingID, "contact_count")
}

func (s *listingService) incrementCounter(ctx context.Context, listingID utils.SixID, field string) error {
	collection := s.db.Collection(listingsCollection)
	result, err := collection.UpdateOne(ctx,
		bson.M{"_id": listingID, "deleted": false},
		bson.M{"$inc": bson.M{field: 1}},
	)
	if err != nil {
		return fmt.Errorf("db error incrementing %s on listing %s: %w", field, listingID.String(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// MarkRented moves a listing to rented and records its occupant. Only the
// contact service calls this, and only from CloseAsSuccess. Marking an
// already rented listing with the same tenant is a no-op so that repeated
// success closes stay idempotent.
func (s *listingService) MarkRented(ctx context.Context, listingID, tenantID utils.SixID) error {
	now := time.Now().UTC()
	filter := bson.M{
		"_id":                listingID,
		"deleted":            false,
		"publication_status": bson.M{"$ne": models.PublicationRented},
	}
	update := bson.M{"$set": bson.M{
		"publication_status": models.PublicationRented,
		"occupancy": models.Occupancy{
			TenantID:  tenantID,
			StartDate: now,
		},
		"updated_at": now,
	}}

	collection := s.db.Collection(listingsCollection)
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("db error marking listing %s rented: %w", listingID.String(), err)
	}
	if result.MatchedCount == 0 {
		var listing models.Listing
		checkErr := collection.FindOne(ctx, bson.M{"_id": listingID, "deleted": false}).Decode(&listing)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return mongo.ErrNoDocuments
		}
		if listing.PublicationStatus == models.PublicationRented {
			if listing.Occupancy != nil && listing.Occupancy.TenantID == tenantID {
				return nil // already rented to this tenant
			}
			log.Printf("WARN: Listing %s already rented to a different tenant; MarkRented for %s ignored.", listingID.String(), tenantID.String())
			return ErrInvalidTransition
		}
		return fmt.Errorf("failed to mark listing %s rented (condition not met)", listingID.String())
	}
	return nil
}
