package db

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Index names referenced by services when classifying duplicate-key errors.
const (
	IdxPaymentCorrelation   = "ux_payment_correlation"
	IdxPaymentCompletedPair = "ux_payment_completed_contact_pair"
	IdxContactPayment       = "ux_contact_payment"
	IdxContactActivePair    = "ux_contact_active_pair"
)

// EnsureIndexes creates the uniqueness constraints the payment workflow relies
// on. The application-level checks in the services are an optimization; these
// indexes are the actual guarantee under concurrent requests:
//
//   - one Payment per correlation id;
//   - at most one completed contact-purpose Payment per (payer, listing);
//   - exactly one ContactCase per originating Payment;
//   - at most one active ContactCase per (requester, listing).
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	payments := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "correlation_id", Value: 1}},
			Options: options.Index().SetName(IdxPaymentCorrelation).SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "payer_id", Value: 1}, {Key: "listing_id", Value: 1}},
			Options: options.Index().
				SetName(IdxPaymentCompletedPair).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"purpose": "contact",
					"status":  "completed",
				}),
		},
	}
	if _, err := db.Collection("payments").Indexes().CreateMany(ctx, payments); err != nil {
		return fmt.Errorf("failed to create payment indexes: %w", err)
	}

	contacts := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "payment_id", Value: 1}},
			Options: options.Index().SetName(IdxContactPayment).SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "listing_id", Value: 1}},
			Options: options.Index().
				SetName(IdxContactActivePair).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
	}
	if _, err := db.Collection("contact_cases").Indexes().CreateMany(ctx, contacts); err != nil {
		return fmt.Errorf("failed to create contact case indexes: %w", err)
	}

	return nil
}

// DuplicateKeyIndex returns the name of the unique index a duplicate-key
// error collided on, or "" if err is not a duplicate-key error. Callers use
// this to tell an ID collision apart from a domain uniqueness conflict.
func DuplicateKeyIndex(err error) string {
	if !IsMongoDuplicateKeyError(err) {
		return ""
	}
	// Mongo duplicate-key messages include "index: <name>".
	msg := err.Error()
	for _, name := range []string{IdxPaymentCorrelation, IdxPaymentCompletedPair, IdxContactPayment, IdxContactActivePair} {
		if strings.Contains(msg, name) {
			return name
		}
	}
	return "_id_"
}
