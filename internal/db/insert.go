package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"greendrake/r1/internal/models"
)

// InsertOne inserts a document whose model embeds models.Base, generating a
// fresh ID on every attempt so that a random ID collision is retried rather
// than surfaced. Returns the document with its final ID set.
func InsertOne(ctx context.Context, collection *mongo.Collection, doc models.IBase) (interface{}, error) {
	operation := func() error {
		doc.GenID()
		_, err := collection.InsertOne(ctx, doc)
		return err
	}

	if err := Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert into %s after multiple retries: %w", collection.Name(), err)
	}
	return doc, nil
}
