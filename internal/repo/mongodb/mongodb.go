// Package mongodb implements the stores on a MongoDB database. Uniqueness is
// enforced by indexes created in EnsureIndexes.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/internal/repo"
)

const (
	usersCollection    = "users"
	toursCollection    = "tours"
	reviewsCollection  = "reviews"
	bookingsCollection = "bookings"

	opTimeout = 5 * time.Second
)

func New(client *mongo.Client, db *mongo.Database) repo.Stores {
	return repo.Stores{
		Users:    &UserStore{col: db.Collection(usersCollection)},
		Tours:    &TourStore{col: db.Collection(toursCollection)},
		Reviews:  &ReviewStore{col: db.Collection(reviewsCollection)},
		Bookings: &BookingStore{col: db.Collection(bookingsCollection)},
		Close:    client.Disconnect,
	}
}

// EnsureIndexes creates the unique email, review (tour, user) and booking
// session indexes plus the lookup indexes.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users email index: %w", err)
	}
	if _, err := db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "passwordResetToken", Value: 1}},
		Options: options.Index().SetPartialFilterExpression(bson.D{
			{Key: "passwordResetToken", Value: bson.D{{Key: "$exists", Value: true}}},
		}),
	}); err != nil {
		return fmt.Errorf("users reset token index: %w", err)
	}
	if _, err := db.Collection(reviewsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tour", Value: 1}, {Key: "user", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("reviews tour/user index: %w", err)
	}
	if _, err := db.Collection(toursCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "slug", Value: 1}},
	}); err != nil {
		return fmt.Errorf("tours slug index: %w", err)
	}
	if _, err := db.Collection(bookingsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user", Value: 1}},
	}); err != nil {
		return fmt.Errorf("bookings user index: %w", err)
	}
	if _, err := db.Collection(bookingsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "sessionId", Value: 1}},
		Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.D{
			{Key: "sessionId", Value: bson.D{{Key: "$exists", Value: true}}},
		}),
	}); err != nil {
		return fmt.Errorf("bookings session index: %w", err)
	}
	return nil
}

// objectID parses a hex id. A malformed id can never match a document.
func objectID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.NilObjectID, domain.ErrNotFound
	}
	return oid, nil
}

// newObjectID keeps a preset hex id (seed data) or mints a fresh one.
func newObjectID(id string) (bson.ObjectID, error) {
	if id == "" {
		return bson.NewObjectID(), nil
	}
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.NilObjectID, domain.WrapError(domain.ErrValidation, "Invalid id: "+id, err)
	}
	return oid, nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrNotFound
	}
	return err
}
