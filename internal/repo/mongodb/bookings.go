package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/williamsbolu/natours/internal/domain"
)

type bookingDoc struct {
	ID        bson.ObjectID `bson:"_id"`
	Tour      bson.ObjectID `bson:"tour"`
	User      bson.ObjectID `bson:"user"`
	Price     float64       `bson:"price"`
	Status    string        `bson:"status"`
	Paid      bool          `bson:"paid"`
	SessionID string        `bson:"sessionId,omitempty"`
	CreatedAt time.Time     `bson:"createdAt"`
}

func (d *bookingDoc) toDomain() *domain.Booking {
	return &domain.Booking{
		ID:        d.ID.Hex(),
		TourID:    d.Tour.Hex(),
		UserID:    d.User.Hex(),
		Price:     d.Price,
		Status:    domain.ParseBookingStatus(d.Status, d.Paid),
		Paid:      d.Paid,
		SessionID: d.SessionID,
		CreatedAt: d.CreatedAt,
	}
}

type BookingStore struct {
	col *mongo.Collection
}

func (r *BookingStore) Create(ctx context.Context, b *domain.Booking) (*domain.Booking, error) {
	oid, err := newObjectID(b.ID)
	if err != nil {
		return nil, err
	}
	tourID, err := objectID(b.TourID)
	if err != nil {
		return nil, err
	}
	userID, err := objectID(b.UserID)
	if err != nil {
		return nil, err
	}
	doc := bookingDoc{
		ID:        oid,
		Tour:      tourID,
		User:      userID,
		Price:     b.Price,
		Status:    string(b.Status),
		Paid:      b.Paid,
		SessionID: b.SessionID,
		CreatedAt: b.CreatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicateBooking
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *BookingStore) ListByUser(ctx context.Context, userID string) ([]*domain.Booking, error) {
	oid, err := objectID(userID)
	if err != nil {
		return []*domain.Booking{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx,
		bson.D{{Key: "user", Value: oid}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	var docs []bookingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domain.Booking, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}
