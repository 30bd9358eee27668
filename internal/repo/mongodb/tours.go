package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/williamsbolu/natours/internal/domain"
)

type tourDoc struct {
	ID              bson.ObjectID `bson:"_id"`
	Name            string        `bson:"name"`
	Slug            string        `bson:"slug"`
	Duration        int           `bson:"duration"`
	MaxGroupSize    int           `bson:"maxGroupSize"`
	Difficulty      string        `bson:"difficulty"`
	Price           float64       `bson:"price"`
	Summary         string        `bson:"summary"`
	ImageCover      string        `bson:"imageCover"`
	RatingsAverage  float64       `bson:"ratingsAverage"`
	RatingsQuantity int           `bson:"ratingsQuantity"`
	CreatedAt       time.Time     `bson:"createdAt"`
}

func (d *tourDoc) toDomain() *domain.Tour {
	return &domain.Tour{
		ID:              d.ID.Hex(),
		Name:            d.Name,
		Slug:            d.Slug,
		Duration:        d.Duration,
		MaxGroupSize:    d.MaxGroupSize,
		Difficulty:      d.Difficulty,
		Price:           d.Price,
		Summary:         d.Summary,
		ImageCover:      d.ImageCover,
		RatingsAverage:  d.RatingsAverage,
		RatingsQuantity: d.RatingsQuantity,
		CreatedAt:       d.CreatedAt,
	}
}

type TourStore struct {
	col *mongo.Collection
}

func (r *TourStore) Create(ctx context.Context, t *domain.Tour) (*domain.Tour, error) {
	oid, err := newObjectID(t.ID)
	if err != nil {
		return nil, err
	}
	doc := tourDoc{
		ID:              oid,
		Name:            t.Name,
		Slug:            t.Slug,
		Duration:        t.Duration,
		MaxGroupSize:    t.MaxGroupSize,
		Difficulty:      t.Difficulty,
		Price:           t.Price,
		Summary:         t.Summary,
		ImageCover:      t.ImageCover,
		RatingsAverage:  t.RatingsAverage,
		RatingsQuantity: t.RatingsQuantity,
		CreatedAt:       t.CreatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *TourStore) FindByID(ctx context.Context, id string) (*domain.Tour, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc tourDoc
	if err := r.col.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.toDomain(), nil
}

func (r *TourStore) List(ctx context.Context) ([]*domain.Tour, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []tourDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domain.Tour, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}

func (r *TourStore) UpdateRatings(ctx context.Context, id string, ratings domain.TourRatings) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "ratingsQuantity", Value: ratings.Quantity},
			{Key: "ratingsAverage", Value: ratings.Average},
		}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *TourStore) DeleteAll(ctx context.Context) error {
	_, err := r.col.DeleteMany(ctx, bson.D{})
	return err
}
