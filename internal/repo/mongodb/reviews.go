package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/williamsbolu/natours/internal/domain"
)

type reviewDoc struct {
	ID        bson.ObjectID `bson:"_id"`
	Review    string        `bson:"review"`
	Rating    float64       `bson:"rating"`
	Tour      bson.ObjectID `bson:"tour"`
	User      bson.ObjectID `bson:"user"`
	CreatedAt time.Time     `bson:"createdAt"`
	Author    []userDoc     `bson:"author,omitempty"`
}

func (d *reviewDoc) toDomain() *domain.Review {
	rv := &domain.Review{
		ID:        d.ID.Hex(),
		Review:    d.Review,
		Rating:    d.Rating,
		TourID:    d.Tour.Hex(),
		UserID:    d.User.Hex(),
		CreatedAt: d.CreatedAt,
	}
	if len(d.Author) > 0 {
		a := d.Author[0]
		rv.User = &domain.UserInfo{ID: a.ID.Hex(), Name: a.Name, Photo: a.Photo}
	}
	return rv
}

type ReviewStore struct {
	col *mongo.Collection
}

// authorLookup joins the review author's public fields.
func authorLookup() bson.D {
	return bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: usersCollection},
		{Key: "localField", Value: "user"},
		{Key: "foreignField", Value: "_id"},
		{Key: "as", Value: "author"},
		{Key: "pipeline", Value: bson.A{
			bson.D{{Key: "$project", Value: bson.D{{Key: "name", Value: 1}, {Key: "photo", Value: 1}}}},
		}},
	}}}
}

func (r *ReviewStore) aggregate(ctx context.Context, match bson.D) ([]*domain.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: 1}}}},
		authorLookup(),
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var docs []reviewDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domain.Review, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}

func (r *ReviewStore) Create(ctx context.Context, rv *domain.Review) (*domain.Review, error) {
	oid, err := newObjectID(rv.ID)
	if err != nil {
		return nil, err
	}
	tourID, err := objectID(rv.TourID)
	if err != nil {
		return nil, err
	}
	userID, err := objectID(rv.UserID)
	if err != nil {
		return nil, err
	}
	doc := reviewDoc{
		ID:        oid,
		Review:    rv.Review,
		Rating:    rv.Rating,
		Tour:      tourID,
		User:      userID,
		CreatedAt: rv.CreatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	insertCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := r.col.InsertOne(insertCtx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicateReview
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *ReviewStore) FindByID(ctx context.Context, id string) (*domain.Review, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	list, err := r.aggregate(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, domain.ErrNotFound
	}
	return list[0], nil
}

func (r *ReviewStore) List(ctx context.Context, tourID string) ([]*domain.Review, error) {
	match := bson.D{}
	if tourID != "" {
		oid, err := objectID(tourID)
		if err != nil {
			return []*domain.Review{}, nil
		}
		match = bson.D{{Key: "tour", Value: oid}}
	}
	return r.aggregate(ctx, match)
}

func (r *ReviewStore) Update(ctx context.Context, id string, upd domain.UpdateReviewRequest) (*domain.Review, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	set := bson.D{}
	if upd.Review != nil {
		set = append(set, bson.E{Key: "review", Value: *upd.Review})
	}
	if upd.Rating != nil {
		set = append(set, bson.E{Key: "rating", Value: *upd.Rating})
	}
	if len(set) > 0 {
		updCtx, cancel := context.WithTimeout(ctx, opTimeout)
		res, err := r.col.UpdateOne(updCtx, bson.D{{Key: "_id", Value: oid}}, bson.D{{Key: "$set", Value: set}})
		cancel()
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			return nil, domain.ErrNotFound
		}
	}
	return r.FindByID(ctx, id)
}

func (r *ReviewStore) Delete(ctx context.Context, id string) (*domain.Review, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc reviewDoc
	if err := r.col.FindOneAndDelete(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.toDomain(), nil
}

// RatingStats groups every review of the tour in one pass.
func (r *ReviewStore) RatingStats(ctx context.Context, tourID string) (domain.RatingStats, error) {
	oid, err := objectID(tourID)
	if err != nil {
		return domain.RatingStats{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "tour", Value: oid}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$tour"},
			{Key: "nRating", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "avgRating", Value: bson.D{{Key: "$avg", Value: "$rating"}}},
		}}},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return domain.RatingStats{}, err
	}
	var rows []struct {
		NRating   int     `bson:"nRating"`
		AvgRating float64 `bson:"avgRating"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return domain.RatingStats{}, err
	}
	if len(rows) == 0 {
		return domain.RatingStats{}, nil
	}
	return domain.RatingStats{Count: rows[0].NRating, Average: rows[0].AvgRating}, nil
}

func (r *ReviewStore) DeleteAll(ctx context.Context) error {
	_, err := r.col.DeleteMany(ctx, bson.D{})
	return err
}
