package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/internal/repo"
)

type userDoc struct {
	ID                   bson.ObjectID `bson:"_id"`
	Name                 string        `bson:"name"`
	Email                string        `bson:"email"`
	Photo                string        `bson:"photo"`
	Role                 string        `bson:"role"`
	Password             string        `bson:"password"`
	PasswordChangedAt    *time.Time    `bson:"passwordChangedAt,omitempty"`
	PasswordResetToken   string        `bson:"passwordResetToken,omitempty"`
	PasswordResetExpires *time.Time    `bson:"passwordResetExpires,omitempty"`
	Active               bool          `bson:"active"`
	CreatedAt            time.Time     `bson:"createdAt"`
}

func (d *userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:                   d.ID.Hex(),
		Name:                 d.Name,
		Email:                d.Email,
		Photo:                d.Photo,
		Role:                 d.Role,
		PasswordHash:         d.Password,
		PasswordChangedAt:    d.PasswordChangedAt,
		PasswordResetToken:   d.PasswordResetToken,
		PasswordResetExpires: d.PasswordResetExpires,
		Active:               d.Active,
		CreatedAt:            d.CreatedAt,
	}
}

type UserStore struct {
	col *mongo.Collection
}

func (r *UserStore) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	oid, err := newObjectID(u.ID)
	if err != nil {
		return nil, err
	}
	doc := userDoc{
		ID:                oid,
		Name:              u.Name,
		Email:             u.Email,
		Photo:             u.Photo,
		Role:              u.Role,
		Password:          u.PasswordHash,
		PasswordChangedAt: u.PasswordChangedAt,
		Active:            u.Active,
		CreatedAt:         u.CreatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *UserStore) findOne(ctx context.Context, filter bson.D) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc userDoc
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.toDomain(), nil
}

func (r *UserStore) FindByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.D{{Key: "_id", Value: oid}, {Key: "active", Value: true}})
}

func (r *UserStore) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}, {Key: "active", Value: true}})
}

func (r *UserStore) UpdateProfile(ctx context.Context, id string, upd repo.ProfileUpdate) (*domain.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	set := bson.D{}
	if upd.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *upd.Name})
	}
	if upd.Email != nil {
		set = append(set, bson.E{Key: "email", Value: *upd.Email})
	}
	if upd.Photo != nil {
		set = append(set, bson.E{Key: "photo", Value: *upd.Photo})
	}
	if len(set) == 0 {
		return r.FindByID(ctx, id)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var doc userDoc
	err = r.col.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}, {Key: "active", Value: true}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, notFound(err)
	}
	return doc.toDomain(), nil
}

func (r *UserStore) UpdatePassword(ctx context.Context, id, hash string, changedAt time.Time) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}, {Key: "active", Value: true}},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "password", Value: hash},
				{Key: "passwordChangedAt", Value: changedAt},
			}},
			{Key: "$unset", Value: bson.D{
				{Key: "passwordResetToken", Value: ""},
				{Key: "passwordResetExpires", Value: ""},
			}},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserStore) SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "passwordResetToken", Value: tokenHash},
			{Key: "passwordResetExpires", Value: expires},
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

func (r *UserStore) ClearResetToken(ctx context.Context, id, tokenHash string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err = r.col.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}, {Key: "passwordResetToken", Value: tokenHash}},
		bson.D{{Key: "$unset", Value: bson.D{
			{Key: "passwordResetToken", Value: ""},
			{Key: "passwordResetExpires", Value: ""},
		}}},
	)
	return err
}

func (r *UserStore) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, newHash string, changedAt time.Time) (*domain.User, error) {
	if tokenHash == "" {
		return nil, domain.ErrNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc userDoc
	err := r.col.FindOneAndUpdate(ctx,
		bson.D{
			{Key: "passwordResetToken", Value: tokenHash},
			{Key: "passwordResetExpires", Value: bson.D{{Key: "$gt", Value: now}}},
			{Key: "active", Value: true},
		},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "password", Value: newHash},
				{Key: "passwordChangedAt", Value: changedAt},
			}},
			{Key: "$unset", Value: bson.D{
				{Key: "passwordResetToken", Value: ""},
				{Key: "passwordResetExpires", Value: ""},
			}},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, notFound(err)
	}
	return doc.toDomain(), nil
}

func (r *UserStore) Deactivate(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}, {Key: "active", Value: true}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "active", Value: false}}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserStore) DeleteAll(ctx context.Context) error {
	_, err := r.col.DeleteMany(ctx, bson.D{})
	return err
}
