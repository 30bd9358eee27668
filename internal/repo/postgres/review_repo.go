package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/williamsbolu/natours/internal/domain"
)

type ReviewsRepoImpl struct{ pool *pgxpool.Pool }

func NewReviewsRepo(pool *pgxpool.Pool) *ReviewsRepoImpl { return &ReviewsRepoImpl{pool: pool} }

const reviewTourUserKey = "reviews_tour_user_key"

const reviewSelect = `
SELECT r.id, r.review, r.rating, r.tour_id, r.user_id, r.created_at,
       COALESCE(u.name, ''), COALESCE(u.photo, '')
FROM reviews r
LEFT JOIN users u ON u.id = r.user_id`

func scanReview(row pgx.Row) (*domain.Review, error) {
	var (
		rv          domain.Review
		name, photo string
	)
	if err := row.Scan(&rv.ID, &rv.Review, &rv.Rating, &rv.TourID, &rv.UserID, &rv.CreatedAt, &name, &photo); err != nil {
		return nil, notFound(err)
	}
	if name != "" {
		rv.User = &domain.UserInfo{ID: rv.UserID, Name: name, Photo: photo}
	}
	return &rv, nil
}

func (r *ReviewsRepoImpl) Create(ctx context.Context, rv *domain.Review) (*domain.Review, error) {
	const q = `
INSERT INTO reviews (id, review, rating, tour_id, user_id, created_at)
VALUES ($1,$2,$3,$4,$5,COALESCE($6, now()))
RETURNING id`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var createdAt *time.Time
	if !rv.CreatedAt.IsZero() {
		createdAt = &rv.CreatedAt
	}
	var id string
	err := r.pool.QueryRow(ctx, q, newID(rv.ID), rv.Review, rv.Rating, rv.TourID, rv.UserID, createdAt).Scan(&id)
	if err != nil {
		if isUniqueViolation(err, reviewTourUserKey) {
			return nil, domain.ErrDuplicateReview
		}
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *ReviewsRepoImpl) FindByID(ctx context.Context, id string) (*domain.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return scanReview(r.pool.QueryRow(ctx, reviewSelect+` WHERE r.id=$1`, id))
}

func (r *ReviewsRepoImpl) List(ctx context.Context, tourID string) ([]*domain.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		rows pgx.Rows
		err  error
	)
	if tourID == "" {
		rows, err = r.pool.Query(ctx, reviewSelect+` ORDER BY r.created_at`)
	} else {
		rows, err = r.pool.Query(ctx, reviewSelect+` WHERE r.tour_id=$1 ORDER BY r.created_at`, tourID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.Review, 0)
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

func (r *ReviewsRepoImpl) Update(ctx context.Context, id string, upd domain.UpdateReviewRequest) (*domain.Review, error) {
	const q = `
UPDATE reviews
SET review = COALESCE($2, review),
    rating = COALESCE($3, rating)
WHERE id=$1`
	updCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(updCtx, q, id, upd.Review, upd.Rating)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *ReviewsRepoImpl) Delete(ctx context.Context, id string) (*domain.Review, error) {
	const q = `DELETE FROM reviews WHERE id=$1 RETURNING id, review, rating, tour_id, user_id, created_at`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rv domain.Review
	if err := r.pool.QueryRow(ctx, q, id).Scan(&rv.ID, &rv.Review, &rv.Rating, &rv.TourID, &rv.UserID, &rv.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &rv, nil
}

func (r *ReviewsRepoImpl) RatingStats(ctx context.Context, tourID string) (domain.RatingStats, error) {
	const q = `SELECT COUNT(*), COALESCE(AVG(rating), 0) FROM reviews WHERE tour_id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var stats domain.RatingStats
	if err := r.pool.QueryRow(ctx, q, tourID).Scan(&stats.Count, &stats.Average); err != nil {
		return domain.RatingStats{}, err
	}
	return stats, nil
}

func (r *ReviewsRepoImpl) DeleteAll(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM reviews`)
	return err
}
