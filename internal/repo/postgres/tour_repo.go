package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/williamsbolu/natours/internal/domain"
)

type ToursRepoImpl struct{ pool *pgxpool.Pool }

func NewToursRepo(pool *pgxpool.Pool) *ToursRepoImpl { return &ToursRepoImpl{pool: pool} }

const tourCols = `id, name, slug, duration, max_group_size, difficulty, price, summary,
image_cover, ratings_average, ratings_quantity, created_at`

func scanTour(row pgx.Row) (*domain.Tour, error) {
	var t domain.Tour
	if err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &t.Duration, &t.MaxGroupSize, &t.Difficulty, &t.Price, &t.Summary,
		&t.ImageCover, &t.RatingsAverage, &t.RatingsQuantity, &t.CreatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *ToursRepoImpl) Create(ctx context.Context, t *domain.Tour) (*domain.Tour, error) {
	const q = `
INSERT INTO tours (id, name, slug, duration, max_group_size, difficulty, price, summary,
                   image_cover, ratings_average, ratings_quantity, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,COALESCE($12, now()))
RETURNING ` + tourCols
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var createdAt *time.Time
	if !t.CreatedAt.IsZero() {
		createdAt = &t.CreatedAt
	}
	return scanTour(r.pool.QueryRow(ctx, q,
		newID(t.ID), t.Name, t.Slug, t.Duration, t.MaxGroupSize, t.Difficulty, t.Price, t.Summary,
		t.ImageCover, t.RatingsAverage, t.RatingsQuantity, createdAt,
	))
}

func (r *ToursRepoImpl) FindByID(ctx context.Context, id string) (*domain.Tour, error) {
	const q = `SELECT ` + tourCols + ` FROM tours WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return scanTour(r.pool.QueryRow(ctx, q, id))
}

func (r *ToursRepoImpl) List(ctx context.Context) ([]*domain.Tour, error) {
	const q = `SELECT ` + tourCols + ` FROM tours ORDER BY created_at`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.Tour, 0)
	for rows.Next() {
		t, err := scanTour(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *ToursRepoImpl) UpdateRatings(ctx context.Context, id string, ratings domain.TourRatings) error {
	const q = `UPDATE tours SET ratings_quantity=$2, ratings_average=$3 WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id, ratings.Quantity, ratings.Average)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ToursRepoImpl) DeleteAll(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM tours`)
	return err
}
