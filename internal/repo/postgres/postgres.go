package postgres

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/internal/repo"
)

//go:embed schema.sql
var schema string

const (
	pgUniqueViolationCode = "23505"
	queryTimeout          = 3 * time.Second
)

func New(pool *pgxpool.Pool) repo.Stores {
	return repo.Stores{
		Users:    NewUsersRepo(pool),
		Tours:    NewToursRepo(pool),
		Reviews:  NewReviewsRepo(pool),
		Bookings: NewBookingRepo(pool),
		Close: func(context.Context) error {
			pool.Close()
			return nil
		},
	}
}

// Migrate applies the idempotent schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := pool.Exec(ctx, schema)
	return err
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolationCode {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}
