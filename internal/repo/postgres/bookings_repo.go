package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/williamsbolu/natours/internal/domain"
)

const bookingSessionKey = "bookings_session_key"

type BookingRepoImpl struct{ pool *pgxpool.Pool }

func NewBookingRepo(pool *pgxpool.Pool) *BookingRepoImpl { return &BookingRepoImpl{pool: pool} }

const bookingCols = `id, tour_id, user_id, price, status, paid, session_id, created_at`

func (r *BookingRepoImpl) Create(ctx context.Context, in *domain.Booking) (*domain.Booking, error) {
	const q = `INSERT INTO bookings (id, tour_id, user_id, price, status, paid, session_id)
  VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''))
  RETURNING ` + bookingCols

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	status := in.Status
	if status == "" {
		status = domain.BookingPending
	}
	b, err := scanBooking(r.pool.QueryRow(ctx, q, newID(in.ID), in.TourID, in.UserID, in.Price, status, in.Paid, in.SessionID))
	if err != nil {
		if isUniqueViolation(err, bookingSessionKey) {
			return nil, domain.ErrDuplicateBooking
		}
		return nil, err
	}
	return b, nil
}

func (r *BookingRepoImpl) ListByUser(ctx context.Context, userID string) ([]*domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE user_id=$1 ORDER BY created_at DESC`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b       domain.Booking
		status  string
		session *string
	)
	if err := row.Scan(&b.ID, &b.TourID, &b.UserID, &b.Price, &status, &b.Paid, &session, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.Status = domain.ParseBookingStatus(status, b.Paid)
	if session != nil {
		b.SessionID = *session
	}
	return &b, nil
}
