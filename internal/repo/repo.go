package repo

import (
	"context"
	"time"

	"github.com/williamsbolu/natours/internal/domain"
)

// UserStore persists credentials. Lookups by id or email only see active users.
// Implementations return domain.ErrNotFound for misses and domain.ErrDuplicateEmail
// when the unique email index rejects a write.
type UserStore interface {
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*domain.User, error)
	// UpdatePassword sets the hash and change time and clears reset state in one write.
	UpdatePassword(ctx context.Context, id, hash string, changedAt time.Time) error
	SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error
	// ClearResetToken drops reset state only while tokenHash is still the
	// stored hash, so a newer request's token survives.
	ClearResetToken(ctx context.Context, id, tokenHash string) error
	// ConsumeResetToken matches an unexpired reset hash and, in the same write,
	// sets the new password and clears both reset fields.
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, newHash string, changedAt time.Time) (*domain.User, error)
	Deactivate(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}

type ProfileUpdate struct {
	Name  *string
	Email *string
	Photo *string
}

type TourStore interface {
	Create(ctx context.Context, t *domain.Tour) (*domain.Tour, error)
	FindByID(ctx context.Context, id string) (*domain.Tour, error)
	List(ctx context.Context) ([]*domain.Tour, error)
	UpdateRatings(ctx context.Context, id string, r domain.TourRatings) error
	DeleteAll(ctx context.Context) error
}

// ReviewStore enforces one review per (tour, user) at the storage layer and
// reports violations as domain.ErrDuplicateReview.
type ReviewStore interface {
	Create(ctx context.Context, r *domain.Review) (*domain.Review, error)
	FindByID(ctx context.Context, id string) (*domain.Review, error)
	// List returns reviews for tourID, or all reviews when tourID is empty, with the author populated.
	List(ctx context.Context, tourID string) ([]*domain.Review, error)
	Update(ctx context.Context, id string, upd domain.UpdateReviewRequest) (*domain.Review, error)
	// Delete removes the review and returns it so callers know which tour to refresh.
	Delete(ctx context.Context, id string) (*domain.Review, error)
	RatingStats(ctx context.Context, tourID string) (domain.RatingStats, error)
	DeleteAll(ctx context.Context) error
}

type BookingStore interface {
	Create(ctx context.Context, b *domain.Booking) (*domain.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Booking, error)
}

// Stores groups one backend's implementations.
type Stores struct {
	Users    UserStore
	Tours    TourStore
	Reviews  ReviewStore
	Bookings BookingStore
	Close    func(ctx context.Context) error
}
