// Package memory is a process-local store used in development and tests. It
// enforces the same unique constraints as the database backends.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/internal/repo"
)

type Store struct {
	mu       sync.RWMutex
	users    map[string]*domain.User
	tours    map[string]*domain.Tour
	reviews  map[string]*domain.Review
	bookings map[string]*domain.Booking
	now      func() time.Time
}

func New() *Store {
	return &Store{
		users:    map[string]*domain.User{},
		tours:    map[string]*domain.Tour{},
		reviews:  map[string]*domain.Review{},
		bookings: map[string]*domain.Booking{},
		now:      time.Now,
	}
}

func (s *Store) Stores() repo.Stores {
	return repo.Stores{
		Users:    &UserStore{s},
		Tours:    &TourStore{s},
		Reviews:  &ReviewStore{s},
		Bookings: &BookingStore{s},
		Close:    func(context.Context) error { return nil },
	}
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	if u.PasswordChangedAt != nil {
		t := *u.PasswordChangedAt
		c.PasswordChangedAt = &t
	}
	if u.PasswordResetExpires != nil {
		t := *u.PasswordResetExpires
		c.PasswordResetExpires = &t
	}
	return &c
}

type UserStore struct{ s *Store }

func (r *UserStore) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return nil, domain.ErrDuplicateEmail
		}
	}
	c := cloneUser(u)
	c.ID = newID(u.ID)
	if _, taken := r.s.users[c.ID]; taken {
		return nil, domain.ErrDuplicateEmail
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.s.now()
	}
	r.s.users[c.ID] = c
	return cloneUser(c), nil
}

func (r *UserStore) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok || !u.Active {
		return nil, domain.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *UserStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if u.Email == email && u.Active {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *UserStore) UpdateProfile(_ context.Context, id string, upd repo.ProfileUpdate) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok || !u.Active {
		return nil, domain.ErrNotFound
	}
	if upd.Email != nil && *upd.Email != u.Email {
		for _, other := range r.s.users {
			if other.Email == *upd.Email {
				return nil, domain.ErrDuplicateEmail
			}
		}
		u.Email = *upd.Email
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Photo != nil {
		u.Photo = *upd.Photo
	}
	return cloneUser(u), nil
}

func (r *UserStore) UpdatePassword(_ context.Context, id, hash string, changedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok || !u.Active {
		return domain.ErrNotFound
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = &changedAt
	u.PasswordResetToken = ""
	u.PasswordResetExpires = nil
	return nil
}

func (r *UserStore) SetResetToken(_ context.Context, id, tokenHash string, expires time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.PasswordResetToken = tokenHash
	u.PasswordResetExpires = &expires
	return nil
}

func (r *UserStore) ClearResetToken(_ context.Context, id, tokenHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	if u.PasswordResetToken != tokenHash {
		return nil
	}
	u.PasswordResetToken = ""
	u.PasswordResetExpires = nil
	return nil
}

func (r *UserStore) ConsumeResetToken(_ context.Context, tokenHash string, now time.Time, newHash string, changedAt time.Time) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if tokenHash == "" || u.PasswordResetToken != tokenHash || !u.Active {
			continue
		}
		if u.PasswordResetExpires == nil || !u.PasswordResetExpires.After(now) {
			continue
		}
		u.PasswordHash = newHash
		u.PasswordChangedAt = &changedAt
		u.PasswordResetToken = ""
		u.PasswordResetExpires = nil
		return cloneUser(u), nil
	}
	return nil, domain.ErrNotFound
}

func (r *UserStore) Deactivate(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok || !u.Active {
		return domain.ErrNotFound
	}
	u.Active = false
	return nil
}

func (r *UserStore) DeleteAll(_ context.Context) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.users = map[string]*domain.User{}
	return nil
}

type TourStore struct{ s *Store }

func (r *TourStore) Create(_ context.Context, t *domain.Tour) (*domain.Tour, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := *t
	c.ID = newID(t.ID)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.s.now()
	}
	r.s.tours[c.ID] = &c
	out := c
	return &out, nil
}

func (r *TourStore) FindByID(_ context.Context, id string) (*domain.Tour, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.tours[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (r *TourStore) List(_ context.Context) ([]*domain.Tour, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*domain.Tour, 0, len(r.s.tours))
	for _, t := range r.s.tours {
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *TourStore) UpdateRatings(_ context.Context, id string, ratings domain.TourRatings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tours[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.RatingsQuantity = ratings.Quantity
	t.RatingsAverage = ratings.Average
	return nil
}

func (r *TourStore) DeleteAll(_ context.Context) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tours = map[string]*domain.Tour{}
	return nil
}

type ReviewStore struct{ s *Store }

// populate must be called with the lock held.
func (r *ReviewStore) populate(rv *domain.Review) *domain.Review {
	c := *rv
	if u, ok := r.s.users[rv.UserID]; ok {
		c.User = &domain.UserInfo{ID: u.ID, Name: u.Name, Photo: u.Photo}
	}
	return &c
}

func (r *ReviewStore) Create(_ context.Context, rv *domain.Review) (*domain.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.reviews {
		if existing.TourID == rv.TourID && existing.UserID == rv.UserID {
			return nil, domain.ErrDuplicateReview
		}
	}
	c := *rv
	c.User = nil
	c.ID = newID(rv.ID)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.s.now()
	}
	r.s.reviews[c.ID] = &c
	return r.populate(&c), nil
}

func (r *ReviewStore) FindByID(_ context.Context, id string) (*domain.Review, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rv, ok := r.s.reviews[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.populate(rv), nil
}

func (r *ReviewStore) List(_ context.Context, tourID string) ([]*domain.Review, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*domain.Review, 0)
	for _, rv := range r.s.reviews {
		if tourID != "" && rv.TourID != tourID {
			continue
		}
		out = append(out, r.populate(rv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *ReviewStore) Update(_ context.Context, id string, upd domain.UpdateReviewRequest) (*domain.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rv, ok := r.s.reviews[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if upd.Review != nil {
		rv.Review = *upd.Review
	}
	if upd.Rating != nil {
		rv.Rating = *upd.Rating
	}
	return r.populate(rv), nil
}

func (r *ReviewStore) Delete(_ context.Context, id string) (*domain.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rv, ok := r.s.reviews[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(r.s.reviews, id)
	c := *rv
	return &c, nil
}

func (r *ReviewStore) RatingStats(_ context.Context, tourID string) (domain.RatingStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var stats domain.RatingStats
	var sum float64
	for _, rv := range r.s.reviews {
		if rv.TourID == tourID {
			stats.Count++
			sum += rv.Rating
		}
	}
	if stats.Count > 0 {
		stats.Average = sum / float64(stats.Count)
	}
	return stats, nil
}

func (r *ReviewStore) DeleteAll(_ context.Context) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reviews = map[string]*domain.Review{}
	return nil
}

type BookingStore struct{ s *Store }

func (r *BookingStore) Create(_ context.Context, b *domain.Booking) (*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if b.SessionID != "" {
		for _, existing := range r.s.bookings {
			if existing.SessionID == b.SessionID {
				return nil, domain.ErrDuplicateBooking
			}
		}
	}

	c := *b
	c.ID = newID(b.ID)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.s.now()
	}
	r.s.bookings[c.ID] = &c
	out := c
	return &out, nil
}

func (r *BookingStore) ListByUser(_ context.Context, userID string) ([]*domain.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*domain.Booking, 0)
	for _, b := range r.s.bookings {
		if b.UserID == userID {
			c := *b
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
