package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/internal/platform/credentials"
	"github.com/williamsbolu/natours/internal/repo"
	"github.com/williamsbolu/natours/internal/repo/memory"
	"github.com/williamsbolu/natours/pkg/auth"
	"github.com/williamsbolu/natours/pkg/events"
	"github.com/williamsbolu/natours/pkg/metrics"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeMailer struct {
	mu         sync.Mutex
	welcomeErr error
	resetErr   error
	welcomes   []string
	resetURLs  []string
}

func (m *fakeMailer) SendWelcome(_ context.Context, email, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcomes = append(m.welcomes, email)
	return m.welcomeErr
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, _, _, resetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetURLs = append(m.resetURLs, resetURL)
	return m.resetErr
}

type harness struct {
	stores  repo.Stores
	clock   *testClock
	tokens  *auth.TokenService
	hasher  credentials.Hasher
	mailer  *fakeMailer
	bus     *events.LocalBus
	metrics *metrics.Metrics

	gate    Gate
	auth    AuthService
	users   UserService
	ratings RatingAggregator
	reviews ReviewService
	tours   TourService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		stores:  memory.New().Stores(),
		clock:   newTestClock(),
		hasher:  credentials.NewPasswordHasher(credentials.AlgoBcrypt, 4),
		mailer:  &fakeMailer{},
		bus:     events.NewLocalBus(),
		metrics: metrics.NewMetrics("test"),
	}
	h.tokens = auth.NewTokenService("test-secret", time.Hour).WithClock(h.clock.Now)
	h.gate = NewGate(h.stores.Users, h.tokens, h.metrics)
	h.auth = NewAuthService(h.stores.Users, h.hasher, h.tokens, h.mailer, h.bus, h.metrics, AuthConfig{
		BaseURL:  "http://localhost:3000",
		ResetTTL: 10 * time.Minute,
		Now:      h.clock.Now,
	})
	h.users = NewUserService(h.stores.Users)
	h.ratings = NewRatingAggregator(h.stores.Reviews, h.stores.Tours, h.bus, h.metrics, RatingConfig{
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		Now:             h.clock.Now,
	})
	h.reviews = NewReviewService(h.stores.Reviews, h.stores.Tours, h.ratings, h.bus)
	h.tours = NewTourService(h.stores.Tours)
	return h
}

func (h *harness) createUser(t *testing.T, name, email, password, role string) *domain.User {
	t.Helper()
	hash, err := h.hasher.Hash(password)
	require.NoError(t, err)
	u, err := h.stores.Users.Create(context.Background(), &domain.User{
		Name:         name,
		Email:        email,
		Photo:        domain.DefaultPhoto,
		Role:         role,
		PasswordHash: hash,
		Active:       true,
	})
	require.NoError(t, err)
	return u
}

func (h *harness) createTour(t *testing.T, name string) *domain.Tour {
	t.Helper()
	tour, err := h.tours.Create(context.Background(), &domain.CreateTourRequest{
		Name:         name,
		Duration:     5,
		MaxGroupSize: 25,
		Difficulty:   domain.DifficultyEasy,
		Price:        497,
		Summary:      "Breathtaking hike through the Canadian Banff National Park",
		ImageCover:   "tour-1-cover.jpg",
	})
	require.NoError(t, err)
	return tour
}
