package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/internal/repo"
	"github.com/williamsbolu/natours/pkg/events"
)

func TestRatingsFollowReviewMutations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tour := h.createTour(t, "The Forest Hiker")
	assert.Equal(t, 4.5, tour.RatingsAverage)
	assert.Equal(t, 0, tour.RatingsQuantity)

	var ids []string
	for i, rating := range []float64{3, 4, 5} {
		u := h.createUser(t, "Reviewer", "reviewer"+string(rune('a'+i))+"@example.com", "pass1234", domain.RoleUser)
		r, err := h.reviews.Create(ctx, u.Identity(), &domain.CreateReviewRequest{
			Review: "Great tour", Rating: rating, TourID: tour.ID,
		})
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	assertRatings(t, h, tour.ID, 3, 4.0)

	admin := domain.Identity{ID: "admin", Role: domain.RoleAdmin}
	require.NoError(t, h.reviews.Delete(ctx, admin, ids[0]))
	assertRatings(t, h, tour.ID, 2, 4.5)

	require.NoError(t, h.reviews.Delete(ctx, admin, ids[1]))
	require.NoError(t, h.reviews.Delete(ctx, admin, ids[2]))
	assertRatings(t, h, tour.ID, 0, 4.5)
}

func TestRatingsRoundToOneDecimal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tour := h.createTour(t, "The Sea Explorer")

	for i, rating := range []float64{5, 5, 4} {
		u := h.createUser(t, "Reviewer", "sea"+string(rune('a'+i))+"@example.com", "pass1234", domain.RoleUser)
		_, err := h.reviews.Create(ctx, u.Identity(), &domain.CreateReviewRequest{Review: "Nice", Rating: rating, TourID: tour.ID})
		require.NoError(t, err)
	}
	assertRatings(t, h, tour.ID, 3, 4.7)
}

func TestUpdateReviewRecomputes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tour := h.createTour(t, "The Snow Adventurer")
	u := h.createUser(t, "Cristian Vega", "cristian@example.com", "pass1234", domain.RoleUser)

	r, err := h.reviews.Create(ctx, u.Identity(), &domain.CreateReviewRequest{Review: "Cold", Rating: 2, TourID: tour.ID})
	require.NoError(t, err)
	assertRatings(t, h, tour.ID, 1, 2)

	rating := 5.0
	updated, err := h.reviews.Update(ctx, u.Identity(), r.ID, &domain.UpdateReviewRequest{Rating: &rating})
	require.NoError(t, err)
	assert.Equal(t, 5.0, updated.Rating)
	assertRatings(t, h, tour.ID, 1, 5)

	_, err = h.reviews.Update(ctx, u.Identity(), r.ID, &domain.UpdateReviewRequest{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDuplicateReviewIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tour := h.createTour(t, "The City Wanderer")
	u := h.createUser(t, "Lisa Brown", "lisa@example.com", "pass1234", domain.RoleUser)

	first, err := h.reviews.Create(ctx, u.Identity(), &domain.CreateReviewRequest{Review: "First", Rating: 4, TourID: tour.ID})
	require.NoError(t, err)

	_, err = h.reviews.Create(ctx, u.Identity(), &domain.CreateReviewRequest{Review: "Second", Rating: 1, TourID: tour.ID})
	require.ErrorIs(t, err, domain.ErrDuplicateReview)

	list, err := h.reviews.List(ctx, tour.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, "First", list[0].Review)
	assertRatings(t, h, tour.ID, 1, 4)
}

func TestCreateReviewValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tour := h.createTour(t, "The Park Camper")
	u := h.createUser(t, "Jim Brown", "jim@example.com", "pass1234", domain.RoleUser)

	_, err := h.reviews.Create(ctx, u.Identity(), &domain.CreateReviewRequest{Review: "Too good", Rating: 6, TourID: tour.ID})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.reviews.Create(ctx, u.Identity(), &domain.CreateReviewRequest{Review: "", Rating: 3, TourID: tour.ID})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.reviews.Create(ctx, u.Identity(), &domain.CreateReviewRequest{Review: "Where?", Rating: 3, TourID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReviewOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tour := h.createTour(t, "The Wine Taster")
	owner := h.createUser(t, "Owner", "owner@example.com", "pass1234", domain.RoleUser)
	other := h.createUser(t, "Other", "other@example.com", "pass1234", domain.RoleUser)

	r, err := h.reviews.Create(ctx, owner.Identity(), &domain.CreateReviewRequest{Review: "Mine", Rating: 4, TourID: tour.ID})
	require.NoError(t, err)

	text := "Hijacked"
	_, err = h.reviews.Update(ctx, other.Identity(), r.ID, &domain.UpdateReviewRequest{Review: &text})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.ErrorIs(t, h.reviews.Delete(ctx, other.Identity(), r.ID), domain.ErrForbidden)

	text = "Moderated"
	updated, err := h.reviews.Update(ctx, domain.Identity{ID: "root", Role: domain.RoleAdmin}, r.ID, &domain.UpdateReviewRequest{Review: &text})
	require.NoError(t, err)
	assert.Equal(t, "Moderated", updated.Review)

	assert.ErrorIs(t, h.reviews.Delete(ctx, owner.Identity(), "nope"), domain.ErrNotFound)
}

func TestListPopulatesAuthor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tour := h.createTour(t, "The Northern Lights")
	u := h.createUser(t, "Aurora Watcher", "aurora@example.com", "pass1234", domain.RoleUser)

	_, err := h.reviews.Create(ctx, u.Identity(), &domain.CreateReviewRequest{Review: "Magical", Rating: 5, TourID: tour.ID})
	require.NoError(t, err)

	all, err := h.reviews.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].User)
	assert.Equal(t, "Aurora Watcher", all[0].User.Name)
}

// brokenStats fails every aggregation while letting review writes through.
type brokenStats struct {
	repo.ReviewStore
}

func (b brokenStats) RatingStats(context.Context, string) (domain.RatingStats, error) {
	return domain.RatingStats{}, errors.New("aggregation pipeline timed out")
}

func TestAggregationFailureDoesNotFailReviewWrite(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tour := h.createTour(t, "The Star Gazer")
	u := h.createUser(t, "Night Owl", "owl@example.com", "pass1234", domain.RoleUser)

	var deferred []events.RecomputeRequestedEvent
	_, err := h.bus.Subscribe(events.RatingsRecomputeRequested, func(m *events.Message) {
		var ev events.RecomputeRequestedEvent
		require.NoError(t, m.Decode(&ev))
		deferred = append(deferred, ev)
	})
	require.NoError(t, err)

	ratings := NewRatingAggregator(brokenStats{h.stores.Reviews}, h.stores.Tours, h.bus, h.metrics, RatingConfig{MaxRetries: 2, InitialInterval: time.Millisecond})
	reviews := NewReviewService(h.stores.Reviews, h.stores.Tours, ratings, h.bus)

	r, err := reviews.Create(ctx, u.Identity(), &domain.CreateReviewRequest{Review: "Stored anyway", Rating: 5, TourID: tour.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)

	stored, err := h.stores.Reviews.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Stored anyway", stored.Review)

	require.Len(t, deferred, 1)
	assert.Equal(t, tour.ID, deferred[0].TourID)
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.RatingRecomputes.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RatingRecomputes.WithLabelValues("deferred")))

	// The stale aggregate is repaired by the worker once storage recovers.
	assertRatings(t, h, tour.ID, 0, 4.5)
	sub, err := h.ratings.Listen()
	require.NoError(t, err)
	defer sub.Drain()
	runWorker(t, h.ratings)
	require.NoError(t, h.bus.Publish(ctx, events.RatingsRecomputeRequested, deferred[0]))
	assert.Eventually(t, func() bool {
		stored, err := h.stores.Tours.FindByID(ctx, tour.ID)
		return err == nil && stored.RatingsQuantity == 1
	}, time.Second, 5*time.Millisecond)
	assertRatings(t, h, tour.ID, 1, 5)
}

// runWorker runs the recompute loop until the test ends.
func runWorker(t *testing.T, ratings RatingAggregator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, ratings.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// countingStats fails every aggregation and counts attempts.
type countingStats struct {
	repo.ReviewStore
	calls atomic.Int32
}

func (c *countingStats) RatingStats(context.Context, string) (domain.RatingStats, error) {
	c.calls.Add(1)
	return domain.RatingStats{}, errors.New("aggregation pipeline timed out")
}

func TestRefreshReturnsBeforeDeferredRecompute(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tour := h.createTour(t, "The Slow Pipeline")

	stats := &countingStats{ReviewStore: h.stores.Reviews}
	ratings := NewRatingAggregator(stats, h.stores.Tours, h.bus, h.metrics, RatingConfig{MaxRetries: 1, InitialInterval: time.Millisecond})
	sub, err := ratings.Listen()
	require.NoError(t, err)
	defer sub.Drain()

	err = ratings.Refresh(ctx, tour.ID)
	require.ErrorIs(t, err, domain.ErrAggregationFailure)
	// One attempt plus one retry ran inline; the deferred one waits for the worker.
	assert.Equal(t, int32(2), stats.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RatingRecomputes.WithLabelValues("deferred")))

	runWorker(t, ratings)
	assert.Eventually(t, func() bool { return stats.calls.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestRecomputeQueueDropsWhenFull(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ratings := NewRatingAggregator(h.stores.Reviews, h.stores.Tours, h.bus, h.metrics, RatingConfig{QueueSize: 1})
	sub, err := ratings.Listen()
	require.NoError(t, err)
	defer sub.Drain()

	for i := 0; i < 3; i++ {
		require.NoError(t, h.bus.Publish(ctx, events.RatingsRecomputeRequested, events.RecomputeRequestedEvent{TourID: "t1"}))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.RatingRecomputes.WithLabelValues("dropped")))

	require.NoError(t, sub.Drain())
	require.NoError(t, h.bus.Publish(ctx, events.RatingsRecomputeRequested, events.RecomputeRequestedEvent{TourID: "t1"}))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.RatingRecomputes.WithLabelValues("dropped")))
}

func TestRecomputeErrorsAreAggregationFailures(t *testing.T) {
	h := newHarness(t)
	ratings := NewRatingAggregator(brokenStats{h.stores.Reviews}, h.stores.Tours, nil, nil, RatingConfig{})

	_, err := ratings.Recompute(context.Background(), "t1")
	assert.ErrorIs(t, err, domain.ErrAggregationFailure)
}

func TestRefreshUnknownTourIsNotRetried(t *testing.T) {
	h := newHarness(t)
	err := h.ratings.Refresh(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RatingRecomputes.WithLabelValues("error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.RatingRecomputes.WithLabelValues("deferred")))
}

func assertRatings(t *testing.T, h *harness, tourID string, quantity int, average float64) {
	t.Helper()
	tour, err := h.stores.Tours.FindByID(context.Background(), tourID)
	require.NoError(t, err)
	assert.Equal(t, quantity, tour.RatingsQuantity)
	assert.InDelta(t, average, tour.RatingsAverage, 1e-9)
}
