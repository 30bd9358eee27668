package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/internal/repo"
	"github.com/williamsbolu/natours/pkg/events"
	"github.com/williamsbolu/natours/pkg/logger"
	"github.com/williamsbolu/natours/pkg/metrics"
)

// RatingAggregator keeps a tour's ratingsQuantity and ratingsAverage equal to
// the count and mean of the reviews that currently point at it.
type RatingAggregator interface {
	// Recompute scans every review of the tour and overwrites the aggregate.
	Recompute(ctx context.Context, tourID string) (domain.TourRatings, error)
	// Refresh is Recompute with retries. A final failure is logged, counted
	// and handed to the recompute queue; the error is returned for callers
	// that care but must never fail a review write.
	Refresh(ctx context.Context, tourID string) error
	// Listen subscribes to recompute requests and queues them for Run.
	// Delivery never waits on a recompute.
	Listen() (events.Subscription, error)
	// Run works the recompute queue until ctx is done.
	Run(ctx context.Context) error
}

type RatingConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	WorkerTimeout   time.Duration
	QueueSize       int
	Now             func() time.Time
}

type ratingAggregator struct {
	reviews repo.ReviewStore
	tours   repo.TourStore
	bus     events.EventBus
	metrics *metrics.Metrics
	cfg     RatingConfig
	jobs    chan string
}

func NewRatingAggregator(reviews repo.ReviewStore, tours repo.TourStore, bus events.EventBus, m *metrics.Metrics, cfg RatingConfig) RatingAggregator {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.WorkerTimeout <= 0 {
		cfg.WorkerTimeout = 10 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if bus == nil {
		bus = events.NopBus{}
	}
	return &ratingAggregator{
		reviews: reviews,
		tours:   tours,
		bus:     bus,
		metrics: m,
		cfg:     cfg,
		jobs:    make(chan string, cfg.QueueSize),
	}
}

func (a *ratingAggregator) Recompute(ctx context.Context, tourID string) (domain.TourRatings, error) {
	stats, err := a.reviews.RatingStats(ctx, tourID)
	if err != nil {
		a.metrics.RatingRecompute("error")
		return domain.TourRatings{}, domain.WrapError(domain.ErrAggregationFailure, "failed to aggregate ratings", err)
	}

	ratings := domain.RatingsFromStats(stats)
	if err := a.tours.UpdateRatings(ctx, tourID, ratings); err != nil {
		a.metrics.RatingRecompute("error")
		if errors.Is(err, domain.ErrNotFound) {
			return domain.TourRatings{}, fmt.Errorf("tour %s: %w", tourID, err)
		}
		return domain.TourRatings{}, domain.WrapError(domain.ErrAggregationFailure, "failed to store ratings", err)
	}

	a.metrics.RatingRecompute("ok")
	logger.DebugContext(ctx, "tour ratings recomputed", "tour_id", tourID, "quantity", ratings.Quantity, "average", ratings.Average)
	publish(ctx, a.bus, events.TourRatingsUpdated, events.TourRatingsUpdatedEvent{
		TourID:          tourID,
		RatingsQuantity: ratings.Quantity,
		RatingsAverage:  ratings.Average,
		UpdatedAt:       a.cfg.Now(),
	})
	return ratings, nil
}

func (a *ratingAggregator) Refresh(ctx context.Context, tourID string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.cfg.InitialInterval
	b.MaxElapsedTime = 0

	op := func() error {
		_, err := a.Recompute(ctx, tourID)
		if err != nil && errors.Is(err, domain.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, a.cfg.MaxRetries), ctx))
	if err == nil {
		return nil
	}

	logger.ErrorContext(ctx, "rating recompute failed", "tour_id", tourID, "error", err)
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	a.metrics.RatingRecompute("deferred")
	publish(ctx, a.bus, events.RatingsRecomputeRequested, events.RecomputeRequestedEvent{
		TourID:      tourID,
		Reason:      err.Error(),
		RequestedAt: a.cfg.Now(),
	})
	return err
}

func (a *ratingAggregator) Listen() (events.Subscription, error) {
	sub, err := a.bus.QueueSubscribe(events.RatingsRecomputeRequested, events.RatingsWorkerQueue, a.enqueue)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", events.RatingsRecomputeRequested, err)
	}
	return sub, nil
}

func (a *ratingAggregator) enqueue(msg *events.Message) {
	var req events.RecomputeRequestedEvent
	if err := msg.Decode(&req); err != nil {
		logger.Warn("bad recompute request", "error", err, "message_id", msg.ID)
		return
	}
	if req.TourID == "" {
		return
	}

	select {
	case a.jobs <- req.TourID:
	default:
		a.metrics.RatingRecompute("dropped")
		logger.Warn("recompute queue full, request dropped", "tour_id", req.TourID, "message_id", msg.ID)
	}
}

func (a *ratingAggregator) Run(ctx context.Context) error {
	logger.Info("ratings worker started", "queue", events.RatingsWorkerQueue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case tourID := <-a.jobs:
			a.work(tourID)
		}
	}
}

func (a *ratingAggregator) work(tourID string) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.WorkerTimeout)
	defer cancel()
	if _, err := a.Recompute(ctx, tourID); err != nil {
		logger.Error("deferred rating recompute failed", "tour_id", tourID, "error", err)
	}
}
