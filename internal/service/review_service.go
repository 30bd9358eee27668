package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/internal/repo"
	"github.com/williamsbolu/natours/pkg/events"
	"github.com/williamsbolu/natours/pkg/logger"
)

const (
	msgNoReview        = "No review found with that ID"
	msgNoTour          = "No tour found with that ID"
	msgAlreadyReviewed = "You have already reviewed this tour"
	msgNotYourReview   = "You can only change your own reviews"
)

// ReviewService runs review mutations and then refreshes the owning tour's
// rating aggregate. The refresh never fails the mutation.
type ReviewService interface {
	Create(ctx context.Context, actor domain.Identity, req *domain.CreateReviewRequest) (*domain.Review, error)
	Get(ctx context.Context, id string) (*domain.Review, error)
	List(ctx context.Context, tourID string) ([]*domain.Review, error)
	Update(ctx context.Context, actor domain.Identity, id string, req *domain.UpdateReviewRequest) (*domain.Review, error)
	Delete(ctx context.Context, actor domain.Identity, id string) error
}

type reviewService struct {
	reviews repo.ReviewStore
	tours   repo.TourStore
	ratings RatingAggregator
	bus     events.Publisher
	now     func() time.Time
}

func NewReviewService(reviews repo.ReviewStore, tours repo.TourStore, ratings RatingAggregator, bus events.Publisher) ReviewService {
	return &reviewService{reviews: reviews, tours: tours, ratings: ratings, bus: bus, now: time.Now}
}

func (s *reviewService) Create(ctx context.Context, actor domain.Identity, req *domain.CreateReviewRequest) (*domain.Review, error) {
	req.Normalize()
	// Reviews are always written as the caller.
	req.UserID = actor.ID
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	if _, err := s.tours.FindByID(ctx, req.TourID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewError(domain.ErrNotFound, msgNoTour)
		}
		return nil, fmt.Errorf("find tour: %w", err)
	}

	review, err := s.reviews.Create(ctx, &domain.Review{
		Review:    req.Review,
		Rating:    req.Rating,
		TourID:    req.TourID,
		UserID:    req.UserID,
		CreatedAt: s.now(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateReview) {
			return nil, domain.WrapError(domain.ErrDuplicateReview, msgAlreadyReviewed, err)
		}
		return nil, fmt.Errorf("create review: %w", err)
	}

	s.afterWrite(ctx, events.ReviewCreated, review)
	return review, nil
}

func (s *reviewService) Get(ctx context.Context, id string) (*domain.Review, error) {
	review, err := s.reviews.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewError(domain.ErrNotFound, msgNoReview)
		}
		return nil, fmt.Errorf("find review: %w", err)
	}
	return review, nil
}

func (s *reviewService) List(ctx context.Context, tourID string) ([]*domain.Review, error) {
	reviews, err := s.reviews.List(ctx, tourID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

func (s *reviewService) Update(ctx context.Context, actor domain.Identity, id string, req *domain.UpdateReviewRequest) (*domain.Review, error) {
	req.Normalize()
	if req.Empty() {
		return nil, domain.NewError(domain.ErrValidation, "Nothing to update")
	}
	if err := domain.Validate(req); err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, actor, id); err != nil {
		return nil, err
	}

	review, err := s.reviews.Update(ctx, id, *req)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewError(domain.ErrNotFound, msgNoReview)
		}
		return nil, fmt.Errorf("update review: %w", err)
	}

	s.afterWrite(ctx, events.ReviewUpdated, review)
	return review, nil
}

func (s *reviewService) Delete(ctx context.Context, actor domain.Identity, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}

	review, err := s.reviews.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewError(domain.ErrNotFound, msgNoReview)
		}
		return fmt.Errorf("delete review: %w", err)
	}

	s.afterWrite(ctx, events.ReviewDeleted, review)
	return nil
}

// owned loads the review and checks the actor may change it.
func (s *reviewService) owned(ctx context.Context, actor domain.Identity, id string) (*domain.Review, error) {
	review, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin && review.UserID != actor.ID {
		return nil, domain.NewError(domain.ErrForbidden, msgNotYourReview)
	}
	return review, nil
}

// afterWrite runs once the review write has committed.
func (s *reviewService) afterWrite(ctx context.Context, subject string, review *domain.Review) {
	if err := s.ratings.Refresh(ctx, review.TourID); err != nil {
		logger.WarnContext(ctx, "review saved, rating refresh deferred", "review_id", review.ID, "tour_id", review.TourID)
	}
	publish(ctx, s.bus, subject, events.ReviewEvent{
		ReviewID:   review.ID,
		TourID:     review.TourID,
		UserID:     review.UserID,
		Rating:     review.Rating,
		OccurredAt: s.now(),
	})
}
