package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/internal/repo"
)

// TourService covers the tour operations the rest of the app depends on.
// General tour CRUD is not exposed over HTTP.
type TourService interface {
	Create(ctx context.Context, req *domain.CreateTourRequest) (*domain.Tour, error)
	Get(ctx context.Context, id string) (*domain.Tour, error)
	List(ctx context.Context) ([]*domain.Tour, error)
}

type tourService struct {
	tours repo.TourStore
	now   func() time.Time
}

func NewTourService(tours repo.TourStore) TourService {
	return &tourService{tours: tours, now: time.Now}
}

func (s *tourService) Create(ctx context.Context, req *domain.CreateTourRequest) (*domain.Tour, error) {
	req.Normalize()
	if err := domain.Validate(req); err != nil {
		return nil, err
	}
	tour, err := s.tours.Create(ctx, req.ToTour(s.now()))
	if err != nil {
		return nil, fmt.Errorf("create tour: %w", err)
	}
	return tour, nil
}

func (s *tourService) Get(ctx context.Context, id string) (*domain.Tour, error) {
	tour, err := s.tours.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewError(domain.ErrNotFound, msgNoTour)
		}
		return nil, fmt.Errorf("find tour: %w", err)
	}
	return tour, nil
}

func (s *tourService) List(ctx context.Context) ([]*domain.Tour, error) {
	tours, err := s.tours.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tours: %w", err)
	}
	return tours, nil
}
