package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/internal/platform/payments"
	"github.com/williamsbolu/natours/internal/repo"
	"github.com/williamsbolu/natours/pkg/events"
	"github.com/williamsbolu/natours/pkg/logger"
)

// CheckoutProvider is the payment side of a booking.
type CheckoutProvider interface {
	CreateSession(ctx context.Context, in payments.SessionInput) (*domain.CheckoutSession, error)
	ParseCompleted(payload []byte, signature string) (*domain.CompletedCheckout, bool, error)
}

type BookingService interface {
	CheckoutSession(ctx context.Context, user *domain.User, tourID string) (*domain.CheckoutSession, error)
	// HandleWebhook records a paid booking for a completed checkout. Other
	// event types and redelivered sessions return a nil booking and no error.
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*domain.Booking, error)
	MyBookings(ctx context.Context, userID string) ([]*domain.Booking, error)
}

type bookingService struct {
	bookings repo.BookingStore
	tours    repo.TourStore
	users    repo.UserStore
	payments CheckoutProvider
	bus      events.Publisher
	baseURL  string
	now      func() time.Time
}

func NewBookingService(
	bookings repo.BookingStore,
	tours repo.TourStore,
	users repo.UserStore,
	provider CheckoutProvider,
	bus events.Publisher,
	baseURL string,
) BookingService {
	return &bookingService{
		bookings: bookings,
		tours:    tours,
		users:    users,
		payments: provider,
		bus:      bus,
		baseURL:  baseURL,
		now:      time.Now,
	}
}

func (s *bookingService) CheckoutSession(ctx context.Context, user *domain.User, tourID string) (*domain.CheckoutSession, error) {
	tour, err := s.tours.FindByID(ctx, tourID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewError(domain.ErrNotFound, msgNoTour)
		}
		return nil, fmt.Errorf("find tour: %w", err)
	}

	sess, err := s.payments.CreateSession(ctx, payments.SessionInput{
		TourID:        tour.ID,
		TourName:      tour.Name,
		Summary:       tour.Summary,
		ImageURL:      s.baseURL + "/img/tours/" + tour.ImageCover,
		Price:         tour.Price,
		CustomerEmail: user.Email,
		SuccessURL:    s.baseURL + "/my-tours",
		CancelURL:     s.baseURL + "/tour/" + tour.Slug,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout session for tour %s: %w", tour.ID, err)
	}
	logger.InfoContext(ctx, "checkout session created", "tour_id", tour.ID, "session_id", sess.ID)
	return sess, nil
}

func (s *bookingService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*domain.Booking, error) {
	completed, ok, err := s.payments.ParseCompleted(payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			return nil, domain.WrapError(domain.ErrValidation, "Webhook error: invalid signature", err)
		}
		return nil, fmt.Errorf("parse webhook: %w", err)
	}
	if !ok {
		return nil, nil
	}

	user, err := s.users.FindByEmail(ctx, domain.NormalizeEmail(completed.CustomerEmail))
	if err != nil {
		return nil, fmt.Errorf("find customer for session %s: %w", completed.SessionID, err)
	}

	booking, err := s.bookings.Create(ctx, &domain.Booking{
		TourID:    completed.TourID,
		UserID:    user.ID,
		Price:     float64(completed.AmountTotal) / 100,
		Status:    domain.BookingPaid,
		Paid:      true,
		SessionID: completed.SessionID,
		CreatedAt: s.now(),
	})
	if errors.Is(err, domain.ErrDuplicateBooking) {
		logger.InfoContext(ctx, "checkout session already recorded", "session_id", completed.SessionID, "user_id", user.ID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	logger.InfoContext(ctx, "booking recorded", "booking_id", booking.ID, "tour_id", booking.TourID, "user_id", user.ID)
	publish(ctx, s.bus, events.BookingCreated, events.BookingCreatedEvent{
		BookingID: booking.ID,
		TourID:    booking.TourID,
		UserID:    booking.UserID,
		Price:     booking.Price,
		CreatedAt: booking.CreatedAt,
	})
	return booking, nil
}

func (s *bookingService) MyBookings(ctx context.Context, userID string) ([]*domain.Booking, error) {
	bookings, err := s.bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}
