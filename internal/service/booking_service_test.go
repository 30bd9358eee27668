package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/internal/platform/payments"
	"github.com/williamsbolu/natours/pkg/events"
)

type fakeCheckout struct {
	lastInput payments.SessionInput
	completed *domain.CompletedCheckout
	parseErr  error
}

func (f *fakeCheckout) CreateSession(_ context.Context, in payments.SessionInput) (*domain.CheckoutSession, error) {
	f.lastInput = in
	return &domain.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (f *fakeCheckout) ParseCompleted([]byte, string) (*domain.CompletedCheckout, bool, error) {
	if f.parseErr != nil {
		return nil, false, f.parseErr
	}
	return f.completed, f.completed != nil, nil
}

func TestCheckoutSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tour := h.createTour(t, "The Forest Hiker")
	u := h.createUser(t, "Buyer", "buyer@example.com", "pass1234", domain.RoleUser)

	provider := &fakeCheckout{}
	svc := NewBookingService(h.stores.Bookings, h.stores.Tours, h.stores.Users, provider, h.bus, "https://natours.test")

	sess, err := svc.CheckoutSession(ctx, u, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)

	in := provider.lastInput
	assert.Equal(t, tour.ID, in.TourID)
	assert.Equal(t, "buyer@example.com", in.CustomerEmail)
	assert.Equal(t, 497.0, in.Price)
	assert.Equal(t, "https://natours.test/my-tours", in.SuccessURL)
	assert.Equal(t, "https://natours.test/tour/the-forest-hiker", in.CancelURL)
	assert.Equal(t, "https://natours.test/img/tours/tour-1-cover.jpg", in.ImageURL)

	_, err = svc.CheckoutSession(ctx, u, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHandleWebhookCreatesPaidBooking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tour := h.createTour(t, "The Forest Hiker")
	u := h.createUser(t, "Buyer", "buyer@example.com", "pass1234", domain.RoleUser)

	var created int
	_, err := h.bus.Subscribe(events.BookingCreated, func(*events.Message) { created++ })
	require.NoError(t, err)

	provider := &fakeCheckout{completed: &domain.CompletedCheckout{
		SessionID: "cs_1", TourID: tour.ID, CustomerEmail: "Buyer@Example.com", AmountTotal: 49700,
	}}
	svc := NewBookingService(h.stores.Bookings, h.stores.Tours, h.stores.Users, provider, h.bus, "https://natours.test")

	booking, err := svc.HandleWebhook(ctx, []byte(`{}`), "sig")
	require.NoError(t, err)
	require.NotNil(t, booking)
	assert.Equal(t, 497.0, booking.Price)
	assert.Equal(t, u.ID, booking.UserID)
	assert.Equal(t, domain.BookingPaid, booking.Status)
	assert.True(t, booking.Paid)
	assert.Equal(t, 1, created)

	mine, err := svc.MyBookings(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestHandleWebhookRedeliveryRecordsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tour := h.createTour(t, "The Sea Explorer")
	u := h.createUser(t, "Repeat Buyer", "repeat@example.com", "pass1234", domain.RoleUser)

	var created int
	_, err := h.bus.Subscribe(events.BookingCreated, func(*events.Message) { created++ })
	require.NoError(t, err)

	provider := &fakeCheckout{completed: &domain.CompletedCheckout{
		SessionID: "cs_retry", TourID: tour.ID, CustomerEmail: "repeat@example.com", AmountTotal: 49700,
	}}
	svc := NewBookingService(h.stores.Bookings, h.stores.Tours, h.stores.Users, provider, h.bus, "https://natours.test")

	first, err := svc.HandleWebhook(ctx, []byte(`{}`), "sig")
	require.NoError(t, err)
	require.NotNil(t, first)

	again, err := svc.HandleWebhook(ctx, []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.Nil(t, again)

	mine, err := svc.MyBookings(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	assert.Equal(t, 1, created)
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	h := newHarness(t)
	svc := NewBookingService(h.stores.Bookings, h.stores.Tours, h.stores.Users, &fakeCheckout{}, nil, "")

	booking, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	assert.NoError(t, err)
	assert.Nil(t, booking)
}

func TestHandleWebhookBadSignature(t *testing.T) {
	h := newHarness(t)
	provider := &fakeCheckout{parseErr: fmt.Errorf("%w: no valid signature", payments.ErrInvalidSignature)}
	svc := NewBookingService(h.stores.Bookings, h.stores.Tours, h.stores.Users, provider, nil, "")

	_, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "bad")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
