// Package payments wraps Stripe Checkout for tour bookings.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/williamsbolu/natours/internal/domain"
)

const eventCheckoutCompleted = "checkout.session.completed"

var (
	ErrNotConfigured    = errors.New("stripe is not configured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// SessionInput describes one tour purchase.
type SessionInput struct {
	TourID        string
	TourName      string
	Summary       string
	ImageURL      string
	Price         float64
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

type Stripe struct {
	api           *client.API
	webhookSecret string
	currency      string
}

func NewStripe(secretKey, webhookSecret, currency string) *Stripe {
	s := &Stripe{webhookSecret: webhookSecret, currency: currency}
	if secretKey != "" {
		s.api = client.New(secretKey, nil)
	}
	return s
}

// UnitAmount converts a price in major units to the smallest currency unit.
func UnitAmount(price float64) int64 {
	return int64(math.Round(price * 100))
}

func (s *Stripe) CreateSession(ctx context.Context, in SessionInput) (*domain.CheckoutSession, error) {
	if s.api == nil {
		return nil, ErrNotConfigured
	}
	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name:        stripe.String(in.TourName + " Tour"),
		Description: stripe.String(in.Summary),
	}
	if in.ImageURL != "" {
		product.Images = stripe.StringSlice([]string{in.ImageURL})
	}
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(in.SuccessURL),
		CancelURL:          stripe.String(in.CancelURL),
		CustomerEmail:      stripe.String(in.CustomerEmail),
		ClientReferenceID:  stripe.String(in.TourID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(s.currency),
				UnitAmount:  stripe.Int64(UnitAmount(in.Price)),
				ProductData: product,
			},
		}},
	}
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &domain.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// ParseCompleted verifies the signature and extracts a completed checkout.
// ok is false for any other event type.
func (s *Stripe) ParseCompleted(payload []byte, signature string) (*domain.CompletedCheckout, bool, error) {
	if s.webhookSecret == "" {
		return nil, false, ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if string(event.Type) != eventCheckoutCompleted {
		return nil, false, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, false, fmt.Errorf("decode checkout session: %w", err)
	}
	email := cs.CustomerEmail
	if email == "" && cs.CustomerDetails != nil {
		email = cs.CustomerDetails.Email
	}
	return &domain.CompletedCheckout{
		SessionID:     cs.ID,
		TourID:        cs.ClientReferenceID,
		CustomerEmail: email,
		AmountTotal:   cs.AmountTotal,
	}, true, nil
}
