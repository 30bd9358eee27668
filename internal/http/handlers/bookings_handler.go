package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/williamsbolu/natours/internal/http/middleware"
	"github.com/williamsbolu/natours/internal/http/response"
	"github.com/williamsbolu/natours/internal/service"
)

const maxWebhookBody = 64 << 10

type BookingsHandler struct {
	Bookings service.BookingService
	Gate     service.Gate
}

func NewBookingsHandler(bookings service.BookingService, gate service.Gate) *BookingsHandler {
	return &BookingsHandler{Bookings: bookings, Gate: gate}
}

// Routes is mounted at /api/v1/bookings.
func (h *BookingsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(mw.Protect(h.Gate))
	r.Get("/checkout-session/{tourId}", h.checkoutSession)
	r.Get("/my-bookings", h.myBookings)
	return r
}

func (h *BookingsHandler) checkoutSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Bookings.CheckoutSession(r.Context(), mw.UserFrom(r.Context()), chi.URLParam(r, "tourId"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"status": "success", "session": sess})
}

func (h *BookingsHandler) myBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Bookings.MyBookings(r.Context(), mw.UserFrom(r.Context()).ID)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.List(w, len(bookings), map[string]any{"bookings": bookings})
}

// Webhook takes the raw body; the signature covers the exact bytes.
func (h *BookingsHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	if _, err := h.Bookings.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
