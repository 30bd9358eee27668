package domain

import "time"

type BookingStatus string

const (
	BookingPending BookingStatus = "pending"
	BookingPaid    BookingStatus = "paid"
)

// ParseBookingStatus reads a stored status. Records written without one, or
// with an unknown value, fall back to what paid implies.
func ParseBookingStatus(s string, paid bool) BookingStatus {
	switch BookingStatus(s) {
	case BookingPending, BookingPaid:
		return BookingStatus(s)
	}
	if paid {
		return BookingPaid
	}
	return BookingPending
}

type Booking struct {
	ID     string        `json:"id"`
	TourID string        `json:"tour"`
	UserID string        `json:"user"`
	Price  float64       `json:"price"`
	Status BookingStatus `json:"status"`
	Paid   bool          `json:"paid"`
	// SessionID is the payment provider's checkout session. It is unique
	// across bookings so a redelivered webhook records nothing new.
	SessionID string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// CheckoutSession is what the client needs to redirect to the payment page.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CompletedCheckout is the subset of a paid checkout needed to record a booking.
type CompletedCheckout struct {
	SessionID     string
	TourID        string
	CustomerEmail string
	AmountTotal   int64
}
