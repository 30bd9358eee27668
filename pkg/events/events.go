package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/williamsbolu/natours/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

// Subscription is a live handler registration. Drain stops new deliveries
// and waits for in-flight ones where the transport supports it.
type Subscription interface {
	Drain() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) (Subscription, error)
	QueueSubscribe(subject, queue string, handler func(msg *Message)) (Subscription, error)
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

func (m *Message) Decode(v interface{}) error {
	return json.Unmarshal(m.Data, v)
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name("natours-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func toMessage(msg *nats.Msg) *Message {
	id := msg.Header.Get(nats.MsgIdHdr)
	if id == "" {
		id = uuid.NewString()
	}
	return &Message{
		Subject:   msg.Subject,
		Data:      msg.Data,
		Timestamp: time.Now(),
		ID:        id,
	}
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) (Subscription, error) {
	sub, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(toMessage(msg))
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) (Subscription, error) {
	sub, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(toMessage(msg))
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Close drains subscriptions so in-flight handlers finish before the connection closes.
func (n *NATSEventBus) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}

// NopBus drops published events. Used when NATS is disabled or unreachable.
type NopBus struct{}

func (NopBus) Publish(context.Context, string, interface{}) error { return nil }

func (NopBus) Subscribe(string, func(*Message)) (Subscription, error) { return nopSubscription{}, nil }

func (NopBus) QueueSubscribe(string, string, func(*Message)) (Subscription, error) {
	return nopSubscription{}, nil
}

type nopSubscription struct{}

func (nopSubscription) Drain() error { return nil }

func (NopBus) Close() error { return nil }

// Subjects
const (
	ReviewCreated = "review.created"
	ReviewUpdated = "review.updated"
	ReviewDeleted = "review.deleted"

	TourRatingsUpdated        = "tour.ratings.updated"
	RatingsRecomputeRequested = "ratings.recompute.requested"

	UserSignedUp             = "user.signed_up"
	UserPasswordChanged      = "user.password.changed"
	UserPasswordResetRequest = "user.password.reset_requested"

	BookingCreated = "booking.created"
)

// Queue groups
const (
	RatingsWorkerQueue = "ratings-workers"
)

type ReviewEvent struct {
	ReviewID   string    `json:"review_id"`
	TourID     string    `json:"tour_id"`
	UserID     string    `json:"user_id"`
	Rating     float64   `json:"rating"`
	OccurredAt time.Time `json:"occurred_at"`
}

type TourRatingsUpdatedEvent struct {
	TourID          string    `json:"tour_id"`
	RatingsQuantity int       `json:"ratings_quantity"`
	RatingsAverage  float64   `json:"ratings_average"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type RecomputeRequestedEvent struct {
	TourID      string    `json:"tour_id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

type UserEvent struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	OccurredAt time.Time `json:"occurred_at"`
}

type BookingCreatedEvent struct {
	BookingID string    `json:"booking_id"`
	TourID    string    `json:"tour_id"`
	UserID    string    `json:"user_id"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}
