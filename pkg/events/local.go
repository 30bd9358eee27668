package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalBus delivers events in-process and synchronously. Queue subscribers on
// the same queue share deliveries round-robin. Handlers that do slow work
// should hand off to their own goroutine.
type LocalBus struct {
	mu     sync.RWMutex
	seq    uint64
	subs   map[string][]localHandler
	queues map[string]map[string]*localQueue
}

type localHandler struct {
	id uint64
	fn func(*Message)
}

type localQueue struct {
	handlers []localHandler
	next     int
}

func NewLocalBus() *LocalBus {
	return &LocalBus{
		subs:   map[string][]localHandler{},
		queues: map[string]map[string]*localQueue{},
	}
}

func (b *LocalBus) Publish(_ context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	msg := &Message{Subject: subject, Data: payload, Timestamp: time.Now(), ID: uuid.NewString()}

	b.mu.Lock()
	handlers := make([]func(*Message), 0, len(b.subs[subject])+len(b.queues[subject]))
	for _, h := range b.subs[subject] {
		handlers = append(handlers, h.fn)
	}
	for _, q := range b.queues[subject] {
		if len(q.handlers) == 0 {
			continue
		}
		handlers = append(handlers, q.handlers[q.next%len(q.handlers)].fn)
		q.next++
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (b *LocalBus) Subscribe(subject string, handler func(msg *Message)) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.subs[subject] = append(b.subs[subject], localHandler{id: b.seq, fn: handler})
	return &localSubscription{bus: b, subject: subject, id: b.seq}, nil
}

func (b *LocalBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queues[subject] == nil {
		b.queues[subject] = map[string]*localQueue{}
	}
	q := b.queues[subject][queue]
	if q == nil {
		q = &localQueue{}
		b.queues[subject][queue] = q
	}
	b.seq++
	q.handlers = append(q.handlers, localHandler{id: b.seq, fn: handler})
	return &localSubscription{bus: b, subject: subject, queue: queue, id: b.seq}, nil
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = map[string][]localHandler{}
	b.queues = map[string]map[string]*localQueue{}
	return nil
}

func (b *LocalBus) remove(subject, queue string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if queue == "" {
		b.subs[subject] = without(b.subs[subject], id)
		return
	}
	if q := b.queues[subject][queue]; q != nil {
		q.handlers = without(q.handlers, id)
	}
}

func without(hs []localHandler, id uint64) []localHandler {
	out := hs[:0:0]
	for _, h := range hs {
		if h.id != id {
			out = append(out, h)
		}
	}
	return out
}

type localSubscription struct {
	bus     *LocalBus
	subject string
	queue   string
	id      uint64
	once    sync.Once
}

// Drain removes the handler. Deliveries already running are not waited for.
func (s *localSubscription) Drain() error {
	s.once.Do(func() { s.bus.remove(s.subject, s.queue, s.id) })
	return nil
}
