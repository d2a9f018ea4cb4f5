package hub

import (
	"encoding/json"
	"sync"

	"golang.org/x/exp/slog"

	"github.com/nardotini/pump-dump-server/internal/lib/logger/sl"
)

type Event struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Subscriber is a push-capable observer. A failed Send marks the subscriber
// dead and it is removed from the hub.
type Subscriber interface {
	Send(data []byte) error
}

// sendBuffer bounds how far a subscriber may lag behind the publisher before
// it is dropped.
const sendBuffer = 32

type subscription struct {
	sub  Subscriber
	ch   chan []byte
	done chan struct{}
}

// Hub fans out round lifecycle events to the current subscriber set. Each
// subscriber gets its own delivery goroutine draining a bounded queue, so
// Publish never waits on observer I/O. Delivery is best-effort: a subscriber
// that fails a send, or falls sendBuffer events behind, is dropped.
type Hub struct {
	mu   sync.RWMutex
	subs map[Subscriber]*subscription
	log  *slog.Logger
}

func New(log *slog.Logger) *Hub {
	return &Hub{
		subs: make(map[Subscriber]*subscription),
		log:  log,
	}
}

func (h *Hub) Subscribe(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub]; ok {
		return
	}

	s := &subscription{
		sub:  sub,
		ch:   make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	h.subs[sub] = s

	go h.deliver(s)
}

func (h *Hub) Unsubscribe(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.subs[sub]
	if !ok {
		return
	}

	delete(h.subs, sub)
	close(s.done)
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}

// Publish enqueues the event for every current subscriber and returns without
// waiting on any of them. A full queue means the subscriber cannot keep up
// with the round clock; it is dropped rather than allowed to stall the game.
func (h *Hub) Publish(event Event) {
	const op = "hub.Publish"

	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("failed to marshal event",
			slog.String("op", op),
			sl.String("type", event.Type),
			sl.Err(err))

		return
	}

	for _, s := range h.snapshot() {
		select {
		case s.ch <- data:
		default:
			h.log.Warn("dropping slow subscriber",
				slog.String("op", op),
				sl.String("type", event.Type))

			h.Unsubscribe(s.sub)
		}
	}
}

// deliver drains one subscriber's queue in publish order.
func (h *Hub) deliver(s *subscription) {
	const op = "hub.deliver"

	for {
		select {
		case <-s.done:
			return
		case data := <-s.ch:
			if err := s.sub.Send(data); err != nil {
				h.log.Warn("dropping dead subscriber",
					slog.String("op", op),
					sl.Err(err))

				h.Unsubscribe(s.sub)

				return
			}
		}
	}
}

// snapshot copies the subscriber set so enqueueing never runs under the lock.
func (h *Hub) snapshot() []*subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}

	return subs
}
