package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"golang.org/x/exp/slog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("condition not met within %s", timeout)
}

type fakeSubscriber struct {
	mu     sync.Mutex
	events [][]byte
	err    error
}

func (f *fakeSubscriber) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.events = append(f.events, data)

	return nil
}

func (f *fakeSubscriber) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var types []string

	for _, data := range f.events {
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}

		types = append(types, event.Type)
	}

	return types
}

// stalledSubscriber holds every Send until released, standing in for a live
// peer that stopped reading.
type stalledSubscriber struct {
	release chan struct{}
}

func (s *stalledSubscriber) Send(data []byte) error {
	<-s.release

	return nil
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	t.Parallel()

	h := New(discardLogger())

	first := &fakeSubscriber{}
	second := &fakeSubscriber{}

	h.Subscribe(first)
	h.Subscribe(second)

	h.Publish(Event{Type: "round_started", Data: map[string]interface{}{"round_number": 1}})

	for i, sub := range []*fakeSubscriber{first, second} {
		sub := sub

		waitFor(t, time.Second, func() bool {
			return len(sub.received()) == 1
		})

		if got := sub.received(); got[0] != "round_started" {
			t.Errorf("subscriber %d: unexpected events %v", i, got)
		}
	}
}

func TestPublishDropsDeadSubscriber(t *testing.T) {
	t.Parallel()

	h := New(discardLogger())

	dead := &fakeSubscriber{err: errors.New("connection reset")}
	alive := &fakeSubscriber{}

	h.Subscribe(dead)
	h.Subscribe(alive)

	h.Publish(Event{Type: "betting_closed", Data: map[string]interface{}{}})

	waitFor(t, time.Second, func() bool {
		return h.Count() == 1 && len(alive.received()) == 1
	})

	h.Publish(Event{Type: "round_result", Data: map[string]interface{}{}})

	waitFor(t, time.Second, func() bool {
		return len(alive.received()) == 2
	})
}

func TestPublishDoesNotBlockOnStalledSubscriber(t *testing.T) {
	t.Parallel()

	h := New(discardLogger())

	stalled := &stalledSubscriber{release: make(chan struct{})}
	defer close(stalled.release)

	alive := &fakeSubscriber{}

	h.Subscribe(stalled)
	h.Subscribe(alive)

	start := time.Now()
	h.Publish(Event{Type: "timer_update", Data: map[string]interface{}{}})
	elapsed := time.Since(start)

	if elapsed > 100*time.Millisecond {
		t.Errorf("Publish blocked on observer I/O for %s", elapsed)
	}

	// The stalled peer must not hold up delivery to anyone else either.
	waitFor(t, time.Second, func() bool {
		return len(alive.received()) == 1
	})
}

func TestStalledSubscriberIsDroppedWhenQueueFills(t *testing.T) {
	t.Parallel()

	h := New(discardLogger())

	stalled := &stalledSubscriber{release: make(chan struct{})}
	defer close(stalled.release)

	h.Subscribe(stalled)

	// One event may be in flight with the delivery goroutine and sendBuffer
	// sit in the queue; the next enqueue fails and evicts the subscriber.
	for i := 0; i < sendBuffer+2; i++ {
		h.Publish(Event{Type: "timer_update", Data: map[string]interface{}{"tick": i}})
	}

	waitFor(t, time.Second, func() bool {
		return h.Count() == 0
	})
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	t.Parallel()

	h := New(discardLogger())

	sub := &fakeSubscriber{}
	h.Subscribe(sub)

	want := []string{"round_started", "bet_placed", "betting_closed", "round_result"}

	for _, eventType := range want {
		h.Publish(Event{Type: eventType, Data: map[string]interface{}{}})
	}

	waitFor(t, time.Second, func() bool {
		return len(sub.received()) == len(want)
	})

	got := sub.received()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d out of order, want: %s, got: %s", i, want[i], got[i])
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	h := New(discardLogger())

	sub := &fakeSubscriber{}

	h.Subscribe(sub)
	h.Unsubscribe(sub)

	h.Publish(Event{Type: "timer_update", Data: map[string]interface{}{}})

	time.Sleep(50 * time.Millisecond)

	if len(sub.received()) != 0 {
		t.Errorf("unsubscribed observer still received events")
	}
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	t.Parallel()

	h := New(discardLogger())

	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		i := i

		wg.Add(2)

		go func() {
			defer wg.Done()

			sub := &fakeSubscriber{}
			h.Subscribe(sub)
			h.Unsubscribe(sub)
		}()

		go func() {
			defer wg.Done()

			h.Publish(Event{Type: "timer_update", Data: map[string]interface{}{"tick": fmt.Sprint(i)}})
		}()
	}

	wg.Wait()
}
