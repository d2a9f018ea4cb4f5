package clock

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"github.com/nardotini/pump-dump-server/internal/game"
	"github.com/nardotini/pump-dump-server/internal/game/payout"
	"github.com/nardotini/pump-dump-server/internal/hub"
	"github.com/nardotini/pump-dump-server/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() Options {
	return Options{
		BettingWindow: 40 * time.Millisecond,
		RevealWindow:  20 * time.Millisecond,
		RoundPause:    10 * time.Millisecond,
		RetryDelay:    5 * time.Millisecond,
		HouseEdge:     0.05,
	}
}

type fakeLedger struct {
	mu             sync.Mutex
	rounds         map[int64]*model.Round
	nextID         int64
	createFailures int
	settleCalls    int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rounds: make(map[int64]*model.Round)}
}

func (f *fakeLedger) LastRoundNumber() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var last int64

	for _, round := range f.rounds {
		if round.Number > last {
			last = round.Number
		}
	}

	return last, nil
}

func (f *fakeLedger) CreateRound(number int64, bettingEndsAt time.Time) (*model.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createFailures > 0 {
		f.createFailures--

		return nil, errors.New("storage unavailable")
	}

	f.nextID++

	round := &model.Round{
		ID:            f.nextID,
		UUID:          uuid.New(),
		Number:        number,
		Status:        model.StatusBetting,
		BettingEndsAt: bettingEndsAt,
	}

	f.rounds[round.ID] = round

	snapshot := *round

	return &snapshot, nil
}

func (f *fakeLedger) RoundByID(id int64) (*model.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	round, ok := f.rounds[id]
	if !ok {
		return nil, errors.New("round not found")
	}

	snapshot := *round

	return &snapshot, nil
}

func (f *fakeLedger) CloseBetting(id int64) (*model.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	round, ok := f.rounds[id]
	if !ok {
		return nil, errors.New("round not found")
	}

	if round.Status == model.StatusBetting {
		round.Status = model.StatusRevealing
	}

	snapshot := *round

	return &snapshot, nil
}

func (f *fakeLedger) SettleRound(roundID int64, result model.Side, multiplier, houseProfit decimal.Decimal) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	round, ok := f.rounds[roundID]
	if !ok {
		return 0, errors.New("round not found")
	}

	if round.Status != model.StatusRevealing {
		return 0, game.ErrRoundSettled
	}

	f.settleCalls++

	now := time.Now()
	round.Status = model.StatusCompleted
	round.Result = &result
	round.HouseProfit = houseProfit
	round.EndedAt = &now

	return 0, nil
}

func (f *fakeLedger) RefundOpenRounds() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var refunded int

	now := time.Now()

	for _, round := range f.rounds {
		if round.Status == model.StatusBetting || round.Status == model.StatusRevealing {
			round.Status = model.StatusCompleted
			round.EndedAt = &now
			refunded++
		}
	}

	return refunded, nil
}

func (f *fakeLedger) roundByNumber(number int64) *model.Round {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, round := range f.rounds {
		if round.Number == number {
			snapshot := *round

			return &snapshot
		}
	}

	return nil
}

func (f *fakeLedger) settleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.settleCalls
}

type fakePublisher struct {
	mu     sync.Mutex
	events []hub.Event
}

func (f *fakePublisher) Publish(event hub.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, event)
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	types := make([]string, 0, len(f.events))
	for _, event := range f.events {
		types = append(types, event.Type)
	}

	return types
}

func (f *fakePublisher) count(eventType string) int {
	var n int

	for _, t := range f.types() {
		if t == eventType {
			n++
		}
	}

	return n
}

func newTestClock(ledger *fakeLedger, pub *fakePublisher, opts Options) *Clock {
	log := discardLogger()

	distributor := payout.NewDistributor(ledger, decimal.NewFromFloat(opts.HouseEdge), log)

	return New(log, ledger, pub, distributor, rand.New(rand.NewSource(1)), opts)
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

func TestRunDrivesRoundLifecycle(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	pub := &fakePublisher{}

	c := newTestClock(ledger, pub, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.Run(ctx)

	waitFor(t, 2*time.Second, func() bool {
		return pub.count("round_result") >= 1
	})

	cancel()

	round := ledger.roundByNumber(1)
	if round == nil {
		t.Fatal("round 1 was never created")
	}

	if round.Status != model.StatusCompleted {
		t.Errorf("unexpected status, want: completed, got: %s", round.Status)
	}
	if round.Result == nil {
		t.Error("completed round has no result")
	}
	if round.EndedAt == nil {
		t.Error("completed round has no ended_at")
	}

	types := pub.types()

	order := map[string]int{}
	for i, eventType := range types {
		if _, seen := order[eventType]; !seen {
			order[eventType] = i
		}
	}

	for _, eventType := range []string{"round_started", "betting_closed", "round_result"} {
		if _, ok := order[eventType]; !ok {
			t.Fatalf("event %s was never published, got: %v", eventType, types)
		}
	}

	if !(order["round_started"] < order["betting_closed"] && order["betting_closed"] < order["round_result"]) {
		t.Errorf("events out of order: %v", types)
	}
}

func TestRunRoundNumbersAreGapless(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	pub := &fakePublisher{}

	c := newTestClock(ledger, pub, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.Run(ctx)

	waitFor(t, 4*time.Second, func() bool {
		return pub.count("round_result") >= 2
	})

	cancel()

	for _, number := range []int64{1, 2} {
		if ledger.roundByNumber(number) == nil {
			t.Errorf("round %d missing, numbering has gaps", number)
		}
	}
}

func TestRunRetriesOpenRoundWithoutAdvancingCounter(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	ledger.createFailures = 2

	pub := &fakePublisher{}

	c := newTestClock(ledger, pub, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.Run(ctx)

	waitFor(t, 2*time.Second, func() bool {
		return pub.count("round_started") >= 1
	})

	cancel()

	round := ledger.roundByNumber(1)
	if round == nil {
		t.Fatal("round 1 was never created after retries")
	}
}

func TestRunRefundsStaleRoundOnStartup(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	pub := &fakePublisher{}

	// A round left open by a crashed run: betting, deadline long past.
	stale, err := ledger.CreateRound(1, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := newTestClock(ledger, pub, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.Run(ctx)

	waitFor(t, 2*time.Second, func() bool {
		return pub.count("round_started") >= 1
	})

	cancel()

	voided := ledger.roundByNumber(stale.Number)
	if voided == nil || voided.Status != model.StatusCompleted {
		t.Errorf("stale round was not voided, got: %+v", voided)
	}

	if ledger.roundByNumber(2) == nil {
		t.Error("clock did not resume numbering after the voided round")
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	pub := &fakePublisher{}

	c := newTestClock(ledger, pub, testOptions())

	round, err := ledger.CreateRound(1, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err = ledger.CloseBetting(round.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()

	if ok := c.settle(ctx, round.ID); !ok {
		t.Fatal("first settle did not complete")
	}
	if ok := c.settle(ctx, round.ID); !ok {
		t.Fatal("second settle did not complete")
	}

	if got := ledger.settleCount(); got != 1 {
		t.Errorf("settlement applied %d times, want exactly once", got)
	}

	if got := pub.count("round_result"); got != 1 {
		t.Errorf("round_result published %d times, want exactly once", got)
	}
}
