package clock

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"github.com/nardotini/pump-dump-server/internal/game"
	"github.com/nardotini/pump-dump-server/internal/game/outcome"
	"github.com/nardotini/pump-dump-server/internal/game/payout"
	"github.com/nardotini/pump-dump-server/internal/hub"
	"github.com/nardotini/pump-dump-server/internal/lib/logger/sl"
	"github.com/nardotini/pump-dump-server/internal/model"
)

// Ledger is the slice of the persistence layer the clock drives. The clock is
// the only caller of the status-mutating operations.
type Ledger interface {
	LastRoundNumber() (int64, error)
	CreateRound(number int64, bettingEndsAt time.Time) (*model.Round, error)
	RoundByID(id int64) (*model.Round, error)
	CloseBetting(id int64) (*model.Round, error)
	RefundOpenRounds() (int, error)
}

type Publisher interface {
	Publish(event hub.Event)
}

type Distributor interface {
	Distribute(round *model.Round, result model.Side) (payout.Result, error)
}

type Options struct {
	BettingWindow time.Duration
	RevealWindow  time.Duration
	RoundPause    time.Duration
	RetryDelay    time.Duration
	HouseEdge     float64
}

// Clock owns the round lifecycle. A single Run loop advances every round
// through betting, revealing and completed; nothing else writes round status.
type Clock struct {
	log         *slog.Logger
	ledger      Ledger
	pub         Publisher
	distributor Distributor
	rnd         *rand.Rand
	opts        Options

	mu      sync.RWMutex
	current *model.Round
}

func New(
	log *slog.Logger,
	ledger Ledger,
	pub Publisher,
	distributor Distributor,
	rnd *rand.Rand,
	opts Options) *Clock {
	return &Clock{
		log:         log,
		ledger:      ledger,
		pub:         pub,
		distributor: distributor,
		rnd:         rnd,
		opts:        opts,
	}
}

// Current returns a copy of the round the clock is driving, or nil between
// rounds.
func (c *Clock) Current() *model.Round {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil {
		return nil
	}

	round := *c.current

	return &round
}

func (c *Clock) setCurrent(round *model.Round) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = round
}

// Run drives rounds until the context is cancelled. Round numbers resume from
// the last persisted round and advance gaplessly; a persistence failure pauses
// and retries the same phase instead of skipping it.
func (c *Clock) Run(ctx context.Context) {
	const op = "clock.Clock.Run"

	log := c.log.With(slog.String("op", op))

	if !c.refundOpenRounds(ctx) {
		return
	}

	number, ok := c.nextRoundNumber(ctx)
	if !ok {
		return
	}

	log.Info("game loop started", slog.Int64("next_round", number))

	for {
		round, ok := c.openRound(ctx, number)
		if !ok {
			return
		}

		c.setCurrent(round)

		if !c.countdown(ctx, round.ID, round.BettingEndsAt) {
			return
		}

		round, ok = c.closeBetting(ctx, round.ID)
		if !ok {
			return
		}

		if !c.sleep(ctx, c.opts.RevealWindow) {
			return
		}

		if !c.settle(ctx, round.ID) {
			return
		}

		c.setCurrent(nil)

		number++

		if !c.sleep(ctx, c.opts.RoundPause) {
			return
		}
	}
}

// refundOpenRounds returns stranded stakes from rounds a previous run left
// open, so exactly zero rounds are open before the first openRound.
func (c *Clock) refundOpenRounds(ctx context.Context) bool {
	const op = "clock.Clock.refundOpenRounds"

	for {
		refunded, err := c.ledger.RefundOpenRounds()
		if err == nil {
			if refunded > 0 {
				c.log.Warn("refunded stale open rounds",
					slog.String("op", op),
					slog.Int("rounds", refunded))
			}

			return true
		}

		c.log.Error("failed to refund stale rounds", slog.String("op", op), sl.Err(err))

		if !c.sleep(ctx, c.opts.RetryDelay) {
			return false
		}
	}
}

func (c *Clock) nextRoundNumber(ctx context.Context) (int64, bool) {
	const op = "clock.Clock.nextRoundNumber"

	for {
		last, err := c.ledger.LastRoundNumber()
		if err == nil {
			return last + 1, true
		}

		c.log.Error("failed to read last round number", slog.String("op", op), sl.Err(err))

		if !c.sleep(ctx, c.opts.RetryDelay) {
			return 0, false
		}
	}
}

// openRound persists the next round in betting status and announces it.
// The round counter is not advanced on failure.
func (c *Clock) openRound(ctx context.Context, number int64) (*model.Round, bool) {
	const op = "clock.Clock.openRound"

	log := c.log.With(slog.String("op", op), slog.Int64("round_number", number))

	for {
		if ctx.Err() != nil {
			return nil, false
		}

		round, err := c.ledger.CreateRound(number, time.Now().Add(c.opts.BettingWindow))
		if err != nil {
			log.Error("failed to create round", sl.Err(err))

			if !c.sleep(ctx, c.opts.RetryDelay) {
				return nil, false
			}

			continue
		}

		log.Info("round started", sl.String("round_uuid", round.UUID.String()))

		c.pub.Publish(hub.Event{
			Type: "round_started",
			Data: map[string]interface{}{
				"round_number":    round.Number,
				"round_uuid":      round.UUID.String(),
				"status":          round.Status,
				"betting_seconds": int(c.opts.BettingWindow.Seconds()),
			},
		})

		return round, true
	}
}

// countdown waits out the betting window, publishing a timer_update with live
// pot figures once per second.
func (c *Clock) countdown(ctx context.Context, roundID int64, deadline time.Time) bool {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case <-ticker.C:
			c.publishTimerUpdate(roundID, deadline)
		}
	}
}

func (c *Clock) publishTimerUpdate(roundID int64, deadline time.Time) {
	const op = "clock.Clock.publishTimerUpdate"

	round, err := c.ledger.RoundByID(roundID)
	if err != nil {
		c.log.Warn("failed to read round for timer update", slog.String("op", op), sl.Err(err))

		return
	}

	remaining := int(time.Until(deadline).Seconds())
	if remaining < 0 {
		remaining = 0
	}

	c.pub.Publish(hub.Event{
		Type: "timer_update",
		Data: map[string]interface{}{
			"round_number":       round.Number,
			"time_remaining":     remaining,
			"total_pot":          round.TotalPot,
			"pump_pot":           round.PumpPot,
			"dump_pot":           round.DumpPot,
			"participants_count": round.Participants,
		},
	})
}

// closeBetting moves the round to revealing and broadcasts the final pots.
// The status guard in the ledger makes a repeated call a no-op.
func (c *Clock) closeBetting(ctx context.Context, roundID int64) (*model.Round, bool) {
	const op = "clock.Clock.closeBetting"

	log := c.log.With(slog.String("op", op), slog.Int64("round_id", roundID))

	for {
		round, err := c.ledger.CloseBetting(roundID)
		if err != nil {
			log.Error("failed to close betting", sl.Err(err))

			if !c.sleep(ctx, c.opts.RetryDelay) {
				return nil, false
			}

			continue
		}

		log.Info("betting closed",
			sl.Decimal("total_pot", round.TotalPot),
			slog.Int("participants", round.Participants))

		c.pub.Publish(hub.Event{
			Type: "betting_closed",
			Data: map[string]interface{}{
				"round_number":       round.Number,
				"total_pot":          round.TotalPot,
				"pump_pot":           round.PumpPot,
				"dump_pot":           round.DumpPot,
				"participants_count": round.Participants,
				"reveal_seconds":     int(c.opts.RevealWindow.Seconds()),
			},
		})

		return round, true
	}
}

// settle picks the result, applies payouts through the distributor and
// broadcasts the outcome. Settling an already-completed round is a no-op, so
// a retry after a partial failure can never pay out twice.
func (c *Clock) settle(ctx context.Context, roundID int64) bool {
	const op = "clock.Clock.settle"

	log := c.log.With(slog.String("op", op), slog.Int64("round_id", roundID))

	for {
		round, err := c.ledger.RoundByID(roundID)
		if err != nil {
			log.Error("failed to read round for settlement", sl.Err(err))

			if !c.sleep(ctx, c.opts.RetryDelay) {
				return false
			}

			continue
		}

		if round.Status == model.StatusCompleted {
			log.Info("round already settled")

			return true
		}

		result := outcome.Pick(c.rnd, round.PumpPot, round.DumpPot, c.opts.HouseEdge)

		res, err := c.distributor.Distribute(round, result)
		if err != nil {
			if errors.Is(err, game.ErrRoundSettled) {
				log.Info("round already settled")

				return true
			}

			log.Error("failed to distribute payouts", sl.Err(err))

			if !c.sleep(ctx, c.opts.RetryDelay) {
				return false
			}

			continue
		}

		c.pub.Publish(hub.Event{
			Type: "round_result",
			Data: map[string]interface{}{
				"round_number": round.Number,
				"result":       res.Side,
				"total_pot":    round.TotalPot,
				"house_cut":    res.HouseProfit,
				"winners_pool": res.WinnersPool,
				"multiplier":   res.Multiplier,
				"winner_count": res.WinnerCount,
			},
		})

		return true
	}
}

func (c *Clock) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
