package game

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"github.com/nardotini/pump-dump-server/internal/hub"
	"github.com/nardotini/pump-dump-server/internal/lib/logger/sl"
	"github.com/nardotini/pump-dump-server/internal/model"
)

// Ledger is the transactional store the engine places bets against. All
// financial mutation happens inside its operations; the engine never touches
// balances or pots directly.
type Ledger interface {
	GetOrCreateUser(key string) (*model.User, error)
	PlaceBet(userID, roundID int64, side model.Side, amount decimal.Decimal) (*model.Bet, *model.Round, error)
	UserBet(userID, roundID int64) (*model.Bet, error)
	RoundByID(id int64) (*model.Round, error)
	UserStats(key string) (*model.UserStats, error)
	RecentRounds(limit int) ([]model.Round, error)
}

type Publisher interface {
	Publish(event hub.Event)
}

// RoundClock drives the round lifecycle and exposes the round it is
// currently driving.
type RoundClock interface {
	Run(ctx context.Context)
	Current() *model.Round
}

// RoundInfo is the read-only snapshot exposed to external collaborators.
type RoundInfo struct {
	RoundNumber   int64             `json:"round_number"`
	Status        model.RoundStatus `json:"status"`
	TimeRemaining int               `json:"time_remaining"`
	TotalPot      decimal.Decimal   `json:"total_pot"`
	PumpPot       decimal.Decimal   `json:"pump_pot"`
	DumpPot       decimal.Decimal   `json:"dump_pot"`
	Participants  int               `json:"participants_count"`
}

// Engine composes the clock, ledger and hub behind the operations the bot
// handlers and the websocket server call.
type Engine struct {
	log    *slog.Logger
	ledger Ledger
	pub    Publisher
	clock  RoundClock
	cancel context.CancelFunc
}

func NewEngine(log *slog.Logger, ledger Ledger, pub Publisher, roundClock RoundClock) *Engine {
	return &Engine{
		log:    log,
		ledger: ledger,
		pub:    pub,
		clock:  roundClock,
	}
}

// Start launches the round loop. It returns immediately; rounds run until
// Stop or context cancellation.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	go e.clock.Run(ctx)
}

// Stop cancels the round loop timers. An in-flight ledger transaction is
// allowed to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// PlaceBet validates and commits a bet for the current round. Rejections come
// back as the typed errors in errors.go; on success the committed pot
// snapshot is broadcast to all subscribers.
func (e *Engine) PlaceBet(userKey string, side model.Side, amount decimal.Decimal) error {
	const op = "game.Engine.PlaceBet"

	log := e.log.With(slog.String("op", op), sl.String("user_key", userKey))

	if !side.Valid() {
		return ErrInvalidSide
	}

	round := e.clock.Current()
	if round == nil {
		return ErrRoundNotOpen
	}

	user, err := e.ledger.GetOrCreateUser(userKey)
	if err != nil {
		log.Error("failed to get or create user", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	bet, snapshot, err := e.ledger.PlaceBet(user.ID, round.ID, side, amount)
	if err != nil {
		return err
	}

	log.Info("bet placed",
		slog.Int64("round_number", snapshot.Number),
		sl.String("side", string(side)),
		sl.Decimal("amount", amount))

	e.pub.Publish(hub.Event{
		Type: "bet_placed",
		Data: map[string]interface{}{
			"round_number":       snapshot.Number,
			"user_key":           userKey,
			"side":               bet.Side,
			"amount":             bet.Amount,
			"total_pot":          snapshot.TotalPot,
			"pump_pot":           snapshot.PumpPot,
			"dump_pot":           snapshot.DumpPot,
			"participants_count": snapshot.Participants,
		},
	})

	return nil
}

// CurrentRoundInfo returns the open round's live figures, or nil when no
// round is open.
func (e *Engine) CurrentRoundInfo() (*RoundInfo, error) {
	const op = "game.Engine.CurrentRoundInfo"

	current := e.clock.Current()
	if current == nil {
		return nil, nil
	}

	round, err := e.ledger.RoundByID(current.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	remaining := 0
	if round.Status == model.StatusBetting {
		remaining = int(time.Until(round.BettingEndsAt).Seconds())
		if remaining < 0 {
			remaining = 0
		}
	}

	return &RoundInfo{
		RoundNumber:   round.Number,
		Status:        round.Status,
		TimeRemaining: remaining,
		TotalPot:      round.TotalPot,
		PumpPot:       round.PumpPot,
		DumpPot:       round.DumpPot,
		Participants:  round.Participants,
	}, nil
}

// UserBet returns the caller's bet in the current round, or nil if they have
// not bet or no round is open.
func (e *Engine) UserBet(userKey string) (*model.Bet, error) {
	const op = "game.Engine.UserBet"

	round := e.clock.Current()
	if round == nil {
		return nil, nil
	}

	user, err := e.ledger.GetOrCreateUser(userKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	bet, err := e.ledger.UserBet(user.ID, round.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bet, nil
}

func (e *Engine) UserStats(userKey string) (*model.UserStats, error) {
	const op = "game.Engine.UserStats"

	stats, err := e.ledger.UserStats(userKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return stats, nil
}

func (e *Engine) RecentRounds(limit int) ([]model.Round, error) {
	const op = "game.Engine.RecentRounds"

	rounds, err := e.ledger.RecentRounds(limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rounds, nil
}
