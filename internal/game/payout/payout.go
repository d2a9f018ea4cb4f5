package payout

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"github.com/nardotini/pump-dump-server/internal/lib/logger/sl"
	"github.com/nardotini/pump-dump-server/internal/model"
)

// Result carries the settlement figures broadcast after a round completes.
type Result struct {
	Side        model.Side
	Multiplier  decimal.Decimal
	HouseProfit decimal.Decimal
	WinnersPool decimal.Decimal
	WinnerCount int
}

// Settler applies the settlement atomically: marks winning bets, credits
// winner balances and updates participant statistics in one transaction.
type Settler interface {
	SettleRound(roundID int64, result model.Side, multiplier, houseProfit decimal.Decimal) (int, error)
}

type Distributor struct {
	ledger    Settler
	houseEdge decimal.Decimal
	log       *slog.Logger
}

func NewDistributor(ledger Settler, houseEdge decimal.Decimal, log *slog.Logger) *Distributor {
	return &Distributor{
		ledger:    ledger,
		houseEdge: houseEdge,
		log:       log,
	}
}

// Compute derives the settlement figures for a round without touching the
// ledger. When nobody bet the winning side the whole pot is house profit and
// the multiplier is zero.
func Compute(round *model.Round, result model.Side, houseEdge decimal.Decimal) Result {
	houseProfit := round.TotalPot.Mul(houseEdge)
	winnersPool := round.TotalPot.Sub(houseProfit)

	winningPot := round.PumpPot
	if result == model.Dump {
		winningPot = round.DumpPot
	}

	if winningPot.IsZero() {
		return Result{
			Side:        result,
			Multiplier:  decimal.Zero,
			HouseProfit: round.TotalPot,
			WinnersPool: decimal.Zero,
		}
	}

	return Result{
		Side:        result,
		Multiplier:  winnersPool.Div(winningPot),
		HouseProfit: houseProfit,
		WinnersPool: winnersPool,
	}
}

// Distribute computes the payout figures for the round and delegates the
// atomic write to the ledger. A round the ledger reports as already settled
// is surfaced unchanged so the clock can treat the call as a no-op.
func (d *Distributor) Distribute(round *model.Round, result model.Side) (Result, error) {
	const op = "payout.Distributor.Distribute"

	res := Compute(round, result, d.houseEdge)

	winnerCount, err := d.ledger.SettleRound(round.ID, result, res.Multiplier, res.HouseProfit)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	res.WinnerCount = winnerCount

	d.log.Info("round settled",
		slog.String("op", op),
		slog.Int64("round_number", round.Number),
		sl.String("result", string(result)),
		sl.Decimal("multiplier", res.Multiplier),
		sl.Decimal("house_profit", res.HouseProfit),
		slog.Int("winner_count", winnerCount))

	return res, nil
}
