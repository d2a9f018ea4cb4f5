package repository

import (
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"github.com/nardotini/pump-dump-server/internal/storage/mysql"
)

// Ledger is the single point of truth for balances, bets and per-round pot
// aggregates. Every financial mutation runs inside one of its transactions;
// callers only ever observe committed state.
type Ledger struct {
	db  *mysql.Handler
	log *slog.Logger

	minBet          decimal.Decimal
	maxBet          decimal.Decimal
	startingBalance decimal.Decimal
}

type Limits struct {
	MinBet          decimal.Decimal
	MaxBet          decimal.Decimal
	StartingBalance decimal.Decimal
}

func NewLedger(db *mysql.Handler, log *slog.Logger, limits Limits) *Ledger {
	return &Ledger{
		db:              db,
		log:             log,
		minBet:          limits.MinBet,
		maxBet:          limits.MaxBet,
		startingBalance: limits.StartingBalance,
	}
}
