package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Side string

const (
	Pump Side = "PUMP"
	Dump Side = "DUMP"
)

func (s Side) Valid() bool {
	return s == Pump || s == Dump
}

type RoundStatus string

const (
	StatusWaiting   RoundStatus = "waiting"
	StatusBetting   RoundStatus = "betting"
	StatusRevealing RoundStatus = "revealing"
	StatusCompleted RoundStatus = "completed"
)

type User struct {
	ID           int64           `json:"id"`
	Key          string          `json:"key"`
	Balance      decimal.Decimal `json:"balance"`
	TotalWagered decimal.Decimal `json:"total_wagered"`
	TotalWon     decimal.Decimal `json:"total_won"`
	GamesPlayed  int             `json:"games_played"`
	Wins         int             `json:"wins"`
	Losses       int             `json:"losses"`
}

type Round struct {
	ID            int64           `json:"id"`
	UUID          uuid.UUID       `json:"uuid"`
	Number        int64           `json:"round_number"`
	Status        RoundStatus     `json:"status"`
	BettingEndsAt time.Time       `json:"betting_ends_at"`
	TotalPot      decimal.Decimal `json:"total_pot"`
	PumpPot       decimal.Decimal `json:"pump_pot"`
	DumpPot       decimal.Decimal `json:"dump_pot"`
	Participants  int             `json:"participants_count"`
	Result        *Side           `json:"result,omitempty"`
	HouseProfit   decimal.Decimal `json:"house_profit"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
}

type Bet struct {
	ID       int64           `json:"id"`
	UserID   int64           `json:"user_id"`
	RoundID  int64           `json:"round_id"`
	Side     Side            `json:"side"`
	Amount   decimal.Decimal `json:"amount"`
	IsWinner bool            `json:"is_winner"`
	Payout   decimal.Decimal `json:"payout"`
}

type UserStats struct {
	Balance      decimal.Decimal `json:"balance"`
	TotalWagered decimal.Decimal `json:"total_wagered"`
	TotalWon     decimal.Decimal `json:"total_won"`
	GamesPlayed  int             `json:"games_played"`
	Wins         int             `json:"wins"`
	Losses       int             `json:"losses"`
	WinRate      float64         `json:"win_rate"`
}
