package game

import "errors"

// Bet rejection reasons surfaced to callers. The ledger returns these from
// inside the placement transaction so a rejected bet never leaves partial
// state behind.
var (
	ErrRoundNotOpen      = errors.New("round is not open for betting")
	ErrAlreadyBet        = errors.New("user already placed a bet this round")
	ErrAmountOutOfRange  = errors.New("bet amount is out of range")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrRoundSettled      = errors.New("round is already settled")
	ErrInvalidSide       = errors.New("invalid bet side")
)
