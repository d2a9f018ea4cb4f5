package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"github.com/nardotini/pump-dump-server/internal/game"
	"github.com/nardotini/pump-dump-server/internal/lib/logger/sl"
	"github.com/nardotini/pump-dump-server/internal/model"
)

func (l *Ledger) UserBet(userID, roundID int64) (*model.Bet, error) {
	const op = "repository.Ledger.UserBet"

	const query = "SELECT id, user_id, round_id, side, amount, is_winner, payout " +
		"FROM bets WHERE user_id = ? AND round_id = ?"

	row, err := l.db.PrepareAndQueryRow(query, userID, roundID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	bet := &model.Bet{}

	err = row.Scan(&bet.ID, &bet.UserID, &bet.RoundID, &bet.Side, &bet.Amount, &bet.IsWinner, &bet.Payout)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bet, nil
}

// PlaceBet commits a bet in one transaction: the user and round rows are
// locked for the duration, so two concurrent bets can never both pass the
// balance check against a stale balance and the same user can never double
// bet. Any failed precondition rolls the whole transaction back with a typed
// rejection; no partial mutation is ever visible.
//
// On success it returns the bet and the round snapshot as of the commit.
func (l *Ledger) PlaceBet(userID, roundID int64, side model.Side, amount decimal.Decimal) (*model.Bet, *model.Round, error) {
	const op = "repository.Ledger.PlaceBet"

	if !side.Valid() {
		return nil, nil, game.ErrInvalidSide
	}

	if amount.LessThan(l.minBet) || amount.GreaterThan(l.maxBet) {
		return nil, nil, game.ErrAmountOutOfRange
	}

	tx, err := l.db.StartTransaction(context.Background())
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var balance decimal.Decimal

	err = tx.QueryRow("SELECT balance FROM users WHERE id = ? FOR UPDATE", userID).Scan(&balance)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	var (
		status        model.RoundStatus
		bettingEndsAt time.Time
		round         model.Round
	)

	err = tx.QueryRow(
		"SELECT id, round_number, status, betting_ends_at, total_pot, pump_pot, dump_pot, participants_count "+
			"FROM rounds WHERE id = ? FOR UPDATE", roundID).
		Scan(&round.ID, &round.Number, &status, &bettingEndsAt,
			&round.TotalPot, &round.PumpPot, &round.DumpPot, &round.Participants)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, game.ErrRoundNotOpen
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if status != model.StatusBetting || !time.Now().Before(bettingEndsAt) {
		return nil, nil, game.ErrRoundNotOpen
	}

	var existing int

	err = tx.QueryRow("SELECT COUNT(*) FROM bets WHERE user_id = ? AND round_id = ?", userID, roundID).
		Scan(&existing)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if existing > 0 {
		return nil, nil, game.ErrAlreadyBet
	}

	if balance.LessThan(amount) {
		return nil, nil, game.ErrInsufficientFunds
	}

	now := time.Now()

	_, err = tx.Exec(
		"UPDATE users SET balance = balance - ?, total_wagered = total_wagered + ?, updated_at = ? WHERE id = ?",
		amount, amount, now, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	res, err := tx.Exec(
		"INSERT INTO bets(user_id, round_id, side, amount, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?)",
		userID, roundID, side, amount, now, now)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == duplicateEntryCode {
			return nil, nil, game.ErrAlreadyBet
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	betID, err := res.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	potColumn := "pump_pot"
	if side == model.Dump {
		potColumn = "dump_pot"
	}

	_, err = tx.Exec(
		"UPDATE rounds SET total_pot = total_pot + ?, "+potColumn+" = "+potColumn+" + ?, "+
			"participants_count = participants_count + 1, updated_at = ? WHERE id = ?",
		amount, amount, now, roundID)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	bet := &model.Bet{
		ID:      betID,
		UserID:  userID,
		RoundID: roundID,
		Side:    side,
		Amount:  amount,
	}

	round.Status = status
	round.BettingEndsAt = bettingEndsAt
	round.TotalPot = round.TotalPot.Add(amount)
	round.Participants++

	if side == model.Pump {
		round.PumpPot = round.PumpPot.Add(amount)
	} else {
		round.DumpPot = round.DumpPot.Add(amount)
	}

	l.log.Info("bet committed",
		slog.String("op", op),
		slog.Int64("user_id", userID),
		slog.Int64("round_id", roundID),
		sl.String("side", string(side)),
		sl.Decimal("amount", amount))

	return bet, &round, nil
}

// SettleRound finishes a round in one transaction: the status flip from
// revealing to completed is the exactly-once guard, then winning bets are
// marked and paid and every participant's statistics are updated. A round
// that is already completed returns game.ErrRoundSettled with no mutation.
func (l *Ledger) SettleRound(roundID int64, result model.Side, multiplier, houseProfit decimal.Decimal) (int, error) {
	const op = "repository.Ledger.SettleRound"

	tx, err := l.db.StartTransaction(context.Background())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()

	res, err := tx.Exec(
		"UPDATE rounds SET status = ?, result = ?, house_profit = ?, ended_at = ?, updated_at = ? "+
			"WHERE id = ? AND status = ?",
		model.StatusCompleted, result, houseProfit, now, now, roundID, model.StatusRevealing)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if affected == 0 {
		return 0, game.ErrRoundSettled
	}

	res, err = tx.Exec(
		"UPDATE bets SET is_winner = TRUE, payout = amount * ?, updated_at = ? WHERE round_id = ? AND side = ?",
		multiplier, now, roundID, result)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	winners, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.Exec(
		"UPDATE users u JOIN bets b ON u.id = b.user_id "+
			"SET u.balance = u.balance + b.payout, u.total_won = u.total_won + b.payout, u.updated_at = ? "+
			"WHERE b.round_id = ? AND b.is_winner = TRUE",
		now, roundID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.Exec(
		"UPDATE users u JOIN bets b ON u.id = b.user_id "+
			"SET u.games_played = u.games_played + 1, "+
			"u.wins = u.wins + IF(b.is_winner, 1, 0), "+
			"u.losses = u.losses + IF(b.is_winner, 0, 1), "+
			"u.updated_at = ? "+
			"WHERE b.round_id = ?",
		now, roundID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return int(winners), nil
}
