package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nardotini/pump-dump-server/internal/model"
)

const roundColumns = "id, uuid, round_number, status, betting_ends_at, " +
	"total_pot, pump_pot, dump_pot, participants_count, result, house_profit, ended_at"

func (l *Ledger) LastRoundNumber() (int64, error) {
	const op = "repository.Ledger.LastRoundNumber"

	const query = "SELECT COALESCE(MAX(round_number), 0) FROM rounds"

	row, err := l.db.PrepareAndQueryRow(query)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var number int64

	if err = row.Scan(&number); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return number, nil
}

func (l *Ledger) CreateRound(number int64, bettingEndsAt time.Time) (*model.Round, error) {
	const op = "repository.Ledger.CreateRound"

	now := time.Now()

	const query = "INSERT INTO rounds(uuid, round_number, status, betting_ends_at, created_at, updated_at) " +
		"VALUES(?, ?, ?, ?, ?, ?)"

	res, err := l.db.PrepareAndExecute(query,
		uuid.New().String(), number, model.StatusBetting, bettingEndsAt, now, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	round, err := l.RoundByID(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return round, nil
}

func (l *Ledger) RoundByID(id int64) (*model.Round, error) {
	const op = "repository.Ledger.RoundByID"

	const query = "SELECT " + roundColumns + " FROM rounds WHERE id = ?"

	row, err := l.db.PrepareAndQueryRow(query, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	round, err := scanRound(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return round, nil
}

// CloseBetting moves the round to revealing. The status predicate makes a
// repeated call a no-op; the returned snapshot carries the final pot figures
// either way.
func (l *Ledger) CloseBetting(id int64) (*model.Round, error) {
	const op = "repository.Ledger.CloseBetting"

	const query = "UPDATE rounds SET status = ?, updated_at = ? WHERE id = ? AND status = ?"

	_, err := l.db.PrepareAndExecute(query, model.StatusRevealing, time.Now(), id, model.StatusBetting)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	round, err := l.RoundByID(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return round, nil
}

// RefundOpenRounds voids rounds a previous run left in betting or revealing:
// every stake goes back to its owner and the round closes without a result,
// restoring the single-open-round invariant across restarts. Called once at
// startup, before the clock opens a new round.
func (l *Ledger) RefundOpenRounds() (int, error) {
	const op = "repository.Ledger.RefundOpenRounds"

	tx, err := l.db.StartTransaction(context.Background())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.Query("SELECT id FROM rounds WHERE status IN (?, ?) FOR UPDATE",
		model.StatusBetting, model.StatusRevealing)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var ids []int64

	for rows.Next() {
		var id int64

		if err = rows.Scan(&id); err != nil {
			rows.Close()

			return 0, fmt.Errorf("%s: %w", op, err)
		}

		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		rows.Close()

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	rows.Close()

	if len(ids) == 0 {
		return 0, nil
	}

	now := time.Now()

	for _, id := range ids {
		_, err = tx.Exec(
			"UPDATE users u JOIN bets b ON u.id = b.user_id "+
				"SET u.balance = u.balance + b.amount, u.total_wagered = u.total_wagered - b.amount, u.updated_at = ? "+
				"WHERE b.round_id = ?",
			now, id)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}

		_, err = tx.Exec(
			"UPDATE rounds SET status = ?, ended_at = ?, updated_at = ? WHERE id = ?",
			model.StatusCompleted, now, now, id)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return len(ids), nil
}

func (l *Ledger) RecentRounds(limit int) ([]model.Round, error) {
	const op = "repository.Ledger.RecentRounds"

	const query = "SELECT " + roundColumns + " FROM rounds WHERE status = ? " +
		"ORDER BY ended_at DESC LIMIT ?"

	rows, err := l.db.PrepareAndQuery(query, model.StatusCompleted, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var rounds []model.Round

	for rows.Next() {
		round, err := scanRound(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		rounds = append(rounds, *round)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rounds, nil
}

func scanRound(scan func(dest ...interface{}) error) (*model.Round, error) {
	var (
		round   model.Round
		uuidStr string
		result  sql.NullString
		endedAt sql.NullTime
	)

	err := scan(
		&round.ID,
		&uuidStr,
		&round.Number,
		&round.Status,
		&round.BettingEndsAt,
		&round.TotalPot,
		&round.PumpPot,
		&round.DumpPot,
		&round.Participants,
		&result,
		&round.HouseProfit,
		&endedAt)
	if err != nil {
		return nil, err
	}

	round.UUID, err = uuid.Parse(uuidStr)
	if err != nil {
		return nil, err
	}

	if result.Valid {
		side := model.Side(result.String)
		round.Result = &side
	}

	if endedAt.Valid {
		round.EndedAt = &endedAt.Time
	}

	return &round, nil
}
