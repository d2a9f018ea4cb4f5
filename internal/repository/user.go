package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/nardotini/pump-dump-server/internal/model"
)

const duplicateEntryCode = 1062

// GetOrCreateUser returns the user for a stable external key, creating it
// with the starting balance on first contact. Concurrent first contact from
// the same key is resolved by the unique index on user_key: the loser of the
// insert race re-reads the winner's row.
func (l *Ledger) GetOrCreateUser(key string) (*model.User, error) {
	const op = "repository.Ledger.GetOrCreateUser"

	user, err := l.userByKey(key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if user != nil {
		return user, nil
	}

	now := time.Now()

	const query = "INSERT INTO users(user_key, balance, created_at, updated_at) VALUES(?, ?, ?, ?)"

	_, err = l.db.PrepareAndExecute(query, key, l.startingBalance, now, now)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if !errors.As(err, &mysqlErr) || mysqlErr.Number != duplicateEntryCode {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	user, err = l.userByKey(key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%s: user missing after insert", op)
	}

	return user, nil
}

func (l *Ledger) userByKey(key string) (*model.User, error) {
	const query = "SELECT id, user_key, balance, total_wagered, total_won, games_played, wins, losses " +
		"FROM users WHERE user_key = ?"

	row, err := l.db.PrepareAndQueryRow(query, key)
	if err != nil {
		return nil, err
	}

	user := &model.User{}

	err = row.Scan(
		&user.ID,
		&user.Key,
		&user.Balance,
		&user.TotalWagered,
		&user.TotalWon,
		&user.GamesPlayed,
		&user.Wins,
		&user.Losses)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return user, nil
}

func (l *Ledger) UserStats(key string) (*model.UserStats, error) {
	const op = "repository.Ledger.UserStats"

	user, err := l.GetOrCreateUser(key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	stats := &model.UserStats{
		Balance:      user.Balance,
		TotalWagered: user.TotalWagered,
		TotalWon:     user.TotalWon,
		GamesPlayed:  user.GamesPlayed,
		Wins:         user.Wins,
		Losses:       user.Losses,
	}

	if user.GamesPlayed > 0 {
		stats.WinRate = float64(user.Wins) / float64(user.GamesPlayed) * 100
	}

	return stats, nil
}
