package repository

import (
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	mysqlstorage "github.com/nardotini/pump-dump-server/internal/storage/mysql"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	ledger := NewLedger(mysqlstorage.New(db), discardLogger(), Limits{
		MinBet:          decimal.NewFromFloat(0.01),
		MaxBet:          decimal.NewFromInt(10),
		StartingBalance: decimal.NewFromInt(1),
	})

	return ledger, mock
}
