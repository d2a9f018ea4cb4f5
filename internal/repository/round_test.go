package repository

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nardotini/pump-dump-server/internal/model"
)

const (
	selectOpenRoundsQuery = "SELECT id FROM rounds WHERE status IN (?, ?) FOR UPDATE"
	refundStakesQuery     = "UPDATE users u JOIN bets b ON u.id = b.user_id " +
		"SET u.balance = u.balance + b.amount, u.total_wagered = u.total_wagered - b.amount, u.updated_at = ? " +
		"WHERE b.round_id = ?"
	voidRoundQuery = "UPDATE rounds SET status = ?, ended_at = ?, updated_at = ? WHERE id = ?"
)

func TestRefundOpenRoundsVoidsAndRefunds(t *testing.T) {
	t.Parallel()

	ledger, mock := newTestLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectOpenRoundsQuery)).
		WithArgs(string(model.StatusBetting), string(model.StatusRevealing)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectExec(regexp.QuoteMeta(refundStakesQuery)).
		WithArgs(sqlmock.AnyArg(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(voidRoundQuery)).
		WithArgs("completed", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	refunded, err := ledger.RefundOpenRounds()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if refunded != 1 {
		t.Errorf("unexpected refunded count, want: 1, got: %d", refunded)
	}

	if err = mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRefundOpenRoundsNothingOpen(t *testing.T) {
	t.Parallel()

	ledger, mock := newTestLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectOpenRoundsQuery)).
		WithArgs(string(model.StatusBetting), string(model.StatusRevealing)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	refunded, err := ledger.RefundOpenRounds()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if refunded != 0 {
		t.Errorf("unexpected refunded count, want: 0, got: %d", refunded)
	}

	if err = mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
