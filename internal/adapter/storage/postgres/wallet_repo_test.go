package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestWalletRepo_Get_LazilyCreates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	now := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectExec("INSERT INTO wallets .+ ON CONFLICT \\(owner_id\\) DO NOTHING").
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT .+ FROM wallets WHERE owner_id").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"balance", "updated_at"}).AddRow("0.00", now))

	w, err := repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "u1", w.OwnerID)
	assert.True(t, w.Balance.IsZero())
	assert.Equal(t, now, w.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Get_InsertError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectExec("INSERT INTO wallets").
		WithArgs("u1").
		WillReturnError(errors.New("connection reset"))

	w, err := repo.Get(context.Background(), "u1")
	assert.Nil(t, w)
	assert.ErrorContains(t, err, "ensure wallet")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Adjust_Applied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO wallets .+ WHERE wallets.balance \\+ EXCLUDED.balance >= 0").
		WithArgs("u1", "-200").
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow("300.00"))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	balance, applied, err := repo.Adjust(context.Background(), tx, "u1", decimal.NewFromInt(-200))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, balance.Equal(decimal.NewFromInt(300)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Adjust_GuardRejects(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO wallets").
		WithArgs("u1", "-100").
		WillReturnRows(pgxmock.NewRows([]string{"balance"}))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	balance, applied, err := repo.Adjust(context.Background(), tx, "u1", decimal.NewFromInt(-100))
	require.NoError(t, err)
	assert.False(t, applied)
	assert.True(t, balance.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Adjust_NewWalletNegative(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO wallets").
		WithArgs("fresh", "-5").
		WillReturnError(&pgconn.PgError{Code: "23514", ConstraintName: "wallets_balance_check"})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	_, applied, err := repo.Adjust(context.Background(), tx, "fresh", decimal.NewFromInt(-5))
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Adjust_DBError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO wallets").
		WithArgs("u1", "10").
		WillReturnError(errors.New("deadlock detected"))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	_, applied, err := repo.Adjust(context.Background(), tx, "u1", decimal.NewFromInt(10))
	assert.False(t, applied)
	assert.ErrorContains(t, err, "adjust wallet")
	assert.NoError(t, mock.ExpectationsWereMet())
}
