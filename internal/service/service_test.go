package service

import (
	"context"
	"io"
	"time"

	"agent-wallet-bridge/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// fakeTx satisfies pgx.Tx for services that only Commit and Rollback.
type fakeTx struct {
	pgx.Tx
	committed bool
	commitErr error
}

func (t *fakeTx) Commit(context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error { return nil }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testRules() RequestRules {
	return RequestRules{
		MinWithdrawal:       dec("10"),
		MinPayment:          dec("10"),
		MinCompensation:     dec("1"),
		CompensationPercent: dec("10"),
		CompensationWindow:  7 * 24 * time.Hour,
		Methods: []domain.PaymentMethod{
			{ID: "card", Name: "Card", CommissionPercent: dec("5")},
			{ID: "usdt", Name: "USDT", CommissionPercent: dec("0")},
		},
	}
}

// decEq matches a decimal.Decimal by value regardless of its exponent.
func decEq(s string) gomock.Matcher { return decMatcher{dec(s)} }

type decMatcher struct{ want decimal.Decimal }

func (m decMatcher) Matches(x any) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decMatcher) String() string { return "decimal equal to " + m.want.String() }
