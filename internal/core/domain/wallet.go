package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places money is stored with.
const MoneyScale = 2

// Wallet is a user's local balance. It is created lazily on first read
// and only ever changes through a guarded delta adjustment.
type Wallet struct {
	OwnerID   string          `json:"owner_id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Covers reports whether the balance can absorb a debit of amount.
func (w *Wallet) Covers(amount decimal.Decimal) bool {
	return w.Balance.GreaterThanOrEqual(amount)
}

// RoundMoney rounds to the storage scale.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// PercentOf returns pct percent of base, rounded to the storage scale.
func PercentOf(base, pct decimal.Decimal) decimal.Decimal {
	return RoundMoney(base.Mul(pct).Div(decimal.NewFromInt(100)))
}
