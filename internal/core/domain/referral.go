package domain

import "github.com/shopspring/decimal"

// Referral links a user to whoever invited them.
type Referral struct {
	UserID     string `json:"user_id"`
	ReferrerID string `json:"referrer_id"`
}

// LoyaltyPointsFor returns floor(amount / unit); a non-positive unit awards nothing.
func LoyaltyPointsFor(amount, unit decimal.Decimal) int64 {
	if !unit.IsPositive() || !amount.IsPositive() {
		return 0
	}
	return amount.Div(unit).Floor().IntPart()
}
