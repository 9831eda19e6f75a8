package service

import (
	"errors"
	"fmt"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/pkg/apperror"

	"github.com/shopspring/decimal"
)

// passThrough keeps AppErrors as they are and wraps anything else as an
// internal error tagged with op.
func passThrough(err error, op string) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.InternalError(fmt.Errorf("%s: %w", op, err))
}

// notified tags a task error the handler has already explained to the user.
func notified(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(err, ports.ErrUserNotified)
}

// validateAmount rounds amount to money scale and checks it against min.
func validateAmount(amount, min decimal.Decimal) (decimal.Decimal, error) {
	amount = domain.RoundMoney(amount)
	if !amount.IsPositive() {
		return amount, apperror.ErrInvalidAmount()
	}
	if amount.LessThan(min) {
		return amount, apperror.ErrBelowMinimum(money(min))
	}
	return amount, nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(domain.MoneyScale)
}
