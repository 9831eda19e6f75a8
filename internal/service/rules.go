package service

import (
	"time"

	"agent-wallet-bridge/config"
	"agent-wallet-bridge/internal/core/domain"

	"github.com/shopspring/decimal"
)

// RequestRules are the money rules for moderated requests.
type RequestRules struct {
	MinWithdrawal       decimal.Decimal
	MinPayment          decimal.Decimal
	MinCompensation     decimal.Decimal
	CompensationPercent decimal.Decimal
	CompensationWindow  time.Duration
	Methods             []domain.PaymentMethod
}

func (r RequestRules) method(id string) (domain.PaymentMethod, bool) {
	for _, m := range r.Methods {
		if m.ID == id {
			return m, true
		}
	}
	return domain.PaymentMethod{}, false
}

// RulesFromConfig converts validated wallet config into RequestRules.
func RulesFromConfig(cfg config.WalletConfig) RequestRules {
	methods := make([]domain.PaymentMethod, 0, len(cfg.Methods))
	for _, m := range cfg.Methods {
		methods = append(methods, domain.PaymentMethod{
			ID:                m.ID,
			Name:              m.Name,
			CommissionPercent: config.Dec(m.CommissionPercent),
		})
	}
	return RequestRules{
		MinWithdrawal:       config.Dec(cfg.MinWithdrawal),
		MinPayment:          config.Dec(cfg.MinPayment),
		MinCompensation:     config.Dec(cfg.MinCompensation),
		CompensationPercent: config.Dec(cfg.CompensationPercent),
		CompensationWindow:  cfg.CompensationWindow,
		Methods:             methods,
	}
}
