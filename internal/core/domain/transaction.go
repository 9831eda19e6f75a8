package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionKind classifies a ledger entry.
type TransactionKind string

const (
	TxKindAccountDeposit     TransactionKind = "account_deposit"
	TxKindAccountWithdraw    TransactionKind = "account_withdraw"
	TxKindWithdrawalRequest  TransactionKind = "withdrawal_request"
	TxKindWithdrawalRefund   TransactionKind = "withdrawal_refund"
	TxKindWithdrawalRejected TransactionKind = "withdrawal_rejected"
	TxKindPaymentApproved    TransactionKind = "payment_approved"
	TxKindCompensation       TransactionKind = "compensation"
	TxKindManualAdjustment   TransactionKind = "manual_adjustment"
)

// Valid reports whether k is a known kind.
func (k TransactionKind) Valid() bool {
	switch k {
	case TxKindAccountDeposit, TxKindAccountWithdraw, TxKindWithdrawalRequest,
		TxKindWithdrawalRefund, TxKindWithdrawalRejected, TxKindPaymentApproved,
		TxKindCompensation, TxKindManualAdjustment:
		return true
	}
	return false
}

// Transaction is an append-only ledger entry. Amount is signed: credits are
// positive, debits negative.
type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Kind        TransactionKind `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewTransaction builds an entry stamped with a fresh id and the current time.
func NewTransaction(ownerID string, kind TransactionKind, amount decimal.Decimal, description string) *Transaction {
	return &Transaction{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Kind:        kind,
		Amount:      RoundMoney(amount),
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}
