package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RequestKind identifies a staff-moderated request type. The values double
// as the prefix of moderation callback data.
type RequestKind string

const (
	RequestKindWithdrawal   RequestKind = "wd"
	RequestKindPayment      RequestKind = "pay"
	RequestKindCompensation RequestKind = "comp"
)

// Label is the human-readable name used in errors and logs.
func (k RequestKind) Label() string {
	switch k {
	case RequestKindWithdrawal:
		return "withdrawal"
	case RequestKindPayment:
		return "payment"
	case RequestKindCompensation:
		return "compensation"
	}
	return string(k)
}

// RequestStatus is shared by all pending request types.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusRefunded  RequestStatus = "refunded"
)

// IsTerminal reports whether no further transition is possible.
func (s RequestStatus) IsTerminal() bool {
	return s != RequestStatusPending
}

// CanTransition reports whether a request of the given kind may move from -> to.
// Only pending requests move; refunded exists for withdrawals only.
func CanTransition(kind RequestKind, from, to RequestStatus) bool {
	if from != RequestStatusPending {
		return false
	}
	switch kind {
	case RequestKindWithdrawal:
		return to == RequestStatusCompleted || to == RequestStatusRejected || to == RequestStatusRefunded
	case RequestKindPayment, RequestKindCompensation:
		return to == RequestStatusApproved || to == RequestStatusRejected
	}
	return false
}

// MessageRef locates a staff chat message. The zero value means not attached.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// IsZero reports whether no message is attached.
func (m MessageRef) IsZero() bool {
	return m.ChatID == 0 && m.MessageID == 0
}

func (m MessageRef) String() string {
	return fmt.Sprintf("%d/%d", m.ChatID, m.MessageID)
}

// PendingWithdrawal is a user's request to cash out wallet funds.
// Funds are debited when the request is created.
type PendingWithdrawal struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Commission  decimal.Decimal `json:"commission"`
	MethodID    string          `json:"method_id"`
	Address     string          `json:"address"`
	Status      RequestStatus   `json:"status"`
	MessageRef  MessageRef      `json:"message_ref"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Payout is what staff actually send: amount minus commission.
func (w *PendingWithdrawal) Payout() decimal.Decimal {
	return w.Amount.Sub(w.Commission)
}

// PaymentRequest is a user's top-up claim awaiting staff confirmation.
type PaymentRequest struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	MethodID    string          `json:"method_id"`
	ExternalRef string          `json:"external_ref"`
	Status      RequestStatus   `json:"status"`
	MessageRef  MessageRef      `json:"message_ref"`
	CreatedAt   time.Time       `json:"created_at"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
}

// CompensationRequest is a claim for a partial refund of recent net losses.
type CompensationRequest struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	NetLoss    decimal.Decimal `json:"net_loss"`
	Status     RequestStatus   `json:"status"`
	MessageRef MessageRef      `json:"message_ref"`
	CreatedAt  time.Time       `json:"created_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}

// CompensationTracking remembers the last compensated loss so the same
// losses are never claimed twice.
type CompensationTracking struct {
	UserID               string          `json:"user_id"`
	LastCompensationLoss decimal.Decimal `json:"last_compensation_loss"`
	LastCompensationDate time.Time       `json:"last_compensation_date"`
}

// PaymentMethod is a configured withdrawal/payment channel.
type PaymentMethod struct {
	ID                string
	Name              string
	CommissionPercent decimal.Decimal
}
