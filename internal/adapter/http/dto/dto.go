package dto

import (
	"encoding/json"
	"time"

	"agent-wallet-bridge/internal/core/domain"
)

// TokenRequest is the client-credentials body for POST /auth/token.
type TokenRequest struct {
	ClientID     string `json:"client_id" binding:"required,safe_id,max=64"`
	ClientSecret string `json:"client_secret" binding:"required,max=256" sanitize:"-"`
}

// TokenResponse carries an issued bearer token.
type TokenResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// SubmitTaskRequest queues an account operation.
type SubmitTaskRequest struct {
	Kind    string          `json:"kind" binding:"required,oneof=create_account deposit_to_account withdraw_from_account"`
	UserID  string          `json:"user_id" binding:"required,safe_id,max=64"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// TaskResponse acknowledges a queued task.
type TaskResponse struct {
	TaskID     string `json:"task_id"`
	Kind       string `json:"kind"`
	EnqueuedAt string `json:"enqueued_at"`
}

// AdjustRequest is a manual staff adjustment. Amount is signed.
type AdjustRequest struct {
	Amount      string `json:"amount" binding:"required,money"`
	Description string `json:"description" binding:"required,max=255"`
}

// CreateWithdrawalRequest is the body for POST /withdrawals.
type CreateWithdrawalRequest struct {
	UserID   string `json:"user_id" binding:"required,safe_id,max=64"`
	Amount   string `json:"amount" binding:"required,money"`
	MethodID string `json:"method_id" binding:"required,safe_id,max=32"`
	Address  string `json:"address" binding:"required,max=255"`
}

// RefundRequest names the user asking to take back a withdrawal.
type RefundRequest struct {
	UserID string `json:"user_id" binding:"required,safe_id,max=64"`
}

// CreatePaymentRequest is the body for POST /payments.
type CreatePaymentRequest struct {
	UserID      string `json:"user_id" binding:"required,safe_id,max=64"`
	Amount      string `json:"amount" binding:"required,money"`
	MethodID    string `json:"method_id" binding:"required,safe_id,max=32"`
	ExternalRef string `json:"external_ref" binding:"max=255"`
}

// CreateCompensationRequest is the body for POST /compensations.
type CreateCompensationRequest struct {
	UserID string `json:"user_id" binding:"required,safe_id,max=64"`
}

// ModerationCallbackRequest is a staff button press relayed by the UI layer.
type ModerationCallbackRequest struct {
	ChatID    int64  `json:"chat_id" binding:"required"`
	MessageID int    `json:"message_id" binding:"required,gt=0"`
	Data      string `json:"data" binding:"required,max=128"`
	StaffID   string `json:"staff_id" binding:"required,max=64"`
}

// MessageQuery locates a request by its staff chat message.
type MessageQuery struct {
	ChatID    int64 `form:"chat_id" binding:"required"`
	MessageID int   `form:"message_id" binding:"required,gt=0"`
}

// Ref converts the query into a domain.MessageRef.
func (q MessageQuery) Ref() domain.MessageRef {
	return domain.MessageRef{ChatID: q.ChatID, MessageID: q.MessageID}
}

// BalanceResponse is the wallet balance of one user.
type BalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance string `json:"balance"`
}

// TransactionResponse is one ledger entry.
type TransactionResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

// TransactionListResponse wraps a user's recent ledger entries.
type TransactionListResponse struct {
	UserID string                `json:"user_id"`
	Items  []TransactionResponse `json:"items"`
}

// RequestResponse is the common view of a pending request of any kind.
type RequestResponse struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	UserID     string  `json:"user_id"`
	Amount     string  `json:"amount"`
	Commission string  `json:"commission,omitempty"`
	NetLoss    string  `json:"net_loss,omitempty"`
	MethodID   string  `json:"method_id,omitempty"`
	Status     string  `json:"status"`
	ChatID     int64   `json:"chat_id,omitempty"`
	MessageID  int     `json:"message_id,omitempty"`
	CreatedAt  string  `json:"created_at"`
	ResolvedAt *string `json:"resolved_at,omitempty"`
}

// ModerationResponse reports what a callback did.
type ModerationResponse struct {
	Kind      string `json:"kind"`
	Action    string `json:"action"`
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// FromTransactions maps ledger entries to their response form.
func FromTransactions(userID string, txs []domain.Transaction) TransactionListResponse {
	items := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		items = append(items, TransactionResponse{
			ID:          tx.ID.String(),
			Kind:        string(tx.Kind),
			Amount:      tx.Amount.StringFixed(domain.MoneyScale),
			Description: tx.Description,
			CreatedAt:   formatTime(tx.CreatedAt),
		})
	}
	return TransactionListResponse{UserID: userID, Items: items}
}

// FromWithdrawal maps a pending withdrawal.
func FromWithdrawal(w *domain.PendingWithdrawal) RequestResponse {
	return RequestResponse{
		ID:         w.ID,
		Kind:       string(domain.RequestKindWithdrawal),
		UserID:     w.UserID,
		Amount:     w.Amount.StringFixed(domain.MoneyScale),
		Commission: w.Commission.StringFixed(domain.MoneyScale),
		MethodID:   w.MethodID,
		Status:     string(w.Status),
		ChatID:     w.MessageRef.ChatID,
		MessageID:  w.MessageRef.MessageID,
		CreatedAt:  formatTime(w.CreatedAt),
		ResolvedAt: formatOptional(w.CompletedAt),
	}
}

// FromPayment maps a payment request.
func FromPayment(p *domain.PaymentRequest) RequestResponse {
	return RequestResponse{
		ID:         p.ID,
		Kind:       string(domain.RequestKindPayment),
		UserID:     p.UserID,
		Amount:     p.Amount.StringFixed(domain.MoneyScale),
		MethodID:   p.MethodID,
		Status:     string(p.Status),
		ChatID:     p.MessageRef.ChatID,
		MessageID:  p.MessageRef.MessageID,
		CreatedAt:  formatTime(p.CreatedAt),
		ResolvedAt: formatOptional(p.ResolvedAt),
	}
}

// FromCompensation maps a compensation request.
func FromCompensation(r *domain.CompensationRequest) RequestResponse {
	return RequestResponse{
		ID:         r.ID,
		Kind:       string(domain.RequestKindCompensation),
		UserID:     r.UserID,
		Amount:     r.Amount.StringFixed(domain.MoneyScale),
		NetLoss:    r.NetLoss.StringFixed(domain.MoneyScale),
		Status:     string(r.Status),
		ChatID:     r.MessageRef.ChatID,
		MessageID:  r.MessageRef.MessageID,
		CreatedAt:  formatTime(r.CreatedAt),
		ResolvedAt: formatOptional(r.ResolvedAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
