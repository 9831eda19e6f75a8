package ports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"agent-wallet-bridge/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// --- Infrastructure ports ---

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// HashService handles secret hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// TokenService handles JWT token operations for API clients.
type TokenService interface {
	Generate(clientID string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	ClientID string
}

// CallbackGuard suppresses duplicate presses of the same moderation button.
type CallbackGuard interface {
	// Acquire returns true the first time key is seen within ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release forgets key so the same press can be retried.
	Release(ctx context.Context, key string) error
}

// UserLocker serializes ledger writers per user. Lock blocks until the
// user's lock is held and returns the matching unlock.
type UserLocker interface {
	Lock(userID string) (unlock func())
}

// TaskQueue is the operation queue. Dequeue returns nil, nil when nothing
// arrived within the backend's poll window.
type TaskQueue interface {
	Enqueue(ctx context.Context, task *domain.Task) error
	Dequeue(ctx context.Context) (*domain.Task, error)
	Len(ctx context.Context) (int64, error)
}

// Player is a player record on the agent platform.
type Player struct {
	ID       string
	Username string
	Balance  decimal.Decimal
}

// PlayerPage is one page of the platform player list.
type PlayerPage struct {
	Players []Player
	Total   int
}

// AgentClient is the authenticated session with the agent platform.
type AgentClient interface {
	ListPlayers(ctx context.Context, page, limit int) (*PlayerPage, error)
	GetPlayerBalance(ctx context.Context, playerID string) (decimal.Decimal, error)
	Deposit(ctx context.Context, playerID string, amount decimal.Decimal) error
	Withdraw(ctx context.Context, playerID string, amount decimal.Decimal) error
	RegisterPlayer(ctx context.Context, username, password string) error
	GetCashierBalance(ctx context.Context) (decimal.Decimal, error)
	Renew(ctx context.Context) error
}

// Button is an inline action attached to a staff message.
type Button struct {
	Text string
	Data string
}

// Notifier delivers messages to users and to the staff chat.
type Notifier interface {
	SendStaffRequest(ctx context.Context, text string, buttons []Button) (domain.MessageRef, error)
	EditMessage(ctx context.Context, ref domain.MessageRef, text string) error
	DeleteMessage(ctx context.Context, ref domain.MessageRef) error
	NotifyUser(ctx context.Context, userID string, text string) error
	NotifyStaff(ctx context.Context, text string) error
}

// ReferralHook moves referrer commission alongside account transfers.
type ReferralHook interface {
	CreditCommission(ctx context.Context, userID string, base decimal.Decimal) error
	DeductCommission(ctx context.Context, userID string, base decimal.Decimal) error
}

// LoyaltyHook awards points for account deposits.
type LoyaltyHook interface {
	AwardPoints(ctx context.Context, userID string, amount decimal.Decimal) error
}

// --- Service ports ---

// LedgerService owns the wallet balance and its paired transactions.
type LedgerService interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal, kind domain.TransactionKind, description string) (decimal.Decimal, error)
	// AdjustInTx applies delta and records the transaction inside an open tx.
	AdjustInTx(ctx context.Context, tx pgx.Tx, userID string, delta decimal.Decimal, kind domain.TransactionKind, description string) (decimal.Decimal, error)
	History(ctx context.Context, userID string, limit int) ([]domain.Transaction, error)
}

// CreateWithdrawalRequest holds validated input for a withdrawal.
type CreateWithdrawalRequest struct {
	UserID   string
	Amount   decimal.Decimal
	MethodID string
	Address  string
}

// WithdrawalService manages pending withdrawals.
type WithdrawalService interface {
	Create(ctx context.Context, req CreateWithdrawalRequest) (*domain.PendingWithdrawal, error)
	Resolve(ctx context.Context, id string, outcome domain.RequestStatus) (*domain.PendingWithdrawal, error)
	Refund(ctx context.Context, id, userID string) (*domain.PendingWithdrawal, error)
	LookupByMessage(ctx context.Context, ref domain.MessageRef) (*domain.PendingWithdrawal, error)
}

// CreatePaymentRequest holds validated input for a payment claim.
type CreatePaymentRequest struct {
	UserID      string
	Amount      decimal.Decimal
	MethodID    string
	ExternalRef string
}

// PaymentService manages payment requests.
type PaymentService interface {
	Create(ctx context.Context, req CreatePaymentRequest) (*domain.PaymentRequest, error)
	Resolve(ctx context.Context, id string, outcome domain.RequestStatus) (*domain.PaymentRequest, error)
	LookupByMessage(ctx context.Context, ref domain.MessageRef) (*domain.PaymentRequest, error)
}

// CompensationService manages compensation claims.
type CompensationService interface {
	Create(ctx context.Context, userID string) (*domain.CompensationRequest, error)
	Resolve(ctx context.Context, id string, outcome domain.RequestStatus) (*domain.CompensationRequest, error)
	LookupByMessage(ctx context.Context, ref domain.MessageRef) (*domain.CompensationRequest, error)
}

// ModerationCallback is a staff button press.
type ModerationCallback struct {
	Ref     domain.MessageRef
	Data    string
	StaffID string
}

// ModerationResult describes what a callback did.
type ModerationResult struct {
	Command   domain.ModerationCommand
	Status    domain.RequestStatus
	Duplicate bool
}

// ModerationService dispatches staff callbacks to the request services.
type ModerationService interface {
	Handle(ctx context.Context, cb ModerationCallback) (*ModerationResult, error)
}

// TaskHandler executes one queued task.
type TaskHandler func(ctx context.Context, task *domain.Task) error

// ErrUserNotified is joined to a task error once the handler has told the
// user what went wrong. The worker sends its generic notice otherwise.
var ErrUserNotified = errors.New("user already notified")

// OperationService submits and executes account operations.
type OperationService interface {
	Submit(ctx context.Context, kind domain.TaskKind, userID string, payload json.RawMessage) (*domain.Task, error)
	Handlers() map[domain.TaskKind]TaskHandler
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Checked  int
	Resolved int
}

// ReconcileService fills in missing platform player ids.
type ReconcileService interface {
	Run(ctx context.Context) (*ReconcileReport, error)
}

// AuthService issues API tokens to configured clients.
type AuthService interface {
	IssueToken(ctx context.Context, clientID, secret string) (string, time.Time, error)
}

// AuditService records audit entries without blocking the caller.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
