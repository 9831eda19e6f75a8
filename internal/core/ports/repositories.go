package ports

import (
	"context"
	"errors"
	"time"

	"agent-wallet-bridge/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrConflict is wrapped by repositories when an insert hits a unique constraint.
var ErrConflict = errors.New("conflicting row exists")

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WalletRepository persists wallet balances.
type WalletRepository interface {
	// Get returns the wallet, creating a zero-balance one if it does not exist.
	Get(ctx context.Context, ownerID string) (*domain.Wallet, error)
	// Adjust applies delta inside tx. applied is false when the result would be negative.
	Adjust(ctx context.Context, tx pgx.Tx, ownerID string, delta decimal.Decimal) (balance decimal.Decimal, applied bool, err error)
}

// TransactionRepository persists the append-only ledger.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Transaction, error)
	// SumSince totals the signed amounts of the given kinds created after since.
	SumSince(ctx context.Context, ownerID string, kinds []domain.TransactionKind, since time.Time) (decimal.Decimal, error)
}

// WithdrawalRepository persists pending withdrawals.
// Resolve returns nil, nil when the row is no longer pending.
type WithdrawalRepository interface {
	Create(ctx context.Context, tx pgx.Tx, w *domain.PendingWithdrawal) error
	GetByID(ctx context.Context, id string) (*domain.PendingWithdrawal, error)
	GetPendingByUser(ctx context.Context, userID string) (*domain.PendingWithdrawal, error)
	GetPendingByMessage(ctx context.Context, ref domain.MessageRef) (*domain.PendingWithdrawal, error)
	AttachMessage(ctx context.Context, id string, ref domain.MessageRef) error
	Resolve(ctx context.Context, tx pgx.Tx, id string, status domain.RequestStatus) (*domain.PendingWithdrawal, error)
}

// PaymentRepository persists payment requests.
type PaymentRepository interface {
	Create(ctx context.Context, p *domain.PaymentRequest) error
	GetByID(ctx context.Context, id string) (*domain.PaymentRequest, error)
	GetPendingByMessage(ctx context.Context, ref domain.MessageRef) (*domain.PaymentRequest, error)
	AttachMessage(ctx context.Context, id string, ref domain.MessageRef) error
	Resolve(ctx context.Context, tx pgx.Tx, id string, status domain.RequestStatus) (*domain.PaymentRequest, error)
}

// CompensationRepository persists compensation requests and loss tracking.
type CompensationRepository interface {
	Create(ctx context.Context, tx pgx.Tx, c *domain.CompensationRequest) error
	GetByID(ctx context.Context, id string) (*domain.CompensationRequest, error)
	GetPendingByUser(ctx context.Context, userID string) (*domain.CompensationRequest, error)
	GetPendingByMessage(ctx context.Context, ref domain.MessageRef) (*domain.CompensationRequest, error)
	AttachMessage(ctx context.Context, id string, ref domain.MessageRef) error
	Resolve(ctx context.Context, tx pgx.Tx, id string, status domain.RequestStatus) (*domain.CompensationRequest, error)
	GetTracking(ctx context.Context, userID string) (*domain.CompensationTracking, error)
	UpsertTracking(ctx context.Context, tx pgx.Tx, t *domain.CompensationTracking) error
}

// AccountRepository persists platform account links.
type AccountRepository interface {
	Create(ctx context.Context, a *domain.Account) error
	GetByUserID(ctx context.Context, userID string) (*domain.Account, error)
	SetExternalID(ctx context.Context, userID, externalID string) error
	ListUnresolved(ctx context.Context, limit int) ([]domain.Account, error)
}

// ReferralRepository reads referral links and moves referrer earnings.
type ReferralRepository interface {
	GetByUser(ctx context.Context, userID string) (*domain.Referral, error)
	AddEarnings(ctx context.Context, referrerID string, delta decimal.Decimal) (decimal.Decimal, error)
}

// LoyaltyRepository accumulates loyalty points.
type LoyaltyRepository interface {
	AddPoints(ctx context.Context, userID string, points int64) (int64, error)
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}
