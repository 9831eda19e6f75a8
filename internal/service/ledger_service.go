package service

import (
	"context"
	"fmt"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// LedgerServiceImpl implements ports.LedgerService. Every balance change is
// written together with its transaction in one database transaction.
// Callers that read a balance and then act on it hold the user's lock.
type LedgerServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		transactor: transactor,
		log:        log,
	}
}

// GetBalance returns the user's balance; unknown users have a zero wallet.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	wallet, err := s.walletRepo.Get(ctx, userID)
	if err != nil {
		return decimal.Zero, apperror.ErrDatabaseError(fmt.Errorf("get wallet: %w", err))
	}
	return wallet.Balance, nil
}

// AdjustBalance applies delta in its own database transaction and returns the new balance.
func (s *LedgerServiceImpl) AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal, kind domain.TransactionKind, description string) (decimal.Decimal, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return decimal.Zero, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	balance, err := s.AdjustInTx(ctx, dbTx, userID, delta, kind, description)
	if err != nil {
		return decimal.Zero, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return decimal.Zero, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("user_id", userID).
		Str("kind", string(kind)).
		Str("delta", domain.RoundMoney(delta).String()).
		Str("balance", balance.String()).
		Msg("Wallet adjusted")
	return balance, nil
}

// AdjustInTx applies delta and appends the paired transaction inside tx.
// A debit that would take the balance below zero changes nothing and
// returns ErrInsufficientFunds.
func (s *LedgerServiceImpl) AdjustInTx(ctx context.Context, tx pgx.Tx, userID string, delta decimal.Decimal, kind domain.TransactionKind, description string) (decimal.Decimal, error) {
	delta = domain.RoundMoney(delta)
	if delta.IsZero() {
		return decimal.Zero, apperror.ErrInvalidAmount()
	}
	if !kind.Valid() {
		return decimal.Zero, apperror.Validation(fmt.Sprintf("unknown transaction kind %q", kind))
	}

	balance, applied, err := s.walletRepo.Adjust(ctx, tx, userID, delta)
	if err != nil {
		return decimal.Zero, apperror.ErrDatabaseError(fmt.Errorf("adjust wallet: %w", err))
	}
	if !applied {
		return decimal.Zero, apperror.ErrInsufficientFunds()
	}

	if err := s.txRepo.Create(ctx, tx, domain.NewTransaction(userID, kind, delta, description)); err != nil {
		return decimal.Zero, apperror.ErrDatabaseError(fmt.Errorf("record transaction: %w", err))
	}

	s.log.Debug().
		Str("user_id", userID).
		Str("kind", string(kind)).
		Str("delta", delta.String()).
		Str("balance", balance.String()).
		Msg("Wallet adjustment staged")
	return balance, nil
}

// History returns the user's transactions, newest first.
func (s *LedgerServiceImpl) History(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	txs, err := s.txRepo.ListByOwner(ctx, userID, limit)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list transactions: %w", err))
	}
	return txs, nil
}
