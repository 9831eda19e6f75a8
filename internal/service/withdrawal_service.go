package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/internal/metrics"
	"agent-wallet-bridge/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WithdrawalServiceImpl implements ports.WithdrawalService.
// Funds leave the wallet when the request is created and come back on
// reject or refund.
type WithdrawalServiceImpl struct {
	repo       ports.WithdrawalRepository
	ledger     ports.LedgerService
	transactor ports.DBTransactor
	locker     ports.UserLocker
	rules      RequestRules
	announce   announcer
	log        zerolog.Logger
}

// NewWithdrawalService creates a new WithdrawalServiceImpl.
func NewWithdrawalService(
	repo ports.WithdrawalRepository,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	locker ports.UserLocker,
	notifier ports.Notifier,
	rules RequestRules,
	log zerolog.Logger,
) *WithdrawalServiceImpl {
	return &WithdrawalServiceImpl{
		repo:       repo,
		ledger:     ledger,
		transactor: transactor,
		locker:     locker,
		rules:      rules,
		announce:   announcer{notifier: notifier, ledger: ledger, log: log},
		log:        log,
	}
}

// Create debits the wallet, stores the pending withdrawal and posts it to staff.
func (s *WithdrawalServiceImpl) Create(ctx context.Context, req ports.CreateWithdrawalRequest) (*domain.PendingWithdrawal, error) {
	amount, err := validateAmount(req.Amount, s.rules.MinWithdrawal)
	if err != nil {
		return nil, err
	}
	method, ok := s.rules.method(req.MethodID)
	if !ok {
		return nil, apperror.ErrUnknownMethod(req.MethodID)
	}
	if strings.TrimSpace(req.Address) == "" {
		return nil, apperror.Validation("payout address is required")
	}

	unlock := s.locker.Lock(req.UserID)
	defer unlock()

	existing, err := s.repo.GetPendingByUser(ctx, req.UserID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("check pending withdrawal: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrDuplicatePending(domain.RequestKindWithdrawal.Label())
	}

	w := &domain.PendingWithdrawal{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		Amount:     amount,
		Commission: domain.PercentOf(amount, method.CommissionPercent),
		MethodID:   method.ID,
		Address:    strings.TrimSpace(req.Address),
		Status:     domain.RequestStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.repo.Create(ctx, dbTx, w); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return nil, apperror.ErrDuplicatePending(domain.RequestKindWithdrawal.Label())
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create withdrawal: %w", err))
	}

	if _, err := s.ledger.AdjustInTx(ctx, dbTx, w.UserID, amount.Neg(),
		domain.TxKindWithdrawalRequest, "Withdrawal request "+w.ID); err != nil {
		return nil, passThrough(err, "debit withdrawal")
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("withdrawal_id", w.ID).
		Str("user_id", w.UserID).
		Str("amount", w.Amount.String()).
		Str("method", w.MethodID).
		Msg("Withdrawal requested")

	text := fmt.Sprintf("Withdrawal request\nUser: %s\nAmount: %s\nCommission: %s\nPayout: %s\nMethod: %s\nAddress: %s",
		w.UserID, money(w.Amount), money(w.Commission), money(w.Payout()), method.Name, w.Address)
	if ref, ok := s.announce.staffRequest(ctx, domain.RequestKindWithdrawal, w.ID, text,
		domain.ActionComplete, domain.ActionReject); ok {
		if err := s.repo.AttachMessage(ctx, w.ID, ref); err != nil {
			s.log.Warn().Err(err).Str("withdrawal_id", w.ID).Msg("Failed to attach staff message")
		} else {
			w.MessageRef = ref
		}
	}
	s.announce.user(ctx, w.UserID, fmt.Sprintf("Withdrawal of %s is waiting for review.", money(w.Amount)))

	return w, nil
}

// Resolve completes or rejects a pending withdrawal. A rejected withdrawal
// returns the funds to the wallet.
func (s *WithdrawalServiceImpl) Resolve(ctx context.Context, id string, outcome domain.RequestStatus) (*domain.PendingWithdrawal, error) {
	if outcome != domain.RequestStatusCompleted && outcome != domain.RequestStatusRejected {
		return nil, apperror.Validation(fmt.Sprintf("withdrawal cannot be resolved as %q", outcome))
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(domain.RequestKindWithdrawal, current.Status, outcome) {
		return nil, apperror.ErrAlreadyProcessed()
	}

	unlock := s.locker.Lock(current.UserID)
	defer unlock()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	w, err := s.repo.Resolve(ctx, dbTx, id, outcome)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("resolve withdrawal: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrAlreadyProcessed()
	}

	if outcome == domain.RequestStatusRejected {
		if _, err := s.ledger.AdjustInTx(ctx, dbTx, w.UserID, w.Amount,
			domain.TxKindWithdrawalRejected, "Withdrawal rejected "+w.ID); err != nil {
			return nil, passThrough(err, "return rejected withdrawal")
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	metrics.RequestsResolved.WithLabelValues(string(domain.RequestKindWithdrawal), string(outcome)).Inc()

	s.log.Info().
		Str("withdrawal_id", w.ID).
		Str("user_id", w.UserID).
		Str("status", string(w.Status)).
		Msg("Withdrawal resolved")

	if outcome == domain.RequestStatusCompleted {
		s.announce.closeStaffMessage(ctx, w.MessageRef, fmt.Sprintf("Withdrawal %s for user %s: completed, paid %s",
			w.ID, w.UserID, money(w.Payout())))
		s.announce.user(ctx, w.UserID, fmt.Sprintf("Your withdrawal of %s has been sent.", money(w.Amount)))
	} else {
		s.announce.closeStaffMessage(ctx, w.MessageRef, fmt.Sprintf("Withdrawal %s for user %s: rejected", w.ID, w.UserID))
		s.announce.user(ctx, w.UserID, fmt.Sprintf("Your withdrawal of %s was rejected and the funds were returned.", money(w.Amount)))
	}
	return w, nil
}

// Refund cancels the user's own pending withdrawal and returns the funds.
func (s *WithdrawalServiceImpl) Refund(ctx context.Context, id, userID string) (*domain.PendingWithdrawal, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.UserID != userID {
		return nil, apperror.ErrNotFound("Withdrawal")
	}
	if err := refundable(current.Status); err != nil {
		return nil, err
	}

	unlock := s.locker.Lock(userID)
	defer unlock()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	w, err := s.repo.Resolve(ctx, dbTx, id, domain.RequestStatusRefunded)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("refund withdrawal: %w", err))
	}
	if w == nil {
		// Lost a race with staff or a second refund; report what won.
		if latest, err := s.repo.GetByID(ctx, id); err == nil && latest != nil {
			if err := refundable(latest.Status); err != nil {
				return nil, err
			}
		}
		return nil, apperror.ErrAlreadyProcessed()
	}

	balance, err := s.ledger.AdjustInTx(ctx, dbTx, w.UserID, w.Amount,
		domain.TxKindWithdrawalRefund, "Withdrawal refund "+w.ID)
	if err != nil {
		return nil, passThrough(err, "refund withdrawal")
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	metrics.RequestsResolved.WithLabelValues(string(domain.RequestKindWithdrawal), string(domain.RequestStatusRefunded)).Inc()

	s.log.Info().
		Str("withdrawal_id", w.ID).
		Str("user_id", w.UserID).
		Str("balance", balance.String()).
		Msg("Withdrawal refunded")

	s.announce.removeStaffMessage(ctx, w.MessageRef)
	s.announce.user(ctx, w.UserID, fmt.Sprintf("Withdrawal of %s cancelled, funds returned.", money(w.Amount)))
	return w, nil
}

// LookupByMessage returns the still-pending withdrawal behind a staff message.
func (s *WithdrawalServiceImpl) LookupByMessage(ctx context.Context, ref domain.MessageRef) (*domain.PendingWithdrawal, error) {
	w, err := s.repo.GetPendingByMessage(ctx, ref)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lookup withdrawal: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrNotFound("Withdrawal")
	}
	return w, nil
}

func (s *WithdrawalServiceImpl) load(ctx context.Context, id string) (*domain.PendingWithdrawal, error) {
	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get withdrawal: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrNotFound("Withdrawal")
	}
	return w, nil
}

func refundable(status domain.RequestStatus) error {
	switch status {
	case domain.RequestStatusPending:
		return nil
	case domain.RequestStatusRefunded:
		return apperror.ErrAlreadyRefunded()
	default:
		return apperror.ErrAlreadyProcessed()
	}
}
