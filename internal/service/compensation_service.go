package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/internal/metrics"
	"agent-wallet-bridge/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// lossKinds are the transfers whose net outflow counts as a loss.
var lossKinds = []domain.TransactionKind{domain.TxKindAccountDeposit, domain.TxKindAccountWithdraw}

// CompensationServiceImpl implements ports.CompensationService.
type CompensationServiceImpl struct {
	repo       ports.CompensationRepository
	txRepo     ports.TransactionRepository
	ledger     ports.LedgerService
	transactor ports.DBTransactor
	locker     ports.UserLocker
	rules      RequestRules
	announce   announcer
	now        func() time.Time
	log        zerolog.Logger
}

// NewCompensationService creates a new CompensationServiceImpl.
func NewCompensationService(
	repo ports.CompensationRepository,
	txRepo ports.TransactionRepository,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	locker ports.UserLocker,
	notifier ports.Notifier,
	rules RequestRules,
	log zerolog.Logger,
) *CompensationServiceImpl {
	return &CompensationServiceImpl{
		repo:       repo,
		txRepo:     txRepo,
		ledger:     ledger,
		transactor: transactor,
		locker:     locker,
		rules:      rules,
		announce:   announcer{notifier: notifier, ledger: ledger, log: log},
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// Create claims a share of the user's net loss since the later of the last
// claim and the start of the compensation window.
func (s *CompensationServiceImpl) Create(ctx context.Context, userID string) (*domain.CompensationRequest, error) {
	unlock := s.locker.Lock(userID)
	defer unlock()

	existing, err := s.repo.GetPendingByUser(ctx, userID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("check pending compensation: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrDuplicatePending(domain.RequestKindCompensation.Label())
	}

	now := s.now()
	netLoss, err := s.netLoss(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if !netLoss.IsPositive() {
		return nil, apperror.ErrNothingToCompensate()
	}

	amount := domain.PercentOf(netLoss, s.rules.CompensationPercent)
	if amount.LessThan(s.rules.MinCompensation) || !amount.IsPositive() {
		return nil, apperror.ErrBelowMinimum(money(s.rules.MinCompensation))
	}

	c := &domain.CompensationRequest{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		NetLoss:   netLoss,
		Status:    domain.RequestStatusPending,
		CreatedAt: now,
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.repo.Create(ctx, dbTx, c); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return nil, apperror.ErrDuplicatePending(domain.RequestKindCompensation.Label())
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create compensation: %w", err))
	}
	tracking := &domain.CompensationTracking{UserID: userID, LastCompensationLoss: netLoss, LastCompensationDate: now}
	if err := s.repo.UpsertTracking(ctx, dbTx, tracking); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("track compensation: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("compensation_id", c.ID).
		Str("user_id", userID).
		Str("net_loss", netLoss.String()).
		Str("amount", amount.String()).
		Msg("Compensation requested")

	text := fmt.Sprintf("Compensation claim\nUser: %s\nNet loss: %s\nCompensation: %s",
		userID, money(netLoss), money(amount))
	if ref, ok := s.announce.staffRequest(ctx, domain.RequestKindCompensation, c.ID, text,
		domain.ActionApprove, domain.ActionReject); ok {
		if err := s.repo.AttachMessage(ctx, c.ID, ref); err != nil {
			s.log.Warn().Err(err).Str("compensation_id", c.ID).Msg("Failed to attach staff message")
		} else {
			c.MessageRef = ref
		}
	}
	return c, nil
}

func (s *CompensationServiceImpl) netLoss(ctx context.Context, userID string, now time.Time) (decimal.Decimal, error) {
	since := now.Add(-s.rules.CompensationWindow)

	tracking, err := s.repo.GetTracking(ctx, userID)
	if err != nil {
		return decimal.Zero, apperror.ErrDatabaseError(fmt.Errorf("get compensation tracking: %w", err))
	}
	if tracking != nil && tracking.LastCompensationDate.After(since) {
		since = tracking.LastCompensationDate
	}

	// Deposits to the account are debits, so a net loss shows up as a negative sum.
	sum, err := s.txRepo.SumSince(ctx, userID, lossKinds, since)
	if err != nil {
		return decimal.Zero, apperror.ErrDatabaseError(fmt.Errorf("sum transfers: %w", err))
	}
	return sum.Neg(), nil
}

// Resolve approves (credits the wallet) or rejects a pending compensation.
// Tracking is kept either way, so rejected losses cannot be claimed again.
func (s *CompensationServiceImpl) Resolve(ctx context.Context, id string, outcome domain.RequestStatus) (*domain.CompensationRequest, error) {
	if outcome != domain.RequestStatusApproved && outcome != domain.RequestStatusRejected {
		return nil, apperror.Validation(fmt.Sprintf("compensation cannot be resolved as %q", outcome))
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get compensation: %w", err))
	}
	if current == nil {
		return nil, apperror.ErrNotFound("Compensation request")
	}
	if !domain.CanTransition(domain.RequestKindCompensation, current.Status, outcome) {
		return nil, apperror.ErrAlreadyProcessed()
	}

	unlock := s.locker.Lock(current.UserID)
	defer unlock()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	c, err := s.repo.Resolve(ctx, dbTx, id, outcome)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("resolve compensation: %w", err))
	}
	if c == nil {
		return nil, apperror.ErrAlreadyProcessed()
	}

	if outcome == domain.RequestStatusApproved {
		if _, err := s.ledger.AdjustInTx(ctx, dbTx, c.UserID, c.Amount,
			domain.TxKindCompensation, "Compensation "+c.ID); err != nil {
			return nil, passThrough(err, "credit compensation")
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	metrics.RequestsResolved.WithLabelValues(string(domain.RequestKindCompensation), string(outcome)).Inc()

	s.log.Info().
		Str("compensation_id", c.ID).
		Str("user_id", c.UserID).
		Str("status", string(c.Status)).
		Msg("Compensation resolved")

	s.announce.closeStaffMessage(ctx, c.MessageRef,
		fmt.Sprintf("Compensation %s for user %s (%s): %s", c.ID, c.UserID, money(c.Amount), c.Status))
	if outcome == domain.RequestStatusApproved {
		s.announce.user(ctx, c.UserID, fmt.Sprintf("Compensation of %s was credited.", money(c.Amount)))
	} else {
		s.announce.user(ctx, c.UserID, "Your compensation claim was declined.")
	}
	return c, nil
}

// LookupByMessage returns the still-pending compensation behind a staff message.
func (s *CompensationServiceImpl) LookupByMessage(ctx context.Context, ref domain.MessageRef) (*domain.CompensationRequest, error) {
	c, err := s.repo.GetPendingByMessage(ctx, ref)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lookup compensation: %w", err))
	}
	if c == nil {
		return nil, apperror.ErrNotFound("Compensation request")
	}
	return c, nil
}
