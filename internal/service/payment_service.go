package service

import (
	"context"
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

// PaymentServiceImpl implements ports.PaymentService. A payment claim never
// touches the wallet until staff approve it.
type PaymentServiceImpl struct {
	repo       ports.PaymentRepository
	ledger     ports.LedgerService
	transactor ports.DBTransactor
	locker     ports.UserLocker
	rules      RequestRules
	announce   announcer
	log        zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(
	repo ports.PaymentRepository,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	locker ports.UserLocker,
	notifier ports.Notifier,
	rules RequestRules,
	log zerolog.Logger,
) *PaymentServiceImpl {
	return &PaymentServiceImpl{
		repo:       repo,
		ledger:     ledger,
		transactor: transactor,
		locker:     locker,
		rules:      rules,
		announce:   announcer{notifier: notifier, ledger: ledger, log: log},
		log:        log,
	}
}

// Create stores a pending payment claim and posts it to staff.
func (s *PaymentServiceImpl) Create(ctx context.Context, req ports.CreatePaymentRequest) (*domain.PaymentRequest, error) {
	amount, err := validateAmount(req.Amount, s.rules.MinPayment)
	if err != nil {
		return nil, err
	}
	method, ok := s.rules.method(req.MethodID)
	if !ok {
		return nil, apperror.ErrUnknownMethod(req.MethodID)
	}

	p := &domain.PaymentRequest{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Amount:      amount,
		MethodID:    method.ID,
		ExternalRef: strings.TrimSpace(req.ExternalRef),
		Status:      domain.RequestStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create payment request: %w", err))
	}

	s.log.Info().
		Str("payment_id", p.ID).
		Str("user_id", p.UserID).
		Str("amount", p.Amount.String()).
		Msg("Payment requested")

	text := fmt.Sprintf("Payment claim\nUser: %s\nAmount: %s\nMethod: %s\nReference: %s",
		p.UserID, money(p.Amount), method.Name, p.ExternalRef)
	if ref, ok := s.announce.staffRequest(ctx, domain.RequestKindPayment, p.ID, text,
		domain.ActionApprove, domain.ActionReject); ok {
		if err := s.repo.AttachMessage(ctx, p.ID, ref); err != nil {
			s.log.Warn().Err(err).Str("payment_id", p.ID).Msg("Failed to attach staff message")
		} else {
			p.MessageRef = ref
		}
	}
	return p, nil
}

// Resolve approves (credits the wallet) or rejects a pending payment.
func (s *PaymentServiceImpl) Resolve(ctx context.Context, id string, outcome domain.RequestStatus) (*domain.PaymentRequest, error) {
	if outcome != domain.RequestStatusApproved && outcome != domain.RequestStatusRejected {
		return nil, apperror.Validation(fmt.Sprintf("payment cannot be resolved as %q", outcome))
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment request: %w", err))
	}
	if current == nil {
		return nil, apperror.ErrNotFound("Payment request")
	}
	if !domain.CanTransition(domain.RequestKindPayment, current.Status, outcome) {
		return nil, apperror.ErrAlreadyProcessed()
	}

	unlock := s.locker.Lock(current.UserID)
	defer unlock()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	p, err := s.repo.Resolve(ctx, dbTx, id, outcome)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("resolve payment request: %w", err))
	}
	if p == nil {
		return nil, apperror.ErrAlreadyProcessed()
	}

	if outcome == domain.RequestStatusApproved {
		if _, err := s.ledger.AdjustInTx(ctx, dbTx, p.UserID, p.Amount,
			domain.TxKindPaymentApproved, "Payment approved "+p.ID); err != nil {
			return nil, passThrough(err, "credit payment")
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	metrics.RequestsResolved.WithLabelValues(string(domain.RequestKindPayment), string(outcome)).Inc()

	s.log.Info().
		Str("payment_id", p.ID).
		Str("user_id", p.UserID).
		Str("status", string(p.Status)).
		Msg("Payment resolved")

	s.announce.closeStaffMessage(ctx, p.MessageRef,
		fmt.Sprintf("Payment %s for user %s (%s): %s", p.ID, p.UserID, money(p.Amount), p.Status))
	if outcome == domain.RequestStatusApproved {
		s.announce.user(ctx, p.UserID, fmt.Sprintf("Your payment of %s was credited.", money(p.Amount)))
	} else {
		s.announce.user(ctx, p.UserID, fmt.Sprintf("Your payment of %s was not confirmed.", money(p.Amount)))
	}
	return p, nil
}

// LookupByMessage returns the still-pending payment behind a staff message.
func (s *PaymentServiceImpl) LookupByMessage(ctx context.Context, ref domain.MessageRef) (*domain.PaymentRequest, error) {
	p, err := s.repo.GetPendingByMessage(ctx, ref)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lookup payment request: %w", err))
	}
	if p == nil {
		return nil, apperror.ErrNotFound("Payment request")
	}
	return p, nil
}
