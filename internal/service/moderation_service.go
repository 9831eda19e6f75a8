package service

import (
	"context"
	"encoding/json"
	"time"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/internal/metrics"
	"agent-wallet-bridge/pkg/apperror"

	"github.com/rs/zerolog"
)

// moderationRoute resolves one request kind. The status it resolves into
// comes from the pressed action.
type moderationRoute struct {
	resolve func(ctx context.Context, id string, outcome domain.RequestStatus) (domain.RequestStatus, error)
	pending func(ctx context.Context, ref domain.MessageRef) (string, error)
}

// ModerationServiceImpl implements ports.ModerationService.
type ModerationServiceImpl struct {
	routes   map[string]moderationRoute
	guard    ports.CallbackGuard
	guardTTL time.Duration
	audit    ports.AuditService
	log      zerolog.Logger
}

// NewModerationService wires the staff button table to the request services.
func NewModerationService(
	withdrawals ports.WithdrawalService,
	payments ports.PaymentService,
	compensations ports.CompensationService,
	guard ports.CallbackGuard,
	guardTTL time.Duration,
	audit ports.AuditService,
	log zerolog.Logger,
) *ModerationServiceImpl {
	wdPending := func(ctx context.Context, ref domain.MessageRef) (string, error) {
		w, err := withdrawals.LookupByMessage(ctx, ref)
		if err != nil {
			return "", err
		}
		return w.ID, nil
	}
	payPending := func(ctx context.Context, ref domain.MessageRef) (string, error) {
		p, err := payments.LookupByMessage(ctx, ref)
		if err != nil {
			return "", err
		}
		return p.ID, nil
	}
	compPending := func(ctx context.Context, ref domain.MessageRef) (string, error) {
		c, err := compensations.LookupByMessage(ctx, ref)
		if err != nil {
			return "", err
		}
		return c.ID, nil
	}

	wd := moderationRoute{pending: wdPending, resolve: func(ctx context.Context, id string, outcome domain.RequestStatus) (domain.RequestStatus, error) {
		w, err := withdrawals.Resolve(ctx, id, outcome)
		if err != nil {
			return "", err
		}
		return w.Status, nil
	}}
	pay := moderationRoute{pending: payPending, resolve: func(ctx context.Context, id string, outcome domain.RequestStatus) (domain.RequestStatus, error) {
		p, err := payments.Resolve(ctx, id, outcome)
		if err != nil {
			return "", err
		}
		return p.Status, nil
	}}
	comp := moderationRoute{pending: compPending, resolve: func(ctx context.Context, id string, outcome domain.RequestStatus) (domain.RequestStatus, error) {
		c, err := compensations.Resolve(ctx, id, outcome)
		if err != nil {
			return "", err
		}
		return c.Status, nil
	}}

	return &ModerationServiceImpl{
		routes: map[string]moderationRoute{
			"wd:complete":  wd,
			"wd:reject":    wd,
			"pay:approve":  pay,
			"pay:reject":   pay,
			"comp:approve": comp,
			"comp:reject":  comp,
		},
		guard:    guard,
		guardTTL: guardTTL,
		audit:    audit,
		log:      log,
	}
}

// Handle decodes a staff button press and resolves the request it names.
// A press on a message whose request is no longer pending reports
// ErrAlreadyProcessed; a repeat press inside the guard window is a no-op.
func (s *ModerationServiceImpl) Handle(ctx context.Context, cb ports.ModerationCallback) (*ports.ModerationResult, error) {
	cmd, err := domain.ParseModerationCommand(cb.Data)
	if err != nil {
		return nil, apperror.ErrUnknownAction(cb.Data)
	}
	route, ok := s.routes[cmd.Route()]
	if !ok {
		return nil, apperror.ErrUnknownAction(cb.Data)
	}

	if !cb.Ref.IsZero() {
		id, err := route.pending(ctx, cb.Ref)
		if err != nil {
			if apperror.HasCode(err, apperror.CodeRequestNotFound) {
				return nil, apperror.ErrAlreadyProcessed()
			}
			return nil, err
		}
		if id != cmd.RequestID {
			return nil, apperror.ErrNotFound(cmd.Kind.Label())
		}
	}

	guardKey := "req:" + cmd.CallbackData()
	if !cb.Ref.IsZero() {
		guardKey = domain.BuildCallbackGuardKey(cb.Ref, cmd)
	}
	first, err := s.guard.Acquire(ctx, guardKey, s.guardTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("key", guardKey).Msg("Callback guard unavailable, relying on database check")
		first = true
	}
	if !first {
		metrics.DuplicateCallbacks.Inc()
		s.log.Info().Str("key", guardKey).Str("staff_id", cb.StaffID).Msg("Duplicate moderation press ignored")
		return &ports.ModerationResult{Command: cmd, Duplicate: true}, nil
	}

	status, err := route.resolve(ctx, cmd.RequestID, cmd.Action.Outcome())
	if err != nil {
		if !apperror.HasCode(err, apperror.CodeAlreadyProcessed) {
			if relErr := s.guard.Release(ctx, guardKey); relErr != nil {
				s.log.Warn().Err(relErr).Str("key", guardKey).Msg("Failed to release callback guard")
			}
		}
		return nil, err
	}

	details, _ := json.Marshal(map[string]string{
		"action":  string(cmd.Action),
		"status":  string(status),
		"message": cb.Ref.String(),
	})
	s.audit.Log(ctx, &domain.AuditLog{
		Actor:        "staff:" + cb.StaffID,
		Action:       domain.AuditActionModerate,
		ResourceType: cmd.Kind.Label(),
		ResourceID:   cmd.RequestID,
		Details:      string(details),
		CreatedAt:    time.Now().UTC(),
	})

	return &ports.ModerationResult{Command: cmd, Status: status}, nil
}
