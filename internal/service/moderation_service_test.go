package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/internal/core/ports/mocks"
	"agent-wallet-bridge/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type moderationFixture struct {
	svc           *ModerationServiceImpl
	withdrawals   *mocks.MockWithdrawalService
	payments      *mocks.MockPaymentService
	compensations *mocks.MockCompensationService
	guard         *mocks.MockCallbackGuard
	audit         *mocks.MockAuditService
}

func setupModeration(t *testing.T) *moderationFixture {
	ctrl := gomock.NewController(t)
	f := &moderationFixture{
		withdrawals:   mocks.NewMockWithdrawalService(ctrl),
		payments:      mocks.NewMockPaymentService(ctrl),
		compensations: mocks.NewMockCompensationService(ctrl),
		guard:         mocks.NewMockCallbackGuard(ctrl),
		audit:         mocks.NewMockAuditService(ctrl),
	}
	f.svc = NewModerationService(f.withdrawals, f.payments, f.compensations, f.guard, 30*time.Second, f.audit, newTestLogger())
	return f
}

var staffRef = domain.MessageRef{ChatID: -100, MessageID: 7}

func TestModerationService_Routes(t *testing.T) {
	tests := []struct {
		data   string
		expect func(f *moderationFixture)
		status domain.RequestStatus
	}{
		{
			data: "wd:complete:wd-1",
			expect: func(f *moderationFixture) {
				f.withdrawals.EXPECT().LookupByMessage(gomock.Any(), staffRef).Return(&domain.PendingWithdrawal{ID: "wd-1"}, nil)
				f.withdrawals.EXPECT().Resolve(gomock.Any(), "wd-1", domain.RequestStatusCompleted).
					Return(&domain.PendingWithdrawal{ID: "wd-1", Status: domain.RequestStatusCompleted}, nil)
			},
			status: domain.RequestStatusCompleted,
		},
		{
			data: "wd:reject:wd-1",
			expect: func(f *moderationFixture) {
				f.withdrawals.EXPECT().LookupByMessage(gomock.Any(), staffRef).Return(&domain.PendingWithdrawal{ID: "wd-1"}, nil)
				f.withdrawals.EXPECT().Resolve(gomock.Any(), "wd-1", domain.RequestStatusRejected).
					Return(&domain.PendingWithdrawal{ID: "wd-1", Status: domain.RequestStatusRejected}, nil)
			},
			status: domain.RequestStatusRejected,
		},
		{
			data: "pay:approve:pay-1",
			expect: func(f *moderationFixture) {
				f.payments.EXPECT().LookupByMessage(gomock.Any(), staffRef).Return(&domain.PaymentRequest{ID: "pay-1"}, nil)
				f.payments.EXPECT().Resolve(gomock.Any(), "pay-1", domain.RequestStatusApproved).
					Return(&domain.PaymentRequest{ID: "pay-1", Status: domain.RequestStatusApproved}, nil)
			},
			status: domain.RequestStatusApproved,
		},
		{
			data: "comp:reject:c-1",
			expect: func(f *moderationFixture) {
				f.compensations.EXPECT().LookupByMessage(gomock.Any(), staffRef).Return(&domain.CompensationRequest{ID: "c-1"}, nil)
				f.compensations.EXPECT().Resolve(gomock.Any(), "c-1", domain.RequestStatusRejected).
					Return(&domain.CompensationRequest{ID: "c-1", Status: domain.RequestStatusRejected}, nil)
			},
			status: domain.RequestStatusRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			f := setupModeration(t)
			tt.expect(f)
			f.guard.EXPECT().Acquire(gomock.Any(), gomock.Any(), 30*time.Second).Return(true, nil)
			f.audit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, entry *domain.AuditLog) {
				assert.Equal(t, "staff:42", entry.Actor)
				assert.Equal(t, domain.AuditActionModerate, entry.Action)
			})

			res, err := f.svc.Handle(context.Background(), ports.ModerationCallback{Ref: staffRef, Data: tt.data, StaffID: "42"})
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.False(t, res.Duplicate)
		})
	}
}

func TestModerationService_UnknownAction(t *testing.T) {
	f := setupModeration(t)
	ctx := context.Background()

	for _, data := range []string{"garbage", "wd:approve:wd-1", "refund:complete:x", "wd:complete:"} {
		_, err := f.svc.Handle(ctx, ports.ModerationCallback{Ref: staffRef, Data: data})
		assert.True(t, apperror.HasCode(err, apperror.CodeUnknownAction), data)
	}
}

func TestModerationService_DuplicatePress(t *testing.T) {
	f := setupModeration(t)
	ctx := context.Background()

	f.withdrawals.EXPECT().LookupByMessage(ctx, staffRef).Return(&domain.PendingWithdrawal{ID: "wd-1"}, nil)
	f.guard.EXPECT().Acquire(ctx, "-100:7:wd:complete", 30*time.Second).Return(false, nil)

	res, err := f.svc.Handle(ctx, ports.ModerationCallback{Ref: staffRef, Data: "wd:complete:wd-1"})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
}

func TestModerationService_StaleMessage(t *testing.T) {
	f := setupModeration(t)
	ctx := context.Background()

	f.withdrawals.EXPECT().LookupByMessage(ctx, staffRef).Return(nil, apperror.ErrNotFound("Withdrawal"))

	_, err := f.svc.Handle(ctx, ports.ModerationCallback{Ref: staffRef, Data: "wd:complete:wd-1"})
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyProcessed))
}

func TestModerationService_MismatchedRequest(t *testing.T) {
	f := setupModeration(t)
	ctx := context.Background()

	f.payments.EXPECT().LookupByMessage(ctx, staffRef).Return(&domain.PaymentRequest{ID: "pay-2"}, nil)

	_, err := f.svc.Handle(ctx, ports.ModerationCallback{Ref: staffRef, Data: "pay:approve:pay-1"})
	assert.True(t, apperror.HasCode(err, apperror.CodeRequestNotFound))
}

func TestModerationService_GuardDownFallsBackToResolve(t *testing.T) {
	f := setupModeration(t)
	ctx := context.Background()

	f.guard.EXPECT().Acquire(ctx, "req:wd:complete:wd-1", 30*time.Second).Return(false, errors.New("redis down"))
	f.withdrawals.EXPECT().Resolve(ctx, "wd-1", domain.RequestStatusCompleted).Return(nil, apperror.ErrAlreadyProcessed())

	// Zero ref skips the message lookup and uses the request-scoped key.
	_, err := f.svc.Handle(ctx, ports.ModerationCallback{Data: "wd:complete:wd-1"})
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyProcessed))
}

func TestModerationService_FailedResolveAllowsRetry(t *testing.T) {
	f := setupModeration(t)
	ctx := context.Background()
	key := "-100:7:pay:approve"
	cb := ports.ModerationCallback{Ref: staffRef, StaffID: "9", Data: "pay:approve:pay-1"}

	f.payments.EXPECT().LookupByMessage(ctx, staffRef).Return(&domain.PaymentRequest{ID: "pay-1"}, nil).Times(2)
	gomock.InOrder(
		f.guard.EXPECT().Acquire(ctx, key, 30*time.Second).Return(true, nil),
		f.payments.EXPECT().Resolve(ctx, "pay-1", domain.RequestStatusApproved).
			Return(nil, apperror.ErrDatabaseError(errors.New("conn reset"))),
		f.guard.EXPECT().Release(ctx, key).Return(nil),
		f.guard.EXPECT().Acquire(ctx, key, 30*time.Second).Return(true, nil),
		f.payments.EXPECT().Resolve(ctx, "pay-1", domain.RequestStatusApproved).
			Return(&domain.PaymentRequest{ID: "pay-1", Status: domain.RequestStatusApproved}, nil),
	)
	f.audit.EXPECT().Log(gomock.Any(), gomock.Any())

	_, err := f.svc.Handle(ctx, cb)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "SYS_001", appErr.Code)

	res, err := f.svc.Handle(ctx, cb)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, domain.RequestStatusApproved, res.Status)
}

func TestModerationService_AlreadyProcessedKeepsGuard(t *testing.T) {
	f := setupModeration(t)
	ctx := context.Background()

	f.compensations.EXPECT().LookupByMessage(ctx, staffRef).Return(&domain.CompensationRequest{ID: "c-1"}, nil)
	f.guard.EXPECT().Acquire(ctx, "-100:7:comp:reject", 30*time.Second).Return(true, nil)
	f.compensations.EXPECT().Resolve(ctx, "c-1", domain.RequestStatusRejected).Return(nil, apperror.ErrAlreadyProcessed())

	_, err := f.svc.Handle(ctx, ports.ModerationCallback{Ref: staffRef, Data: "comp:reject:c-1"})
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyProcessed))
}
