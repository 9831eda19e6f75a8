package service

import (
	"context"
	"testing"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/internal/core/ports/mocks"
	"agent-wallet-bridge/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupPayment(t *testing.T) (*PaymentServiceImpl, *mocks.MockPaymentRepository, *requestFixture) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockPaymentRepository(ctrl)
	f := newRequestFixture(ctrl)
	svc := NewPaymentService(repo, f.ledger, f.transactor, NewUserLocker(), f.notifier, testRules(), newTestLogger())
	return svc, repo, f
}

func pendingPayment() *domain.PaymentRequest {
	return &domain.PaymentRequest{
		ID:          "pay-1",
		UserID:      "u1",
		Amount:      dec("75"),
		MethodID:    "card",
		ExternalRef: "receipt-9",
		Status:      domain.RequestStatusPending,
	}
}

func TestPaymentService_Create(t *testing.T) {
	svc, repo, f := setupPayment(t)
	ctx := context.Background()
	ref := domain.MessageRef{ChatID: -100, MessageID: 11}

	repo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, p *domain.PaymentRequest) error {
		assert.Equal(t, domain.RequestStatusPending, p.Status)
		assert.Equal(t, "receipt-9", p.ExternalRef)
		return nil
	})
	f.notifier.EXPECT().SendStaffRequest(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, buttons []ports.Button) (domain.MessageRef, error) {
			require.Len(t, buttons, 2)
			assert.Equal(t, "Approve", buttons[0].Text)
			assert.Contains(t, buttons[0].Data, "pay:approve:")
			return ref, nil
		})
	repo.EXPECT().AttachMessage(ctx, gomock.Any(), ref).Return(nil)

	p, err := svc.Create(ctx, ports.CreatePaymentRequest{UserID: "u1", Amount: dec("75"), MethodID: "card", ExternalRef: "receipt-9"})
	require.NoError(t, err)
	assert.Equal(t, ref, p.MessageRef)
}

func TestPaymentService_Create_Validation(t *testing.T) {
	svc, _, _ := setupPayment(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, ports.CreatePaymentRequest{UserID: "u1", Amount: dec("1"), MethodID: "card"})
	assert.True(t, apperror.HasCode(err, apperror.CodeBelowMinimum))

	_, err = svc.Create(ctx, ports.CreatePaymentRequest{UserID: "u1", Amount: dec("50"), MethodID: "cash"})
	assert.True(t, apperror.HasCode(err, apperror.CodeUnknownMethod))
}

func TestPaymentService_Resolve_ApproveCredits(t *testing.T) {
	svc, repo, f := setupPayment(t)
	ctx := context.Background()

	approved := pendingPayment()
	approved.Status = domain.RequestStatusApproved
	repo.EXPECT().GetByID(ctx, "pay-1").Return(pendingPayment(), nil)
	repo.EXPECT().Resolve(ctx, f.tx, "pay-1", domain.RequestStatusApproved).Return(approved, nil)
	f.ledger.EXPECT().AdjustInTx(ctx, f.tx, "u1", decEq("75"), domain.TxKindPaymentApproved, gomock.Any()).Return(dec("75"), nil)

	p, err := svc.Resolve(ctx, "pay-1", domain.RequestStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusApproved, p.Status)
	assert.True(t, f.tx.committed)
}

func TestPaymentService_Resolve_RejectDoesNotCredit(t *testing.T) {
	svc, repo, f := setupPayment(t)
	ctx := context.Background()

	rejected := pendingPayment()
	rejected.Status = domain.RequestStatusRejected
	repo.EXPECT().GetByID(ctx, "pay-1").Return(pendingPayment(), nil)
	repo.EXPECT().Resolve(ctx, f.tx, "pay-1", domain.RequestStatusRejected).Return(rejected, nil)

	_, err := svc.Resolve(ctx, "pay-1", domain.RequestStatusRejected)
	require.NoError(t, err)
}

func TestPaymentService_Resolve_AlreadyProcessed(t *testing.T) {
	svc, repo, f := setupPayment(t)
	ctx := context.Background()

	repo.EXPECT().GetByID(ctx, "pay-1").Return(pendingPayment(), nil)
	repo.EXPECT().Resolve(ctx, f.tx, "pay-1", domain.RequestStatusApproved).Return(nil, nil)

	_, err := svc.Resolve(ctx, "pay-1", domain.RequestStatusApproved)
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyProcessed))

	_, err = svc.Resolve(ctx, "pay-1", domain.RequestStatusCompleted)
	assert.Error(t, err, "payments are approved, not completed")
}

func TestPaymentService_LookupByMessage_NotFound(t *testing.T) {
	svc, repo, _ := setupPayment(t)
	ctx := context.Background()
	ref := domain.MessageRef{ChatID: -100, MessageID: 11}

	repo.EXPECT().GetPendingByMessage(ctx, ref).Return(nil, nil)
	_, err := svc.LookupByMessage(ctx, ref)
	assert.True(t, apperror.HasCode(err, apperror.CodeRequestNotFound))
}
