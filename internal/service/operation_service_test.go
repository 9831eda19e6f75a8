package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"agent-wallet-bridge/internal/adapter/agent"
	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/internal/core/ports/mocks"
	"agent-wallet-bridge/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type operationFixture struct {
	svc      *OperationServiceImpl
	queue    *mocks.MockTaskQueue
	agent    *mocks.MockAgentClient
	accounts *mocks.MockAccountRepository
	ledger   *mocks.MockLedgerService
	referral *mocks.MockReferralHook
	loyalty  *mocks.MockLoyaltyHook
	enc      *mocks.MockEncryptionService
	notifier *mocks.MockNotifier
}

func setupOperations(t *testing.T) *operationFixture {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	notifier.EXPECT().NotifyUser(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	notifier.EXPECT().NotifyStaff(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	f := newOperationFixture(ctrl, notifier)
	f.notifier = notifier
	return f
}

func newOperationFixture(ctrl *gomock.Controller, notifier ports.Notifier) *operationFixture {
	f := &operationFixture{
		queue:    mocks.NewMockTaskQueue(ctrl),
		agent:    mocks.NewMockAgentClient(ctrl),
		accounts: mocks.NewMockAccountRepository(ctrl),
		ledger:   mocks.NewMockLedgerService(ctrl),
		referral: mocks.NewMockReferralHook(ctrl),
		loyalty:  mocks.NewMockLoyaltyHook(ctrl),
		enc:      mocks.NewMockEncryptionService(ctrl),
	}
	f.svc = NewOperationService(f.queue, f.agent, f.accounts, f.ledger, f.referral, f.loyalty, f.enc,
		NewUserLocker(), notifier, ScanLimits{PageSize: 2, MaxPages: 3}, newTestLogger())
	f.svc.suffix = func() string { return "a1b2" }
	return f
}

func taskFor(t *testing.T, kind domain.TaskKind, payload any) *domain.Task {
	task, err := domain.NewTask(kind, "u1", payload)
	require.NoError(t, err)
	return task
}

func TestOperationService_Submit_CreateAccount(t *testing.T) {
	f := setupOperations(t)
	ctx := context.Background()

	f.queue.EXPECT().Enqueue(ctx, gomock.Any()).Return(nil)
	f.queue.EXPECT().Len(ctx).Return(int64(1), nil)

	task, err := f.svc.Submit(ctx, domain.TaskCreateAccount, "u1", json.RawMessage(`{"username":"bob","password":"pw"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, domain.TaskCreateAccount, task.Kind)
}

func TestOperationService_Submit_Rejects(t *testing.T) {
	f := setupOperations(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, domain.TaskKind("noop"), "u1", json.RawMessage(`{}`))
	assert.True(t, apperror.HasCode(err, apperror.CodeUnknownTaskKind))

	_, err = f.svc.Submit(ctx, domain.TaskCreateAccount, "u1", json.RawMessage(`{"username":"bob"}`))
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidPayload))

	_, err = f.svc.Submit(ctx, domain.TaskDepositToAccount, "u1", json.RawMessage(`{"amount":"-5","external_id":"p-1"}`))
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidPayload))
}

func TestOperationService_Submit_FillsExternalID(t *testing.T) {
	f := setupOperations(t)
	ctx := context.Background()
	playerID := "p-9"

	f.accounts.EXPECT().GetByUserID(ctx, "u1").Return(&domain.Account{UserID: "u1", ExternalID: &playerID}, nil)
	f.queue.EXPECT().Enqueue(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, task *domain.Task) error {
		var p domain.TransferPayload
		require.NoError(t, task.Decode(&p))
		assert.Equal(t, "p-9", p.ExternalID)
		assert.Equal(t, "25.50", p.Amount.StringFixed(2))
		return nil
	})
	f.queue.EXPECT().Len(ctx).Return(int64(1), nil)

	_, err := f.svc.Submit(ctx, domain.TaskDepositToAccount, "u1", json.RawMessage(`{"amount":"25.5"}`))
	require.NoError(t, err)
}

func TestOperationService_Submit_AccountNotReady(t *testing.T) {
	f := setupOperations(t)
	ctx := context.Background()

	f.accounts.EXPECT().GetByUserID(ctx, "u1").Return(&domain.Account{UserID: "u1", Username: "bob_a1b2"}, nil)
	f.agent.EXPECT().ListPlayers(ctx, 1, 2).Return(&ports.PlayerPage{Players: []ports.Player{{ID: "p-1", Username: "alice"}}}, nil)
	_, err := f.svc.Submit(ctx, domain.TaskWithdrawFromAccount, "u1", json.RawMessage(`{"amount":"10"}`))
	assert.True(t, apperror.HasCode(err, apperror.CodeAccountNotReady))

	f.accounts.EXPECT().GetByUserID(ctx, "u1").Return(&domain.Account{UserID: "u1", Username: "bob_a1b2"}, nil)
	f.agent.EXPECT().ListPlayers(ctx, 1, 2).Return(nil, agent.ErrRetriesExhausted)
	_, err = f.svc.Submit(ctx, domain.TaskWithdrawFromAccount, "u1", json.RawMessage(`{"amount":"10"}`))
	assert.True(t, apperror.HasCode(err, apperror.CodeAccountNotReady))

	f.accounts.EXPECT().GetByUserID(ctx, "u1").Return(nil, nil)
	_, err = f.svc.Submit(ctx, domain.TaskWithdrawFromAccount, "u1", json.RawMessage(`{"amount":"10"}`))
	assert.True(t, apperror.HasCode(err, apperror.CodeAccountNotFound))
}

func TestOperationService_Submit_ResolvesPendingPlayer(t *testing.T) {
	f := setupOperations(t)
	ctx := context.Background()

	f.accounts.EXPECT().GetByUserID(ctx, "u1").Return(&domain.Account{UserID: "u1", Username: "bob_a1b2"}, nil)
	f.agent.EXPECT().ListPlayers(ctx, 1, 2).Return(&ports.PlayerPage{
		Players: []ports.Player{{ID: "p-1", Username: "alice"}, {ID: "p-3", Username: "bob_a1b2"}}, Total: 2,
	}, nil)
	f.accounts.EXPECT().SetExternalID(ctx, "u1", "p-3").Return(nil)
	f.queue.EXPECT().Enqueue(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, task *domain.Task) error {
		var p domain.TransferPayload
		require.NoError(t, task.Decode(&p))
		assert.Equal(t, "p-3", p.ExternalID)
		return nil
	})
	f.queue.EXPECT().Len(ctx).Return(int64(1), nil)

	_, err := f.svc.Submit(ctx, domain.TaskDepositToAccount, "u1", json.RawMessage(`{"amount":"10"}`))
	require.NoError(t, err)
}

func TestOperationService_CreateAccount(t *testing.T) {
	f := setupOperations(t)
	ctx := context.Background()
	f.ledger.EXPECT().GetBalance(gomock.Any(), "u1").Return(dec("0"), nil).AnyTimes()

	f.accounts.EXPECT().GetByUserID(ctx, "u1").Return(nil, nil)
	f.agent.EXPECT().RegisterPlayer(ctx, "bob_a1b2", "pw").Return(nil)
	f.enc.EXPECT().Encrypt("pw").Return("sealed", nil)
	gomock.InOrder(
		f.agent.EXPECT().ListPlayers(ctx, 1, 2).Return(&ports.PlayerPage{
			Players: []ports.Player{{ID: "p-1", Username: "alice_zzzz"}, {ID: "p-2", Username: "carl_0000"}}, Total: 3,
		}, nil),
		f.agent.EXPECT().ListPlayers(ctx, 2, 2).Return(&ports.PlayerPage{
			Players: []ports.Player{{ID: "p-3", Username: "bob_a1b2"}}, Total: 3,
		}, nil),
	)
	f.accounts.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, a *domain.Account) error {
		assert.Equal(t, "bob_a1b2", a.Username)
		assert.Equal(t, "sealed", a.PasswordEnc)
		require.NotNil(t, a.ExternalID)
		assert.Equal(t, "p-3", *a.ExternalID)
		return nil
	})

	handler := f.svc.Handlers()[domain.TaskCreateAccount]
	require.NoError(t, handler(ctx, taskFor(t, domain.TaskCreateAccount, domain.CreateAccountPayload{Username: "bob", Password: "pw"})))
}

func TestOperationService_CreateAccount_PlayerNotListedYet(t *testing.T) {
	f := setupOperations(t)
	ctx := context.Background()
	f.ledger.EXPECT().GetBalance(gomock.Any(), "u1").Return(dec("0"), nil).AnyTimes()

	f.accounts.EXPECT().GetByUserID(ctx, "u1").Return(nil, nil)
	f.agent.EXPECT().RegisterPlayer(ctx, "bob_a1b2", "pw").Return(nil)
	f.enc.EXPECT().Encrypt("pw").Return("sealed", nil)
	f.agent.EXPECT().ListPlayers(ctx, 1, 2).Return(&ports.PlayerPage{Players: []ports.Player{{ID: "p-1", Username: "alice"}}}, nil)
	f.accounts.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, a *domain.Account) error {
		assert.Nil(t, a.ExternalID)
		return nil
	})

	err := f.svc.Handlers()[domain.TaskCreateAccount](ctx, taskFor(t, domain.TaskCreateAccount, domain.CreateAccountPayload{Username: "bob", Password: "pw"}))
	require.NoError(t, err)
}

func TestOperationService_CreateAccount_Exists(t *testing.T) {
	f := setupOperations(t)
	ctx := context.Background()
	f.ledger.EXPECT().GetBalance(gomock.Any(), "u1").Return(dec("0"), nil).AnyTimes()

	f.accounts.EXPECT().GetByUserID(ctx, "u1").Return(&domain.Account{UserID: "u1", Username: "bob_zz11"}, nil)

	err := f.svc.Handlers()[domain.TaskCreateAccount](ctx, taskFor(t, domain.TaskCreateAccount, domain.CreateAccountPayload{Username: "bob", Password: "pw"}))
	assert.True(t, apperror.HasCode(err, apperror.CodeAccountExists))
}

func TestOperationService_Deposit_InsufficientWalletSkipsPlatform(t *testing.T) {
	f := setupOperations(t)
	ctx := context.Background()
	f.ledger.EXPECT().GetBalance(gomock.Any(), "u1").Return(dec("50"), nil).AnyTimes()
	f.agent.EXPECT().GetCashierBalance(ctx).Return(dec("10000"), nil)
	// No Deposit expectation: any platform call fails the test.

	err := f.svc.Handlers()[domain.TaskDepositToAccount](ctx, taskFor(t, domain.TaskDepositToAccount,
		domain.TransferPayload{Amount: dec("100"), ExternalID: "p-9"}))
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientFunds))
}

func TestOperationService_Deposit_CashierShortfall(t *testing.T) {
	f := setupOperations(t)
	ctx := context.Background()
	f.ledger.EXPECT().GetBalance(gomock.Any(), "u1").Return(dec("500"), nil).AnyTimes()
	f.agent.EXPECT().GetCashierBalance(ctx).Return(dec("20"), nil)

	err := f.svc.Handlers()[domain.TaskDepositToAccount](ctx, taskFor(t, domain.TaskDepositToAccount,
		domain.TransferPayload{Amount: dec("100"), ExternalID: "p-9"}))
	assert.True(t, apperror.HasCode(err, apperror.CodeCashierShortfall))
}

func TestOperationService_Deposit_Success(t *testing.T) {
	f := setupOperations(t)
	ctx := context.Background()
	f.ledger.EXPECT().GetBalance(gomock.Any(), "u1").Return(dec("500"), nil).AnyTimes()

	gomock.InOrder(
		f.agent.EXPECT().GetCashierBalance(ctx).Return(dec("10000"), nil),
		f.agent.EXPECT().Deposit(ctx, "p-9", decEq("100")).Return(nil),
		f.ledger.EXPECT().AdjustBalance(ctx, "u1", decEq("-100"), domain.TxKindAccountDeposit, gomock.Any()).Return(dec("400"), nil),
	)
	f.referral.EXPECT().CreditCommission(ctx, "u1", decEq("100")).Return(nil)
	f.loyalty.EXPECT().AwardPoints(ctx, "u1", decEq("100")).Return(errors.New("loyalty down"))

	err := f.svc.Handlers()[domain.TaskDepositToAccount](ctx, taskFor(t, domain.TaskDepositToAccount,
		domain.TransferPayload{Amount: dec("100"), ExternalID: "p-9"}))
	require.NoError(t, err, "hook failures do not fail the task")
}

func TestOperationService_Deposit_PlatformRejects(t *testing.T) {
	f := setupOperations(t)
	ctx := context.Background()
	f.ledger.EXPECT().GetBalance(gomock.Any(), "u1").Return(dec("500"), nil).AnyTimes()

	f.agent.EXPECT().GetCashierBalance(ctx).Return(dec("10000"), nil)
	f.agent.EXPECT().Deposit(ctx, "p-9", decEq("100")).Return(&agent.RejectedError{Endpoint: "deposit", Status: 200, Message: "player is blocked"})

	err := f.svc.Handlers()[domain.TaskDepositToAccount](ctx, taskFor(t, domain.TaskDepositToAccount,
		domain.TransferPayload{Amount: dec("100"), ExternalID: "p-9"}))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeAgentRejected))
	assert.Contains(t, err.Error(), "player is blocked")
}

func TestOperationService_Withdraw_Success(t *testing.T) {
	f := setupOperations(t)
	ctx := context.Background()
	f.ledger.EXPECT().GetBalance(gomock.Any(), "u1").Return(dec("150"), nil).AnyTimes()

	gomock.InOrder(
		f.agent.EXPECT().Withdraw(ctx, "p-9", decEq("40")).Return(nil),
		f.ledger.EXPECT().AdjustBalance(ctx, "u1", decEq("40"), domain.TxKindAccountWithdraw, gomock.Any()).Return(dec("150"), nil),
	)
	f.referral.EXPECT().DeductCommission(ctx, "u1", decEq("40")).Return(nil)

	err := f.svc.Handlers()[domain.TaskWithdrawFromAccount](ctx, taskFor(t, domain.TaskWithdrawFromAccount,
		domain.TransferPayload{Amount: dec("40"), ExternalID: "p-9"}))
	require.NoError(t, err)
}

func TestOperationService_Withdraw_PlatformDown(t *testing.T) {
	f := setupOperations(t)
	ctx := context.Background()
	f.ledger.EXPECT().GetBalance(gomock.Any(), "u1").Return(dec("150"), nil).AnyTimes()

	f.agent.EXPECT().Withdraw(ctx, "p-9", decEq("40")).Return(agent.ErrRetriesExhausted)

	err := f.svc.Handlers()[domain.TaskWithdrawFromAccount](ctx, taskFor(t, domain.TaskWithdrawFromAccount,
		domain.TransferPayload{Amount: dec("40"), ExternalID: "p-9"}))
	assert.True(t, apperror.HasCode(err, apperror.CodeAgentUnavailable))
}

func TestRandomSuffix(t *testing.T) {
	s := randomSuffix()
	assert.Len(t, s, domain.UsernameSuffixLen)
	for _, r := range s {
		assert.Contains(t, domain.UsernameSuffixAlphabet, string(r))
	}
}
