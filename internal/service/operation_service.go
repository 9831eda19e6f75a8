package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"agent-wallet-bridge/internal/adapter/agent"
	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/internal/metrics"
	"agent-wallet-bridge/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ScanLimits bounds the player list walk used to find a new player's id.
type ScanLimits struct {
	PageSize int
	MaxPages int
}

// OperationServiceImpl implements ports.OperationService: it validates and
// enqueues account operations and provides the worker's handlers for them.
type OperationServiceImpl struct {
	queue    ports.TaskQueue
	agent    ports.AgentClient
	accounts ports.AccountRepository
	ledger   ports.LedgerService
	referral ports.ReferralHook
	loyalty  ports.LoyaltyHook
	encSvc   ports.EncryptionService
	locker   ports.UserLocker
	scan     ScanLimits
	announce announcer
	suffix   func() string
	log      zerolog.Logger
}

// NewOperationService creates a new OperationServiceImpl.
func NewOperationService(
	queue ports.TaskQueue,
	agentClient ports.AgentClient,
	accounts ports.AccountRepository,
	ledger ports.LedgerService,
	referral ports.ReferralHook,
	loyalty ports.LoyaltyHook,
	encSvc ports.EncryptionService,
	locker ports.UserLocker,
	notifier ports.Notifier,
	scan ScanLimits,
	log zerolog.Logger,
) *OperationServiceImpl {
	if scan.PageSize <= 0 {
		scan.PageSize = 100
	}
	if scan.MaxPages <= 0 {
		scan.MaxPages = 50
	}
	return &OperationServiceImpl{
		queue:    queue,
		agent:    agentClient,
		accounts: accounts,
		ledger:   ledger,
		referral: referral,
		loyalty:  loyalty,
		encSvc:   encSvc,
		locker:   locker,
		scan:     scan,
		announce: announcer{notifier: notifier, ledger: ledger, log: log},
		suffix:   randomSuffix,
		log:      log,
	}
}

// Submit validates a task payload and appends it to the queue.
// Transfers without an external id get the user's linked player id.
func (s *OperationServiceImpl) Submit(ctx context.Context, kind domain.TaskKind, userID string, payload json.RawMessage) (*domain.Task, error) {
	if userID == "" {
		return nil, apperror.Validation("user_id is required")
	}

	task := &domain.Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		UserID:     userID,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}

	switch kind {
	case domain.TaskCreateAccount:
		var p domain.CreateAccountPayload
		if err := decodePayload(task, &p); err != nil {
			return nil, err
		}
	case domain.TaskDepositToAccount, domain.TaskWithdrawFromAccount:
		var p domain.TransferPayload
		if err := task.Decode(&p); err != nil {
			return nil, apperror.ErrInvalidPayload(err)
		}
		if p.ExternalID == "" {
			id, err := s.linkedPlayer(ctx, userID)
			if err != nil {
				return nil, err
			}
			p.ExternalID = id
		}
		p.Amount = domain.RoundMoney(p.Amount)
		if err := p.Validate(); err != nil {
			return nil, apperror.ErrInvalidPayload(err)
		}
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("marshal payload: %w", err))
		}
		task.Payload = raw
	default:
		return nil, apperror.ErrUnknownTaskKind(string(kind))
	}

	if err := s.queue.Enqueue(ctx, task); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("enqueue task: %w", err))
	}
	if depth, err := s.queue.Len(ctx); err == nil {
		metrics.QueueDepth.Set(float64(depth))
	}

	s.log.Info().
		Str("task_id", task.ID).
		Str("kind", string(kind)).
		Str("user_id", userID).
		Msg("Task enqueued")
	return task, nil
}

// Handlers returns the worker dispatch table.
func (s *OperationServiceImpl) Handlers() map[domain.TaskKind]ports.TaskHandler {
	return map[domain.TaskKind]ports.TaskHandler{
		domain.TaskCreateAccount:       s.createAccount,
		domain.TaskDepositToAccount:    s.depositToAccount,
		domain.TaskWithdrawFromAccount: s.withdrawFromAccount,
	}
}

func (s *OperationServiceImpl) linkedPlayer(ctx context.Context, userID string) (string, error) {
	acct, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return "", apperror.ErrDatabaseError(fmt.Errorf("get account: %w", err))
	}
	if acct == nil {
		return "", apperror.ErrAccountNotFound()
	}
	if acct.Ready() {
		return *acct.ExternalID, nil
	}

	// Registered but not listed at creation time: look again before refusing.
	id, err := s.findPlayer(ctx, acct.Username)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Str("username", acct.Username).Msg("Player lookup failed")
		return "", apperror.ErrAccountNotReady()
	}
	if id == "" {
		return "", apperror.ErrAccountNotReady()
	}
	if err := s.accounts.SetExternalID(ctx, userID, id); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to store resolved player id")
	}
	return id, nil
}

// createAccount registers a platform player for the user and links it.
// The wallet is not touched.
func (s *OperationServiceImpl) createAccount(ctx context.Context, task *domain.Task) error {
	var p domain.CreateAccountPayload
	if err := decodePayload(task, &p); err != nil {
		return err
	}

	existing, err := s.accounts.GetByUserID(ctx, task.UserID)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("get account: %w", err))
	}
	if existing != nil {
		s.announce.user(ctx, task.UserID, fmt.Sprintf("You already have an account: %s", existing.Username))
		return apperror.ErrAccountExists()
	}

	username := domain.BuildUsername(p.Username, s.suffix())
	if err := s.agent.RegisterPlayer(ctx, username, p.Password); err != nil {
		s.announce.user(ctx, task.UserID, "Account creation failed: "+reason(err))
		return notified(agentError(err))
	}

	passwordEnc, err := s.encSvc.Encrypt(p.Password)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", task.UserID).Str("username", username).Msg("Password sealing failed after player registration")
		s.announce.staff(ctx, fmt.Sprintf("ATTENTION: player %s was registered for user %s but is not linked: password encryption failed", username, task.UserID))
		return apperror.ErrEncryptionFailure(fmt.Errorf("encrypt account password: %w", err))
	}

	var externalID *string
	if id, err := s.findPlayer(ctx, username); err != nil {
		s.log.Warn().Err(err).Str("username", username).Msg("Player lookup failed, leaving for reconciliation")
	} else if id != "" {
		externalID = &id
	}

	now := time.Now().UTC()
	acct := &domain.Account{
		UserID:      task.UserID,
		Username:    username,
		PasswordEnc: passwordEnc,
		ExternalID:  externalID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return apperror.ErrAccountExists()
		}
		s.announce.staff(ctx, fmt.Sprintf("Player %s was registered for user %s but could not be saved: %v", username, task.UserID, err))
		return apperror.ErrDatabaseError(fmt.Errorf("create account: %w", err))
	}

	s.log.Info().
		Str("user_id", task.UserID).
		Str("username", username).
		Bool("resolved", acct.Ready()).
		Msg("Account created")

	if acct.Ready() {
		s.announce.user(ctx, task.UserID, fmt.Sprintf("Account created.\nLogin: %s\nPassword: %s", username, p.Password))
	} else {
		s.announce.user(ctx, task.UserID, fmt.Sprintf("Account created.\nLogin: %s\nPassword: %s\nYour account is still loading; transfers will be available shortly.", username, p.Password))
	}
	return nil
}

func (s *OperationServiceImpl) findPlayer(ctx context.Context, username string) (string, error) {
	var id string
	err := scanPlayers(ctx, s.agent, s.scan.PageSize, s.scan.MaxPages, func(p ports.Player) bool {
		if p.Username == username {
			id = p.ID
			return false
		}
		return true
	})
	return id, err
}

// depositToAccount moves wallet funds onto the user's platform player.
// The cashier and the wallet are both checked before anything moves.
func (s *OperationServiceImpl) depositToAccount(ctx context.Context, task *domain.Task) error {
	var p domain.TransferPayload
	if err := decodePayload(task, &p); err != nil {
		return err
	}
	amount := domain.RoundMoney(p.Amount)

	unlock := s.locker.Lock(task.UserID)
	defer unlock()

	cashier, err := s.agent.GetCashierBalance(ctx)
	if err != nil {
		s.announce.user(ctx, task.UserID, "Deposit failed: the platform is temporarily unavailable.")
		s.announce.staff(ctx, fmt.Sprintf("Deposit of %s for user %s failed: cashier balance unavailable: %s", money(amount), task.UserID, reason(err)))
		return notified(agentError(err))
	}
	if cashier.LessThan(amount) {
		s.announce.user(ctx, task.UserID, "Deposit failed: the platform is temporarily unavailable.")
		s.announce.staff(ctx, fmt.Sprintf("Cashier balance %s is below requested deposit %s for user %s", money(cashier), money(amount), task.UserID))
		return apperror.ErrCashierShortfall()
	}

	balance, err := s.ledger.GetBalance(ctx, task.UserID)
	if err != nil {
		return passThrough(err, "get balance")
	}
	if balance.LessThan(amount) {
		s.announce.user(ctx, task.UserID, fmt.Sprintf("Deposit of %s failed: insufficient balance.", money(amount)))
		s.announce.staff(ctx, fmt.Sprintf("Deposit of %s for user %s refused: wallet balance %s", money(amount), task.UserID, money(balance)))
		return apperror.ErrInsufficientFunds()
	}

	if err := s.agent.Deposit(ctx, p.ExternalID, amount); err != nil {
		s.announce.user(ctx, task.UserID, fmt.Sprintf("Deposit of %s failed: %s", money(amount), reason(err)))
		s.announce.staff(ctx, fmt.Sprintf("Deposit of %s to player %s for user %s failed: %s", money(amount), p.ExternalID, task.UserID, reason(err)))
		return notified(agentError(err))
	}

	newBalance, err := s.ledger.AdjustBalance(ctx, task.UserID, amount.Neg(), domain.TxKindAccountDeposit,
		"Deposit to player "+p.ExternalID)
	if err != nil {
		// The player already has the money; staff must settle the wallet by hand.
		s.log.Error().Err(err).Str("user_id", task.UserID).Str("amount", amount.String()).Msg("Wallet debit failed after platform deposit")
		s.announce.staff(ctx, fmt.Sprintf("ATTENTION: deposit of %s to player %s succeeded but the wallet of user %s was not debited: %v",
			money(amount), p.ExternalID, task.UserID, err))
		return passThrough(err, "debit deposit")
	}

	if err := s.referral.CreditCommission(ctx, task.UserID, amount); err != nil {
		s.log.Warn().Err(err).Str("user_id", task.UserID).Msg("Referral commission credit failed")
	}
	if err := s.loyalty.AwardPoints(ctx, task.UserID, amount); err != nil {
		s.log.Warn().Err(err).Str("user_id", task.UserID).Msg("Loyalty award failed")
	}

	s.log.Info().
		Str("task_id", task.ID).
		Str("user_id", task.UserID).
		Str("amount", amount.String()).
		Str("balance", newBalance.String()).
		Msg("Deposit to account completed")

	s.announce.user(ctx, task.UserID, fmt.Sprintf("Deposited %s to your account.", money(amount)))
	s.announce.staff(ctx, fmt.Sprintf("User %s deposited %s to player %s. Wallet: %s", task.UserID, money(amount), p.ExternalID, money(newBalance)))
	return nil
}

// withdrawFromAccount pulls funds off the user's platform player into the wallet.
func (s *OperationServiceImpl) withdrawFromAccount(ctx context.Context, task *domain.Task) error {
	var p domain.TransferPayload
	if err := decodePayload(task, &p); err != nil {
		return err
	}
	amount := domain.RoundMoney(p.Amount)

	unlock := s.locker.Lock(task.UserID)
	defer unlock()

	if err := s.agent.Withdraw(ctx, p.ExternalID, amount); err != nil {
		s.announce.user(ctx, task.UserID, fmt.Sprintf("Withdrawal of %s from your account failed: %s", money(amount), reason(err)))
		return notified(agentError(err))
	}

	newBalance, err := s.ledger.AdjustBalance(ctx, task.UserID, amount, domain.TxKindAccountWithdraw,
		"Withdrawal from player "+p.ExternalID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", task.UserID).Str("amount", amount.String()).Msg("Wallet credit failed after platform withdrawal")
		s.announce.staff(ctx, fmt.Sprintf("ATTENTION: withdrawal of %s from player %s succeeded but the wallet of user %s was not credited: %v",
			money(amount), p.ExternalID, task.UserID, err))
		return passThrough(err, "credit withdrawal")
	}

	if err := s.referral.DeductCommission(ctx, task.UserID, amount); err != nil {
		s.log.Warn().Err(err).Str("user_id", task.UserID).Msg("Referral commission deduction failed")
	}

	s.log.Info().
		Str("task_id", task.ID).
		Str("user_id", task.UserID).
		Str("amount", amount.String()).
		Str("balance", newBalance.String()).
		Msg("Withdrawal from account completed")

	s.announce.user(ctx, task.UserID, fmt.Sprintf("Withdrew %s from your account.", money(amount)))
	return nil
}

// decodePayload unmarshals the task payload into v and validates it.
func decodePayload(task *domain.Task, v interface{ Validate() error }) error {
	if err := task.Decode(v); err != nil {
		return apperror.ErrInvalidPayload(err)
	}
	if err := v.Validate(); err != nil {
		return apperror.ErrInvalidPayload(err)
	}
	return nil
}

// reason is the user-facing explanation of an agent failure.
func reason(err error) string {
	if msg, ok := agent.IsRejected(err); ok {
		return msg
	}
	return "the platform is temporarily unavailable"
}

func agentError(err error) error {
	if msg, ok := agent.IsRejected(err); ok {
		return apperror.ErrAgentRejected(msg)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperror.ErrAgentUnavailable(err)
}

func randomSuffix() string {
	alphabet := domain.UsernameSuffixAlphabet
	out := make([]byte, domain.UsernameSuffixLen)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			n = big.NewInt(int64(time.Now().UnixNano() % int64(len(alphabet))))
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out)
}
