package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaskKind names an operation executed by the worker.
type TaskKind string

const (
	TaskCreateAccount       TaskKind = "create_account"
	TaskDepositToAccount    TaskKind = "deposit_to_account"
	TaskWithdrawFromAccount TaskKind = "withdraw_from_account"
)

// Task is a queued operation. Payload holds the kind-specific JSON body.
type Task struct {
	ID         string          `json:"id"`
	Kind       TaskKind        `json:"kind"`
	UserID     string          `json:"user_id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewTask marshals payload and stamps the task with an id and time.
func NewTask(kind TaskKind, userID string, payload any) (*Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		UserID:     userID,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into v.
func (t *Task) Decode(v any) error {
	if len(t.Payload) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(t.Payload, v)
}

// CreateAccountPayload is the body of a create_account task.
type CreateAccountPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (p CreateAccountPayload) Validate() error {
	if strings.TrimSpace(p.Username) == "" {
		return errors.New("username is required")
	}
	if p.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// TransferPayload is the body of deposit_to_account and withdraw_from_account.
type TransferPayload struct {
	Amount     decimal.Decimal `json:"amount"`
	ExternalID string          `json:"external_id"`
}

func (p TransferPayload) Validate() error {
	if !p.Amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	if p.ExternalID == "" {
		return errors.New("external_id is required")
	}
	return nil
}
