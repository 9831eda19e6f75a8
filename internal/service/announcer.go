package service

import (
	"context"
	"fmt"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"

	"github.com/rs/zerolog"
)

// announcer sends the chat side of a state change. Everything it does runs
// after the data change is committed and only logs on failure.
type announcer struct {
	notifier ports.Notifier
	ledger   ports.LedgerService
	log      zerolog.Logger
}

// staffRequest posts a moderation message with one button per action.
func (a announcer) staffRequest(ctx context.Context, kind domain.RequestKind, id, text string, actions ...domain.ModerationAction) (domain.MessageRef, bool) {
	buttons := make([]ports.Button, 0, len(actions))
	for _, action := range actions {
		cmd := domain.ModerationCommand{Kind: kind, Action: action, RequestID: id}
		buttons = append(buttons, ports.Button{Text: actionLabel(action), Data: cmd.CallbackData()})
	}

	ref, err := a.notifier.SendStaffRequest(ctx, text, buttons)
	if err != nil {
		a.log.Warn().Err(err).Str("kind", string(kind)).Str("request_id", id).Msg("Failed to post staff request")
		return domain.MessageRef{}, false
	}
	return ref, true
}

// closeStaffMessage replaces the staff message text so its buttons disappear.
func (a announcer) closeStaffMessage(ctx context.Context, ref domain.MessageRef, text string) {
	if err := a.notifier.EditMessage(ctx, ref, text); err != nil {
		a.log.Warn().Err(err).Str("message", ref.String()).Msg("Failed to edit staff message")
	}
}

func (a announcer) removeStaffMessage(ctx context.Context, ref domain.MessageRef) {
	if err := a.notifier.DeleteMessage(ctx, ref); err != nil {
		a.log.Warn().Err(err).Str("message", ref.String()).Msg("Failed to delete staff message")
	}
}

// user sends text followed by the user's current balance.
func (a announcer) user(ctx context.Context, userID, text string) {
	if balance, err := a.ledger.GetBalance(ctx, userID); err == nil {
		text = fmt.Sprintf("%s\nBalance: %s", text, money(balance))
	} else {
		a.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to read balance for notification")
	}
	if err := a.notifier.NotifyUser(ctx, userID, text); err != nil {
		a.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to notify user")
	}
}

func (a announcer) staff(ctx context.Context, text string) {
	if err := a.notifier.NotifyStaff(ctx, text); err != nil {
		a.log.Warn().Err(err).Msg("Failed to notify staff")
	}
}

func actionLabel(a domain.ModerationAction) string {
	switch a {
	case domain.ActionComplete:
		return "Complete"
	case domain.ActionApprove:
		return "Approve"
	case domain.ActionReject:
		return "Reject"
	}
	return string(a)
}
