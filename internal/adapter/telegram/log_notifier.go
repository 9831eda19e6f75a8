package telegram

import (
	"context"
	"sync/atomic"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/pkg/logger"

	"github.com/rs/zerolog"
)

var _ ports.Notifier = (*LogNotifier)(nil)

// LogNotifier writes every message to the log. It is used when the bot is
// disabled; staff then moderate through the HTTP callback endpoint using the
// references it hands out.
type LogNotifier struct {
	staffChatID int64
	nextID      atomic.Int64
	log         zerolog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(staffChatID int64, log zerolog.Logger) *LogNotifier {
	return &LogNotifier{
		staffChatID: staffChatID,
		log:         logger.Component(log, "notifier"),
	}
}

func (n *LogNotifier) SendStaffRequest(_ context.Context, text string, buttons []ports.Button) (domain.MessageRef, error) {
	ref := domain.MessageRef{ChatID: n.staffChatID, MessageID: int(n.nextID.Add(1))}

	actions := make([]string, 0, len(buttons))
	for _, b := range buttons {
		actions = append(actions, b.Data)
	}
	n.log.Info().
		Str("message", ref.String()).
		Strs("actions", actions).
		Str("text", text).
		Msg("Staff request")
	return ref, nil
}

func (n *LogNotifier) EditMessage(_ context.Context, ref domain.MessageRef, text string) error {
	n.log.Info().Str("message", ref.String()).Str("text", text).Msg("Staff message edited")
	return nil
}

func (n *LogNotifier) DeleteMessage(_ context.Context, ref domain.MessageRef) error {
	n.log.Info().Str("message", ref.String()).Msg("Staff message deleted")
	return nil
}

func (n *LogNotifier) NotifyUser(_ context.Context, userID string, text string) error {
	n.log.Info().Str("user_id", userID).Str("text", text).Msg("User notification")
	return nil
}

func (n *LogNotifier) NotifyStaff(_ context.Context, text string) error {
	n.log.Info().Str("text", text).Msg("Staff notification")
	return nil
}
