package telegram

import (
	"context"
	"errors"
	"strconv"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/pkg/apperror"
	"agent-wallet-bridge/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Listener feeds staff button presses from the bot's update stream into
// the moderation service and answers each press with a short toast.
type Listener struct {
	bot         BotAPI
	moderation  ports.ModerationService
	staffChatID int64
	log         zerolog.Logger
}

// NewListener creates a callback listener for the staff chat.
func NewListener(bot BotAPI, moderation ports.ModerationService, staffChatID int64, log zerolog.Logger) *Listener {
	return &Listener{
		bot:         bot,
		moderation:  moderation,
		staffChatID: staffChatID,
		log:         logger.Component(log, "telegram_listener"),
	}
}

// Run consumes updates until ctx is cancelled or the channel closes.
func (l *Listener) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.CallbackQuery != nil {
				l.handleCallback(ctx, u.CallbackQuery)
			}
		}
	}
}

func (l *Listener) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil || cq.Message.Chat == nil || cq.Message.Chat.ID != l.staffChatID {
		l.log.Warn().Str("data", cq.Data).Msg("Ignoring callback outside the staff chat")
		return
	}

	cb := ports.ModerationCallback{
		Ref:  messageRef(cq.Message),
		Data: cq.Data,
	}
	if cq.From != nil {
		cb.StaffID = strconv.FormatInt(cq.From.ID, 10)
	}

	answer := "Done"
	res, err := l.moderation.Handle(ctx, cb)
	switch {
	case err != nil:
		answer = "Something went wrong"
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			answer = appErr.Message
		}
		if !apperror.HasCode(err, apperror.CodeAlreadyProcessed) {
			l.log.Error().Err(err).Str("data", cq.Data).Str("staff_id", cb.StaffID).Msg("Moderation callback failed")
		}
	case res.Duplicate:
		answer = "Already being processed"
	}

	if _, err := l.bot.Request(tgbotapi.NewCallback(cq.ID, answer)); err != nil {
		l.log.Warn().Err(err).Msg("Failed to answer callback")
	}
}

func messageRef(m *tgbotapi.Message) domain.MessageRef {
	return domain.MessageRef{ChatID: m.Chat.ID, MessageID: m.MessageID}
}
