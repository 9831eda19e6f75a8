// Package telegram delivers staff and user messages through the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

var _ ports.Notifier = (*Notifier)(nil)

// BotAPI is the subset of *tgbotapi.BotAPI the notifier uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Notifier implements ports.Notifier on top of a Telegram bot.
type Notifier struct {
	bot         BotAPI
	staffChatID int64
	log         zerolog.Logger
}

// NewBot connects to the Bot API with the given token.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	return bot, nil
}

// NewNotifier creates a notifier posting moderation requests to staffChatID.
func NewNotifier(bot BotAPI, staffChatID int64, log zerolog.Logger) *Notifier {
	return &Notifier{
		bot:         bot,
		staffChatID: staffChatID,
		log:         logger.Component(log, "telegram"),
	}
}

// SendStaffRequest posts text with one inline button per action and returns
// where the message landed.
func (n *Notifier) SendStaffRequest(_ context.Context, text string, buttons []ports.Button) (domain.MessageRef, error) {
	msg := tgbotapi.NewMessage(n.staffChatID, text)
	if len(buttons) > 0 {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
		for _, b := range buttons {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}

	sent, err := n.bot.Send(msg)
	if err != nil {
		return domain.MessageRef{}, fmt.Errorf("send staff request: %w", err)
	}
	return domain.MessageRef{ChatID: sent.Chat.ID, MessageID: sent.MessageID}, nil
}

// EditMessage replaces the text of a staff message and drops its buttons.
// A message that no longer exists is not an error.
func (n *Notifier) EditMessage(_ context.Context, ref domain.MessageRef, text string) error {
	if ref.IsZero() {
		return nil
	}
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	if _, err := n.bot.Request(edit); err != nil {
		if isGone(err) {
			n.log.Debug().Str("message", ref.String()).Msg("Edited message is gone")
			return nil
		}
		return fmt.Errorf("edit message %s: %w", ref, err)
	}
	return nil
}

// DeleteMessage removes a staff message. A message that no longer exists is not an error.
func (n *Notifier) DeleteMessage(_ context.Context, ref domain.MessageRef) error {
	if ref.IsZero() {
		return nil
	}
	if _, err := n.bot.Request(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID)); err != nil {
		if isGone(err) {
			n.log.Debug().Str("message", ref.String()).Msg("Deleted message is already gone")
			return nil
		}
		return fmt.Errorf("delete message %s: %w", ref, err)
	}
	return nil
}

// NotifyUser sends text to the user's private chat. User ids are Telegram chat ids.
func (n *Notifier) NotifyUser(_ context.Context, userID string, text string) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("notify user %q: not a chat id", userID)
	}
	if _, err := n.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("notify user %s: %w", userID, err)
	}
	return nil
}

// NotifyStaff posts plain text to the staff chat.
func (n *Notifier) NotifyStaff(_ context.Context, text string) error {
	if _, err := n.bot.Send(tgbotapi.NewMessage(n.staffChatID, text)); err != nil {
		return fmt.Errorf("notify staff: %w", err)
	}
	return nil
}

// isGone matches the Bot API errors for messages that were already removed
// or are unchanged.
func isGone(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "message to delete not found") ||
		strings.Contains(msg, "message to edit not found") ||
		strings.Contains(msg, "message is not modified") ||
		strings.Contains(msg, "message can't be deleted")
}
