package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/internal/core/ports/mocks"
	"agent-wallet-bridge/pkg/apperror"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErr  error
	reqErr   error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return tgbotapi.Message{}, b.sendErr
	}
	b.sent = append(b.sent, c)
	msg := tgbotapi.Message{MessageID: len(b.sent) + 100, Chat: &tgbotapi.Chat{}}
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		msg.Chat.ID = m.ChatID
	}
	return msg, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, c)
	if b.reqErr != nil {
		return nil, b.reqErr
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func TestNotifier_SendStaffRequest(t *testing.T) {
	bot := &fakeBot{}
	n := NewNotifier(bot, -100500, zerolog.Nop())

	ref, err := n.SendStaffRequest(context.Background(), "Withdrawal 200.00", []ports.Button{
		{Text: "Complete", Data: "wd:complete:abc"},
		{Text: "Reject", Data: "wd:reject:abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageRef{ChatID: -100500, MessageID: 101}, ref)

	require.Len(t, bot.sent, 1)
	msg := bot.sent[0].(tgbotapi.MessageConfig)
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 1)
	require.Len(t, markup.InlineKeyboard[0], 2)
	assert.Equal(t, "wd:reject:abc", *markup.InlineKeyboard[0][1].CallbackData)
}

func TestNotifier_SendStaffRequest_Error(t *testing.T) {
	bot := &fakeBot{sendErr: errors.New("Forbidden: bot was kicked")}
	n := NewNotifier(bot, -1, zerolog.Nop())

	_, err := n.SendStaffRequest(context.Background(), "x", nil)
	assert.ErrorContains(t, err, "send staff request")
}

func TestNotifier_EditAndDeleteTolerateMissingMessage(t *testing.T) {
	ref := domain.MessageRef{ChatID: -1, MessageID: 5}

	bot := &fakeBot{reqErr: errors.New("Bad Request: message to edit not found")}
	n := NewNotifier(bot, -1, zerolog.Nop())
	assert.NoError(t, n.EditMessage(context.Background(), ref, "done"))

	bot.reqErr = errors.New("Bad Request: message to delete not found")
	assert.NoError(t, n.DeleteMessage(context.Background(), ref))

	bot.reqErr = errors.New("Too Many Requests: retry after 5")
	assert.Error(t, n.DeleteMessage(context.Background(), ref))
}

func TestNotifier_ZeroRefIsNoop(t *testing.T) {
	bot := &fakeBot{}
	n := NewNotifier(bot, -1, zerolog.Nop())

	assert.NoError(t, n.EditMessage(context.Background(), domain.MessageRef{}, "x"))
	assert.NoError(t, n.DeleteMessage(context.Background(), domain.MessageRef{}))
	assert.Empty(t, bot.requests)
}

func TestNotifier_NotifyUser(t *testing.T) {
	bot := &fakeBot{}
	n := NewNotifier(bot, -1, zerolog.Nop())

	require.NoError(t, n.NotifyUser(context.Background(), "123456", "Balance: 50.00"))
	msg := bot.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(123456), msg.ChatID)

	assert.ErrorContains(t, n.NotifyUser(context.Background(), "bob", "x"), "not a chat id")
}

func TestLogNotifier_HandsOutDistinctRefs(t *testing.T) {
	n := NewLogNotifier(-42, zerolog.Nop())

	a, err := n.SendStaffRequest(context.Background(), "a", nil)
	require.NoError(t, err)
	b, err := n.SendStaffRequest(context.Background(), "b", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(-42), a.ChatID)
	assert.NotEqual(t, a.MessageID, b.MessageID)
	assert.NoError(t, n.NotifyUser(context.Background(), "1", "hi"))
}

func callbackUpdate(chatID int64, msgID int, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cq-1",
		From:    &tgbotapi.User{ID: 77},
		Message: &tgbotapi.Message{MessageID: msgID, Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}}
}

func runListener(t *testing.T, l *Listener, updates ...tgbotapi.Update) {
	t.Helper()
	ch := make(chan tgbotapi.Update, len(updates))
	for _, u := range updates {
		ch <- u
	}
	close(ch)

	done := make(chan struct{})
	go func() {
		l.Run(context.Background(), ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListener_DispatchesStaffCallbacks(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mod := mocks.NewMockModerationService(ctrl)
	bot := &fakeBot{}
	l := NewListener(bot, mod, -100, zerolog.Nop())

	mod.EXPECT().Handle(gomock.Any(), ports.ModerationCallback{
		Ref:     domain.MessageRef{ChatID: -100, MessageID: 9},
		Data:    "pay:approve:p1",
		StaffID: "77",
	}).Return(&ports.ModerationResult{Status: domain.RequestStatusApproved}, nil)

	runListener(t, l, callbackUpdate(-100, 9, "pay:approve:p1"))

	require.Len(t, bot.requests, 1)
	answer := bot.requests[0].(tgbotapi.CallbackConfig)
	assert.Equal(t, "Done", answer.Text)
}

func TestListener_AnswersAlreadyProcessed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mod := mocks.NewMockModerationService(ctrl)
	bot := &fakeBot{}
	l := NewListener(bot, mod, -100, zerolog.Nop())

	mod.EXPECT().Handle(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrAlreadyProcessed())

	runListener(t, l, callbackUpdate(-100, 9, "wd:complete:w1"))

	answer := bot.requests[0].(tgbotapi.CallbackConfig)
	assert.Equal(t, "Request already processed", answer.Text)
}

func TestListener_IgnoresOtherChats(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mod := mocks.NewMockModerationService(ctrl)
	bot := &fakeBot{}
	l := NewListener(bot, mod, -100, zerolog.Nop())

	runListener(t, l, callbackUpdate(555, 9, "wd:complete:w1"), tgbotapi.Update{})

	assert.Empty(t, bot.requests)
}
