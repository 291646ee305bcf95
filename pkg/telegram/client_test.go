package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	failFor map[int64]bool
	updates chan tgbotapi.Update
	stopped bool
}

func newFakeBot() *fakeBot {
	return &fakeBot{failFor: map[int64]bool{}, updates: make(chan tgbotapi.Update, 4)}
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := c.(tgbotapi.MessageConfig)
	if f.failFor[m.ChatID] {
		return tgbotapi.Message{}, errors.New("chat not found")
	}
	f.sent = append(f.sent, m)
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeBot) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeBot) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

type runnerFunc func(ctx context.Context) (int, error)

func (f runnerFunc) RunDueReminders(ctx context.Context) (int, error) { return f(ctx) }

func command(from int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: from},
		Chat:     &tgbotapi.Chat{ID: from},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}}
}

func TestClient_Alert(t *testing.T) {
	bot := newFakeBot()
	bot.failFor[2] = true
	c := newClient(bot, []int64{1, 2, 3})

	err := c.Alert(context.Background(), "persist failed")
	assert.Error(t, err)

	msgs := bot.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(1), msgs[0].ChatID)
	assert.Equal(t, int64(3), msgs[1].ChatID)
	assert.Equal(t, "persist failed", msgs[0].Text)
}

func TestClient_HandleUpdate_Reminders(t *testing.T) {
	bot := newFakeBot()
	c := newClient(bot, []int64{42})

	calls := 0
	runner := runnerFunc(func(context.Context) (int, error) {
		calls++
		return 3, nil
	})

	c.handleUpdate(context.Background(), command(42, "/reminders"), runner)

	assert.Equal(t, 1, calls)
	msgs := bot.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "3")
}

func TestClient_HandleUpdate_RunError(t *testing.T) {
	bot := newFakeBot()
	c := newClient(bot, []int64{42})

	runner := runnerFunc(func(context.Context) (int, error) {
		return 0, errors.New("notification store unavailable")
	})

	c.handleUpdate(context.Background(), command(42, "/reminders"), runner)

	msgs := bot.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "store unavailable")
}

func TestClient_HandleUpdate_NonAdmin(t *testing.T) {
	bot := newFakeBot()
	c := newClient(bot, []int64{42})

	runner := runnerFunc(func(context.Context) (int, error) {
		t.Error("runner must not be called for non-admins")
		return 0, nil
	})

	c.handleUpdate(context.Background(), command(7, "/reminders"), runner)
	c.handleUpdate(context.Background(), tgbotapi.Update{}, runner)

	msgs := bot.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(7), msgs[0].ChatID)
}

func TestClient_Listen(t *testing.T) {
	bot := newFakeBot()
	c := newClient(bot, []int64{42})

	ran := make(chan struct{}, 1)
	runner := runnerFunc(func(context.Context) (int, error) {
		ran <- struct{}{}
		return 0, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Listen(ctx, runner)
		close(done)
	}()

	bot.updates <- command(42, "/reminders")

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("command was not dispatched")
	}

	cancel()
	<-done

	bot.mu.Lock()
	defer bot.mu.Unlock()
	assert.True(t, bot.stopped)
}
