// Package telegram is the admin side of the reminder bot.
//
// It pushes operator alerts to the configured admin chats and answers the
// /reminders command, which triggers a reminder pass on demand.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"slices"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/wb-go/wbf/zlog"
)

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// ReminderRunner runs one reminder pass.
type ReminderRunner interface {
	RunDueReminders(ctx context.Context) (int, error)
}

// Client represents a Telegram bot used by admins.
type Client struct {
	bot    botAPI
	admins []int64 // chat ids allowed to run commands and receiving alerts
}

// NewClient connects to the Bot API with the given token.
func NewClient(token string, admins []int64) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}

	return newClient(bot, admins), nil
}

func newClient(bot botAPI, admins []int64) *Client {
	return &Client{bot: bot, admins: admins}
}

// Alert sends text to every admin. All admins are attempted; the joined
// errors are returned.
func (c *Client) Alert(ctx context.Context, text string) error {
	var errs []error
	for _, id := range c.admins {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.bot.Send(tgbotapi.NewMessage(id, text)); err != nil {
			errs = append(errs, fmt.Errorf("telegram: alert %d: %w", id, err))
		}
	}

	return errors.Join(errs...)
}

// Listen consumes bot updates until ctx is done and dispatches admin commands.
func (c *Client) Listen(ctx context.Context, runner ReminderRunner) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := c.bot.GetUpdatesChan(u)
	defer c.bot.StopReceivingUpdates()

	zlog.Logger.Info().Msg("telegram command listener started")

	for {
		select {
		case <-ctx.Done():
			zlog.Logger.Info().Msg("telegram command listener stopped")
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			c.handleUpdate(ctx, upd, runner)
		}
	}
}

func (c *Client) handleUpdate(ctx context.Context, upd tgbotapi.Update, runner ReminderRunner) {
	msg := upd.Message
	if msg == nil || !msg.IsCommand() || msg.From == nil {
		return
	}

	if !slices.Contains(c.admins, msg.From.ID) {
		zlog.Logger.Warn().Int64("user_id", msg.From.ID).Str("command", msg.Command()).Msg("command from non-admin ignored")
		c.reply(msg.Chat.ID, "⛔️ Access denied.")
		return
	}

	switch msg.Command() {
	case "reminders":
		sent, err := runner.RunDueReminders(ctx)
		if err != nil {
			zlog.Logger.Error().Err(err).Msg("manual reminder run failed")
			c.reply(msg.Chat.ID, "❌ Reminder run failed: "+err.Error())
			return
		}
		c.reply(msg.Chat.ID, fmt.Sprintf("✅ Reminders sent: %d", sent))
	case "start", "help":
		c.reply(msg.Chat.ID, "/reminders - send all due WhatsApp reminders now")
	}
}

func (c *Client) reply(chatID int64, text string) {
	if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		zlog.Logger.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to send telegram reply")
	}
}
