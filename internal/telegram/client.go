// Package telegram delivers system notifications through the Telegram Bot API
// and relays bot commands to the dashboard.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/derivwatch/internal/logger"
	"github.com/rewired-gh/derivwatch/internal/models"
)

// DefaultAutoDelete is how long a system notification stays in the chat.
const DefaultAutoDelete = 10 * time.Second

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	autoDelete     time.Duration
}

// Command is a bot command received from the configured chat.
type Command struct {
	Name string
	Args string
}

// NewClient creates a new Telegram client. Creating the bot authenticates the
// token, so an error here means system notifications are not permitted.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase, autoDelete time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	if autoDelete < 0 {
		autoDelete = 0
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		autoDelete:     autoDelete,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and
// hands commands from the configured chat to handle. /ping is answered
// directly. It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, handle func(Command)) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil || !update.Message.IsCommand() {
					continue
				}
				if update.Message.Chat.ID != c.chatID {
					logger.Warn("Ignoring command from unknown chat %d", update.Message.Chat.ID)
					continue
				}
				c.handleCommand(update.Message, handle)
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message, handle func(Command)) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	default:
		handle(Command{Name: msg.Command(), Args: strings.TrimSpace(msg.CommandArguments())})
	}
}

// Reply sends plain text to the configured chat.
func (c *Client) Reply(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	_, err := c.bot.Send(msg)
	return err
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		sent, err := c.bot.Send(msg)
		if err == nil {
			return sent, nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return tgbotapi.Message{}, fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// Notify delivers a system notification and schedules its removal after the
// auto-delete delay.
func (c *Client) Notify(n models.SystemNotification) error {
	sent, err := c.sendMarkdownV2(formatNotification(n))
	if err != nil {
		return err
	}
	if c.autoDelete > 0 {
		time.AfterFunc(c.autoDelete, func() {
			if _, err := c.bot.Request(tgbotapi.NewDeleteMessage(c.chatID, sent.MessageID)); err != nil {
				logger.Debug("Failed to auto-delete notification %d: %v", sent.MessageID, err)
			}
		})
	}
	return nil
}

// SendError sends a polling error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Polling error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	_, err := c.sendMarkdownV2(text)
	return err
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Polling recovered* after %d consecutive failure\\(s\\)", failureCount)
	_, err := c.sendMarkdownV2(text)
	return err
}

// formatNotification renders a system notification as MarkdownV2: icon and
// bold title on the first line, body below.
func formatNotification(n models.SystemNotification) string {
	var b strings.Builder
	if n.Icon != "" {
		b.WriteString(n.Icon)
		b.WriteString(" ")
	}
	b.WriteString("*")
	b.WriteString(escapeMarkdownV2(n.Title))
	b.WriteString("*")
	if n.Body != "" {
		b.WriteString("\n")
		b.WriteString(escapeMarkdownV2(n.Body))
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
