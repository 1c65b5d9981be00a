// ABOUTME: Remote chat collaborator over the Telegram Bot API
// ABOUTME: Best-effort sendMessage plus offset-tracked getUpdates polling

package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Message is one inbound chat message. SessionID is the chat id the
// message arrived from.
type Message struct {
	UpdateID  int64
	SessionID string
	Text      string
}

// Client wraps the Bot API behind the coordinator's Messenger contract.
// Delivery is best-effort: send failures are logged, never retried, and
// never block the caller's tick.
type Client struct {
	bot    *tgbotapi.BotAPI
	logger *slog.Logger

	offset int // highest update id consumed so far
}

// New connects a client against the production API. The bot identity is
// verified on construction; a bad token fails here, not on first send.
func New(token string, logger *slog.Logger) (*Client, error) {
	return NewWithEndpoint(tgbotapi.APIEndpoint, token, logger)
}

// NewWithEndpoint connects against a custom endpoint (tests). endpoint
// follows the Bot API template form, e.g. "https://host/bot%s/%s".
func NewWithEndpoint(endpoint, token string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("connecting to bot api: %w", err)
	}
	return &Client{
		bot:    bot,
		logger: logger.With("component", "telegram", "bot", bot.Self.UserName),
	}, nil
}

// SendMessage delivers Markdown text to a session. Returns false on any
// failure. The ctx parameter satisfies the Messenger contract; the
// underlying client enforces its own request timeout.
func (c *Client) SendMessage(_ context.Context, sessionID, text string) bool {
	chatID, err := strconv.ParseInt(sessionID, 10, 64)
	if err != nil {
		c.logger.Warn("send to malformed session id", "session", sessionID)
		return false
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := c.bot.Send(msg); err != nil {
		c.logger.Warn("send failed", "session", sessionID, "error", err)
		return false
	}
	return true
}

// PollNewMessages fetches updates past the last consumed offset. Updates
// without message text (edits, stickers, joins) are skipped but still
// advance the offset so they are not refetched.
func (c *Client) PollNewMessages(_ context.Context) ([]Message, error) {
	cfg := tgbotapi.NewUpdate(c.offset + 1)
	updates, err := c.bot.GetUpdates(cfg)
	if err != nil {
		return nil, fmt.Errorf("fetching updates: %w", err)
	}

	var msgs []Message
	for _, u := range updates {
		if u.UpdateID > c.offset {
			c.offset = u.UpdateID
		}
		if u.Message == nil || u.Message.Chat == nil || u.Message.Text == "" {
			continue
		}
		msgs = append(msgs, Message{
			UpdateID:  int64(u.UpdateID),
			SessionID: strconv.FormatInt(u.Message.Chat.ID, 10),
			Text:      u.Message.Text,
		})
	}
	return msgs, nil
}
