package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// MaxMessageLength is the Telegram limit for a single message body, in characters.
const MaxMessageLength = 4096

// Notifier delivers operator messages about position activity.
type Notifier interface {
	SendMessage(ctx context.Context, text string) error
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type client struct {
	bot     sender
	chatID  int64
	limiter *rate.Limiter
}

// NewClient connects to the bot API and returns a Notifier bound to one chat.
// Sends are paced at one per second, the per-chat limit Telegram enforces.
func NewClient(botToken string, chatID int64) (Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect bot: %w", err)
	}
	return newClient(bot, chatID), nil
}

func newClient(bot sender, chatID int64) *client {
	return &client{
		bot:     bot,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// SendMessage sends text as Markdown, split into several messages when it exceeds MaxMessageLength.
func (c *client) SendMessage(ctx context.Context, text string) error {
	for _, part := range SplitMessage(text, MaxMessageLength) {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(c.chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := c.bot.Send(msg); err != nil {
			return fmt.Errorf("telegram: send message: %w", err)
		}
	}
	return nil
}

// SplitMessage cuts text into chunks of at most limit characters, preferring line breaks as cut points.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut := limit
		if i := strings.LastIndex(string(runes[:limit]), "\n"); i > 0 {
			cut = len([]rune(string(runes[:limit])[:i]))
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

type noop struct{}

// NewNoop returns a Notifier that drops every message, used when notifications are disabled.
func NewNoop() Notifier { return noop{} }

func (noop) SendMessage(context.Context, string) error { return nil }
