package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if b.err != nil {
		return tgbotapi.Message{}, b.err
	}
	b.sent = append(b.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestSplitMessage(t *testing.T) {
	t.Run("short text is one part", func(t *testing.T) {
		assert.Equal(t, []string{"hello"}, SplitMessage("hello", 10))
	})

	t.Run("cuts at the last line break", func(t *testing.T) {
		parts := SplitMessage("aaaa\nbbbb\ncccc", 10)
		assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, parts)
	})

	t.Run("hard cut without line breaks", func(t *testing.T) {
		parts := SplitMessage(strings.Repeat("x", 25), 10)
		require.Len(t, parts, 3)
		assert.Len(t, parts[2], 5)
	})

	t.Run("counts characters not bytes", func(t *testing.T) {
		parts := SplitMessage(strings.Repeat("é", 12), 10)
		require.Len(t, parts, 2)
		assert.Equal(t, 10, len([]rune(parts[0])))
	})
}

func TestClient_SendMessage(t *testing.T) {
	bot := &fakeBot{}
	c := newClient(bot, 42)
	c.limiter = rate.NewLimiter(rate.Inf, 1)

	require.NoError(t, c.SendMessage(context.Background(), "*ENTRY* ACME"))
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(42), bot.sent[0].ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdown, bot.sent[0].ParseMode)
	assert.Equal(t, "*ENTRY* ACME", bot.sent[0].Text)
}

func TestClient_SendMessage_SplitsLongText(t *testing.T) {
	bot := &fakeBot{}
	c := newClient(bot, 42)
	c.limiter = rate.NewLimiter(rate.Inf, 1)

	text := strings.Repeat("line\n", MaxMessageLength/5+10)
	require.NoError(t, c.SendMessage(context.Background(), text))
	assert.Len(t, bot.sent, 2)
}

func TestClient_SendMessage_Errors(t *testing.T) {
	bot := &fakeBot{err: errors.New("bad request")}
	c := newClient(bot, 42)
	c.limiter = rate.NewLimiter(rate.Inf, 1)

	err := c.SendMessage(context.Background(), "x")
	assert.ErrorContains(t, err, "bad request")

	slow := newClient(&fakeBot{}, 42)
	slow.limiter = rate.NewLimiter(rate.Limit(0.001), 1)
	slow.limiter.Allow()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, slow.SendMessage(ctx, "x"))
}

func TestNoop(t *testing.T) {
	assert.NoError(t, NewNoop().SendMessage(context.Background(), "x"))
}
