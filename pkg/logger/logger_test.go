package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_FallsBackToInfoOnBadLevel(t *testing.T) {
	l, err := New("verbose", "console")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestContextFieldsAreAppended(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{Logger: zap.New(core)}

	ctx := WithContextFields(context.Background(), StringField("symbol", "AAPL"))
	ctx = WithContextFields(ctx, StringField("strategy_type", "B"))
	l.InfoContext(ctx, "evaluated", IntField("stage", 2))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "AAPL", fields["symbol"])
	assert.Equal(t, "B", fields["strategy_type"])
	assert.EqualValues(t, 2, fields["stage"])
}
