package zapctx

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(w io.Writer, level zapcore.Level) *zap.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = ""
	cfg.CallerKey = ""
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core)
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, zapcore.InfoLevel)
	ctx := WithLogger(t.Context(), logger)
	Info(ctx, "hello")
	assert.Equal(t, "INFO\thello\n", buf.String())
}

func TestLoggerFallbackNilContext(t *testing.T) {
	assert.NotPanics(t, func() {
		Logger(nil) //nolint:staticcheck // exercising the nil path
	})
}

func TestLoggerFallbackNoLogger(t *testing.T) {
	var buf bytes.Buffer
	SetFallback(newLogger(&buf, zapcore.InfoLevel))
	defer SetFallback(nil)

	Info(t.Context(), "fallback used")
	assert.Equal(t, "INFO\tfallback used\n", buf.String())
}

func TestLoggerReturnsAttached(t *testing.T) {
	logger := zap.NewNop()
	ctx := WithLogger(t.Context(), logger)
	assert.Equal(t, logger, Logger(ctx))
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, zapcore.InfoLevel)
	ctx := WithLogger(t.Context(), logger)
	ctx = WithFields(ctx, zap.Int("foo", 999), zap.String("bar", "abc_abc"))
	Info(ctx, "hello")
	assert.Equal(t, "INFO\thello\t{\"foo\": 999, \"bar\": \"abc_abc\"}\n", buf.String())
}

func TestInlineFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, zapcore.InfoLevel)
	ctx := WithLogger(t.Context(), logger)
	Info(ctx, "hello", zap.Int("foo", 999))
	assert.Equal(t, "INFO\thello\t{\"foo\": 999}\n", buf.String())
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, zapcore.InfoLevel)
	ctx := WithLogger(t.Context(), logger)
	Debug(ctx, "dropped")
	Warn(ctx, "kept")
	Error(ctx, "also kept")
	assert.Equal(t, "WARN\tkept\nERROR\talso kept\n", buf.String())
}
