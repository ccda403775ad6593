package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingHandler always fails Handle, for error aggregation tests
type failingHandler struct {
	err error
}

func (f *failingHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (f *failingHandler) Handle(context.Context, slog.Record) error { return f.err }
func (f *failingHandler) WithAttrs([]slog.Attr) slog.Handler        { return f }
func (f *failingHandler) WithGroup(string) slog.Handler             { return f }

func TestMultiHandler_DispatchesToAll(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h1 := slog.NewTextHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelDebug})
	h2 := slog.NewJSONHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(NewMultiHandler(h1, h2))
	logger.Info("window opened", "operation_id", "op-1")

	assert.Contains(t, buf1.String(), "window opened")
	assert.Contains(t, buf2.String(), "window opened")
	assert.Contains(t, buf2.String(), "op-1")
}

func TestMultiHandler_RespectsLevels(t *testing.T) {
	var debugBuf, errorBuf bytes.Buffer
	debugHandler := slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	errorHandler := slog.NewTextHandler(&errorBuf, &slog.HandlerOptions{Level: slog.LevelError})

	multi := NewMultiHandler(debugHandler, errorHandler)
	logger := slog.New(multi)

	logger.Info("probe finished")

	assert.Contains(t, debugBuf.String(), "probe finished")
	assert.Empty(t, errorBuf.String())

	// The multi handler stays enabled as long as any child is
	assert.True(t, multi.Enabled(context.Background(), slog.LevelDebug))
}

func TestMultiHandler_AggregatesErrors(t *testing.T) {
	err1 := errors.New("sink one down")
	err2 := errors.New("sink two down")
	multi := NewMultiHandler(&failingHandler{err: err1}, &failingHandler{err: err2})

	record := slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0)
	err := multi.Handle(context.Background(), record)

	require.Error(t, err)
	assert.ErrorIs(t, err, err1)
	assert.ErrorIs(t, err, err2)
}

func TestMultiHandler_WithAttrsPropagates(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	multi := NewMultiHandler(inner).WithAttrs([]slog.Attr{slog.String("run_id", "r-42")})
	logger := slog.New(multi)
	logger.Info("attached")

	assert.Contains(t, buf.String(), "r-42")
}

func TestGenerateRunID_Unique(t *testing.T) {
	id1 := GenerateRunID()
	id2 := GenerateRunID()

	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
}
