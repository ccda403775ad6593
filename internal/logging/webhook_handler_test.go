package logging

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateWebhookURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid https", "https://hooks.example.com/services/T0/B0/xyz", false},
		{"http rejected", "http://hooks.example.com/services", true},
		{"empty rejected", "", true},
		{"no host rejected", "https://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateWebhookURL(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidWebhookURL)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewWebhookHandler_RejectsBadURL(t *testing.T) {
	_, err := NewWebhookHandler("http://insecure.example.com", "run-1")
	assert.ErrorIs(t, err, ErrInvalidWebhookURL)
}

func TestWebhookHandler_EnabledLevels(t *testing.T) {
	handler, err := NewWebhookHandler("https://hooks.example.com/services/T/B/x", "run-1")
	require.NoError(t, err)

	ctx := context.Background()
	assert.False(t, handler.Enabled(ctx, slog.LevelDebug))
	assert.False(t, handler.Enabled(ctx, slog.LevelInfo))
	assert.True(t, handler.Enabled(ctx, slog.LevelWarn))
	assert.True(t, handler.Enabled(ctx, slog.LevelError))
}

func TestWebhookHandler_InfoIsDropped(t *testing.T) {
	handler, err := NewWebhookHandler("https://hooks.example.com/services/T/B/x", "run-1")
	require.NoError(t, err)

	// Below threshold: no HTTP request is attempted, so no error either
	record := slog.NewRecord(time.Now(), slog.LevelInfo, "probe ok", 0)
	assert.NoError(t, handler.Handle(context.Background(), record))
}

func TestWebhookHandler_WithAttrsAccumulates(t *testing.T) {
	handler, err := NewWebhookHandler("https://hooks.example.com/services/T/B/x", "run-1")
	require.NoError(t, err)

	child, ok := handler.WithAttrs([]slog.Attr{slog.String("component", "terminate")}).(*WebhookHandler)
	require.True(t, ok)
	assert.Len(t, child.attrs, 1)
	assert.Empty(t, handler.attrs)
}
