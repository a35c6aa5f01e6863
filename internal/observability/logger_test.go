package observability_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Garmelon/tablejohn/internal/observability"
)

func TestNewLoggerRespectsLevel(t *testing.T) {
	logger := observability.NewLogger(observability.Config{Level: slog.LevelWarn, JSON: true})
	ctx := context.Background()

	assert.False(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.True(t, logger.Enabled(ctx, slog.LevelWarn))
}
