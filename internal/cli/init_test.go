package cli

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupLogger_Level(t *testing.T) {
	logger := SetupLogger("warn", "test")
	assert.Equal(t, "test", logger.Component())
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}

func TestInstanceName(t *testing.T) {
	name := InstanceName("api")
	assert.True(t, strings.HasPrefix(name, "api-"))
	assert.Greater(t, len(name), len("api-"))
}
