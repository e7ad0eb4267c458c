package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelInfo, "text", &buf)

	logger.Info("job created", "job_id", "backup-database")

	assert.Contains(t, buf.String(), "job created")
	assert.Contains(t, buf.String(), "job_id=backup-database")
}

func TestNewLoggerWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelInfo, "JSON", &buf)

	logger.Info("job created", "job_id", "backup-database")

	assert.Contains(t, buf.String(), `"msg":"job created"`)
	assert.Contains(t, buf.String(), `"job_id":"backup-database"`)
}

func TestNewLoggerWithWriter_UnknownFormatIsText(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerWithWriter(slog.LevelInfo, "xml", &buf).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelWarn, "text", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLoggerWithWriter_ComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelDebug, "text", &buf).With("component", "scheduler")

	logger.Debug("tick", "dispatched", 2)

	assert.Contains(t, buf.String(), "component=scheduler")
	assert.Contains(t, buf.String(), "dispatched=2")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"Warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.input), tt.input)
	}
}

func TestLookupLevel(t *testing.T) {
	level, err := LookupLevel(" error ")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelError, level)

	_, err = LookupLevel("verbose")
	assert.Error(t, err)
}

func TestValidFormat(t *testing.T) {
	assert.True(t, ValidFormat("text"))
	assert.True(t, ValidFormat("JSON"))
	assert.False(t, ValidFormat("logfmt"))
}
