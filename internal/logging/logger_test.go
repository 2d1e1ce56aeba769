package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWithPath(t *testing.T) {
	t.Run("defaults to info on bad level", func(t *testing.T) {
		result := NewLoggerWithPath(Config{Level: "loud"})
		assert.Equal(t, zerolog.InfoLevel, result.Logger.GetLevel())
		assert.False(t, result.UsingFile)
	})

	t.Run("file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "contentloader.log")
		result := NewLoggerWithPath(Config{Level: "debug", Output: OutputFile, File: path})
		require.True(t, result.UsingFile)
		assert.Equal(t, path, result.FilePath)

		result.Logger.Debug().Str("query", "home").Msg("hello")
		require.NoError(t, result.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var line map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &line))
		assert.Equal(t, "home", line["query"])
		assert.Equal(t, "hello", line["message"])
	})

	t.Run("empty file path falls back", func(t *testing.T) {
		result := NewLoggerWithPath(Config{Output: OutputFile})
		assert.True(t, result.FallbackUsed)
		assert.NotEmpty(t, result.FallbackReason)
		assert.NoError(t, result.Close())
	})
}

func TestTraceIDHook(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Hook(traceHook{})
	ctx := ContextWithTraceID(context.Background(), "01TESTTRACE")

	logger.Info().Ctx(ctx).Msg("traced")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "01TESTTRACE", line["trace_id"])
}

func TestGetOrGenerateTraceID(t *testing.T) {
	generated := GetOrGenerateTraceID(context.Background())
	assert.Len(t, generated, 26)

	ctx := ContextWithTraceID(context.Background(), generated)
	assert.Equal(t, generated, GetOrGenerateTraceID(ctx))
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := ComponentLogger(zerolog.New(&buf), "cache")
	logger.Info().Msg("x")
	assert.Contains(t, buf.String(), `"component":"cache"`)
}
