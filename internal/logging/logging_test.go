package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wondertwin-ai/loyaltynft/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn")
	l.Info("hidden")
	l.Warn("shown", "id", "NFT-1-abcd")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "NFT-1-abcd", line["id"])
}

func TestOutputFallback(t *testing.T) {
	var buf bytes.Buffer
	w, closer := Output(config.LogConfig{}, &buf)
	assert.Same(t, &buf, w)
	assert.Nil(t, closer)
}

func TestOutputRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "loyaltynft.log")
	w, closer := Output(config.LogConfig{File: path, MaxSizeMB: 1}, nil)
	require.NotNil(t, closer)

	New(w, "info").Info("record minted", "id", "NFT-1-abcd")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "record minted")
}
