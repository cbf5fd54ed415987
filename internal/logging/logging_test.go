package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmskinner/nma-sub021/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func TestTraditionalHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, "info", "traditional")

	logger.Debug("hidden")
	logger.With("nucleus", "abc").Info("reversed", "rp", 12)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[INFO] reversed [nucleus=abc rp=12]")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, "debug", "json")
	LogJobStart(logger, "reverse", 3, nil)
	LogJobComplete(logger, "reverse", time.Second, map[string]any{"ok": 3})
	LogJobError(logger, "reverse", time.Second, errors.New("bad"))

	out := buf.String()
	assert.Contains(t, out, `"msg":"job started"`)
	assert.Contains(t, out, `"duration_ms":1000`)
	assert.Contains(t, out, `"error":"bad"`)
}

func TestSetupWritesLogFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := config.Default()
	cfg.Logging.FileOutput = true
	cfg.Logging.LogDir = filepath.Join(t.TempDir(), "logs")
	cfg.Logging.Format = "traditional"

	logger, closer, err := Setup(cfg)
	require.NoError(t, err)
	logger.Info("hello file")
	require.NoError(t, closer.Close())

	entries, err := os.ReadDir(cfg.Logging.LogDir)
	require.NoError(t, err)
	var found bool
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" && e.Type().IsRegular() {
			data, err := os.ReadFile(filepath.Join(cfg.Logging.LogDir, e.Name()))
			require.NoError(t, err)
			found = bytes.Contains(data, []byte("hello file"))
		}
	}
	assert.True(t, found)
}
