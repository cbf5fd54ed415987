package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingFileGivesDefaults(t *testing.T) {
	t.Setenv(EnvConfig, filepath.Join(t.TempDir(), "absent.json"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Analysis.Interval, cfg.Analysis.Interval)
	assert.Equal(t, "round", cfg.Analysis.RuleSet)
	assert.Equal(t, 10, cfg.Analysis.MinSegmentLength)
}

func TestFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"analysis": {"window_proportion": 0.1, "rule_set": "mouse-sperm"}, "server": {"address": ":9000"}}`), 0644))
	t.Setenv(EnvConfig, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.Analysis.WindowProportion)
	assert.Equal(t, "mouse-sperm", cfg.Analysis.RuleSet)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, 4, cfg.Analysis.SegmentCount)
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"analysis": {"interval": -1}}`), 0644))
	_, err := LoadFile(bad)
	assert.ErrorContains(t, err, "interval")

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{`), 0644))
	_, err = LoadFile(broken)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Analysis.SegmentCount = 6
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 6, loaded.Analysis.SegmentCount)
}

func TestExpandUser(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	p, err := expandUser("~/x/y.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x", "y.json"), p)

	p, err = expandUser("/abs")
	require.NoError(t, err)
	assert.Equal(t, "/abs", p)
}

func TestTOMLConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[analysis]
segment_count = 7
rule_set = "pig-sperm"

[logging]
level = "debug"
`), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Analysis.SegmentCount)
	assert.Equal(t, "pig-sperm", cfg.Analysis.RuleSet)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 0.05, cfg.Analysis.WindowProportion)

	out := filepath.Join(dir, "saved.toml")
	require.NoError(t, cfg.Save(out))
	again, err := LoadFile(out)
	require.NoError(t, err)
	assert.Equal(t, cfg.Analysis, again.Analysis)
	assert.Equal(t, cfg.Server, again.Server)
}
