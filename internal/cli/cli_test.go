package cli

import (
	"bytes"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/bmskinner/nma-sub021/internal/config"
	"github.com/bmskinner/nma-sub021/internal/project"
)

const outlines = `[
  {"x": [0, 40, 40, 0], "y": [0, 0, 30, 30], "source": {"file": "a.tiff"}},
  {"x": [0, 42, 42, 0], "y": [0, 0, 30, 30], "source": {"file": "b.tiff"}},
  {"x": [0, 44, 44, 0], "y": [0, 0, 32, 32], "source": {"file": "c.tiff"}}
]`

type harness struct {
	t       *testing.T
	dir     string
	dataset string
	cfg     *config.Config
}

func newHarness(t *testing.T) *harness {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Analysis.Workers = 2
	cfg.Paths.DatabasePath = filepath.Join(dir, "nma.db")
	return &harness{t: t, dir: dir, dataset: filepath.Join(dir, "set.nmd"), cfg: cfg}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	root := NewRoot(h.cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), &out)
	cmd := NewRootCmd(root)
	cmd.SetArgs(append([]string{"--dataset", h.dataset}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) importSample() {
	h.t.Helper()
	path := filepath.Join(h.dir, "outlines.json")
	require.NoError(h.t, os.WriteFile(path, []byte(outlines), 0644))
	out, err := h.run("import", path)
	require.NoError(h.t, err)
	assert.Contains(h.t, out, "imported 3 nuclei")
}

func TestImportListSegmentValidate(t *testing.T) {
	h := newHarness(t)
	h.importSample()

	out, err := h.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "3 nuclei")
	assert.Contains(t, out, "rule set round")
	assert.Contains(t, out, "b.tiff")

	out, err = h.run("segment", "--count", "4")
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(out, "["))

	_, err = h.run("validate")
	require.NoError(t, err)

	out, err = h.run("reverse")
	require.NoError(t, err)
	assert.Contains(t, out, "reversed 3 nuclei")

	_, err = h.run("validate")
	require.NoError(t, err)

	f, err := project.Load(h.dataset)
	require.NoError(t, err)
	for _, st := range f.Nuclei {
		assert.True(t, st.Reversed)
		assert.Len(t, st.Segments, 4)
	}
}

func TestProfileAndOrient(t *testing.T) {
	h := newHarness(t)
	h.importSample()

	out, err := h.run("profile", "--type", "radius")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)

	_, err = h.run("profile", "--type", "curvature")
	assert.Error(t, err)

	_, err = h.run("profile", "not-a-uuid")
	assert.Error(t, err)

	out, err = h.run("orient")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)
}

func TestCommandsNeedDataset(t *testing.T) {
	h := newHarness(t)
	for _, args := range [][]string{{"list"}, {"segment"}, {"validate"}, {"reverse"}} {
		_, err := h.run(args...)
		assert.Error(t, err, args[0])
	}
}

func TestExport(t *testing.T) {
	h := newHarness(t)
	h.importSample()
	_, err := h.run("segment")
	require.NoError(t, err)

	masks := filepath.Join(h.dir, "masks")
	out, err := h.run("export", "masks", masks)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 3 masks")
	entries, err := os.ReadDir(masks)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	sheet := filepath.Join(h.dir, "sheet.png")
	_, err = h.run("export", "overlay", sheet, "--cols", "2")
	require.NoError(t, err)
	assert.FileExists(t, sheet)

	csv := filepath.Join(h.dir, "profiles.csv")
	_, err = h.run("export", "profiles", csv, "--length", "50")
	require.NoError(t, err)
	data, err := os.ReadFile(csv)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 4)

	_, err = h.run("export", "measurements", filepath.Join(h.dir, "m.csv"))
	require.NoError(t, err)
}

func TestStorePushPull(t *testing.T) {
	h := newHarness(t)
	h.importSample()
	_, err := h.run("segment")
	require.NoError(t, err)

	out, err := h.run("store", "push")
	require.NoError(t, err)
	assert.Contains(t, out, "stored 3 nuclei")

	other := newHarness(t)
	other.cfg.Paths.DatabasePath = h.cfg.Paths.DatabasePath
	out, err = other.run("store", "pull")
	require.NoError(t, err)
	assert.Contains(t, out, "loaded 3 nuclei")

	_, err = other.run("validate")
	require.NoError(t, err)
}

func TestConfigAndVersion(t *testing.T) {
	h := newHarness(t)

	path := filepath.Join(h.dir, "cfg", "config.toml")
	out, err := h.run("config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	loaded, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, h.cfg.Analysis, loaded.Analysis)

	out, err = h.run("config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "rule set:           round")

	out, err = h.run("version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "nma "))
}

func TestImportCalibrationAndOutlines(t *testing.T) {
	h := newHarness(t)
	images := filepath.Join(h.dir, "images")
	require.NoError(t, os.MkdirAll(images, 0755))
	f, err := os.Create(filepath.Join(images, "a.tiff"))
	require.NoError(t, err)
	require.NoError(t, tiff.Encode(f, image.NewGray(image.Rect(0, 0, 64, 48)), nil))
	require.NoError(t, f.Close())

	path := filepath.Join(h.dir, "outlines.json")
	require.NoError(t, os.WriteFile(path, []byte(outlines), 0644))
	_, err = h.run("import", path, "--images", images)
	require.NoError(t, err)

	ds, err := project.Load(h.dataset)
	require.NoError(t, err)
	scales := map[string]float64{}
	for _, st := range ds.Nuclei {
		scales[st.Source.File] = st.Scale
	}
	assert.InDelta(t, 72/25400.0, scales["a.tiff"], 1e-9)
	assert.Equal(t, 1.0, scales["b.tiff"])

	dir := filepath.Join(h.dir, "outlines")
	out, err := h.run("export", "outlines", dir, "--images", images)
	assert.Error(t, err, "b.tiff and c.tiff are missing")
	assert.Contains(t, out, "wrote 1 outlines")
	assert.FileExists(t, filepath.Join(dir, ds.Nuclei[0].ID.String()+".png"))
}
