package export

import (
	"bytes"
	"encoding/csv"
	"image"
	"image/color"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/bmskinner/nma-sub021/internal/nucleus"
	"github.com/bmskinner/nma-sub021/internal/profile"
	"github.com/bmskinner/nma-sub021/pkg/geometry"
)

func rect(t *testing.T, x, y, w, h float64) *nucleus.Nucleus {
	t.Helper()
	n, err := nucleus.New(
		[]float64{x, x + w, x + w, x},
		[]float64{y, y, y + h, y + h},
		geometry.NewPoint2D(x+w/2, y+h/2),
		nucleus.DefaultOptions(),
	)
	require.NoError(t, err)
	return n
}

func TestMaskTIFFRoundTrip(t *testing.T) {
	n := rect(t, 10, 20, 30, 20)

	var buf bytes.Buffer
	origin, err := WriteMaskTIFF(&buf, n)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(10, 20), origin)

	img, err := tiff.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 31, img.Bounds().Dx())
	assert.Equal(t, 21, img.Bounds().Dy())

	inside := color.GrayModel.Convert(img.At(15, 10)).(color.Gray)
	outside := color.GrayModel.Convert(img.At(30, 20)).(color.Gray)
	assert.Equal(t, uint8(255), inside.Y)
	assert.Equal(t, uint8(0), outside.Y)
}

func TestSaveMasks(t *testing.T) {
	dir := t.TempDir()
	ns := []*nucleus.Nucleus{rect(t, 0, 0, 20, 20), rect(t, 5, 5, 30, 10)}

	paths, err := SaveMasks(dir, ns)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestOverlayAndSheet(t *testing.T) {
	n := rect(t, 0, 0, 40, 30)
	require.NoError(t, n.SegmentEvenly(4))

	img := Overlay(n, 2)
	assert.Equal(t, (41+4)*2, img.Bounds().Dx())

	palette := SegmentPalette(4)
	require.Len(t, palette, 4)
	assert.NotEqual(t, palette[0], palette[1])

	sheet := ContactSheet([]image.Image{img, Overlay(rect(t, 0, 0, 20, 20), 1), img}, 2)
	assert.Equal(t, 2*img.Bounds().Dx(), sheet.Bounds().Dx())
	assert.Equal(t, 2*img.Bounds().Dy(), sheet.Bounds().Dy())
}

func TestOnSource(t *testing.T) {
	n := rect(t, 5, 5, 40, 30)
	require.NoError(t, n.SegmentEvenly(2))

	src := image.NewGray(image.Rect(0, 0, 60, 50))
	out := OnSource(src, n)
	assert.Equal(t, src.Bounds().Size(), out.Bounds().Size())

	_, _, _, a := out.At(25, 5).RGBA()
	assert.NotZero(t, a)
	r, g, b, _ := out.At(25, 5).RGBA()
	assert.NotZero(t, r+g+b, "border pixel is drawn")
	r, g, b, _ = out.At(25, 20).RGBA()
	assert.Zero(t, r+g+b, "interior is untouched")
}

func TestProfilesCSV(t *testing.T) {
	ns := []*nucleus.Nucleus{rect(t, 0, 0, 20, 20), rect(t, 0, 0, 30, 20)}

	var buf bytes.Buffer
	require.NoError(t, WriteProfilesCSV(&buf, ns, profile.Angle, 50))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Len(t, rows[0], 51)
	assert.Equal(t, ns[1].ID().String(), rows[2][0])
}

func TestMeasurementsCSV(t *testing.T) {
	ns := []*nucleus.Nucleus{rect(t, 0, 0, 20, 20)}

	var buf bytes.Buffer
	require.NoError(t, WriteMeasurementsCSV(&buf, ns))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "area", rows[0][3])
	assert.Equal(t, "400.0000", rows[1][3])
}
