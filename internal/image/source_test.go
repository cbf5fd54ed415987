package image

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
)

// tiffHeader builds a little-endian TIFF directory holding only an
// XResolution of num/denom in the given unit.
func tiffHeader(num, denom uint32, unit uint16) []byte {
	var b bytes.Buffer
	le := binary.LittleEndian
	b.WriteString("II")
	binary.Write(&b, le, uint16(42))
	binary.Write(&b, le, uint32(8))

	binary.Write(&b, le, uint16(2))
	// XResolution -> rational at offset 38
	binary.Write(&b, le, uint16(tagXResolution))
	binary.Write(&b, le, uint16(typeRational))
	binary.Write(&b, le, uint32(1))
	binary.Write(&b, le, uint32(38))
	// ResolutionUnit, value inline
	binary.Write(&b, le, uint16(tagResolutionUnit))
	binary.Write(&b, le, uint16(typeShort))
	binary.Write(&b, le, uint32(1))
	binary.Write(&b, le, unit)
	binary.Write(&b, le, uint16(0))
	binary.Write(&b, le, uint32(0))

	binary.Write(&b, le, num)
	binary.Write(&b, le, denom)
	return b.Bytes()
}

func TestReadResolution(t *testing.T) {
	ppm, err := readResolution(bytes.NewReader(tiffHeader(20000, 1, unitCentimetre)))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, ppm, 1e-9)

	ppm, err = readResolution(bytes.NewReader(tiffHeader(25400, 1, unitInch)))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, ppm, 1e-9)

	_, err = readResolution(bytes.NewReader(tiffHeader(300, 1, unitNone)))
	assert.ErrorIs(t, err, ErrNoResolution)

	_, err = readResolution(bytes.NewReader([]byte("GIF89a..")))
	assert.Error(t, err)
}

func sample() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 12, 8))
	img.SetGray(3, 4, color.Gray{Y: 200})
	return img
}

func TestLoadTIFFAndPNG(t *testing.T) {
	dir := t.TempDir()

	tifPath := filepath.Join(dir, "cell.tif")
	f, err := os.Create(tifPath)
	require.NoError(t, err)
	require.NoError(t, tiff.Encode(f, sample(), nil))
	require.NoError(t, f.Close())

	src, err := Load(tifPath)
	require.NoError(t, err)
	assert.Equal(t, 12, src.Width())
	assert.Equal(t, 8, src.Height())
	// The encoder writes 72 dpi.
	assert.InDelta(t, 72/micronsPerInch, src.PixelsPerMicron, 1e-9)

	pngPath := filepath.Join(dir, "cell.png")
	f, err = os.Create(pngPath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, sample()))
	require.NoError(t, f.Close())

	src, err = Load(pngPath)
	require.NoError(t, err)
	assert.Zero(t, src.PixelsPerMicron)

	_, err = Load(filepath.Join(dir, "missing.tif"))
	assert.Error(t, err)
}

func TestIsSupportedFormat(t *testing.T) {
	assert.True(t, IsSupportedFormat("a.TIF"))
	assert.True(t, IsSupportedFormat("b.jpeg"))
	assert.False(t, IsSupportedFormat("c.json"))
}
