// Package image loads the micrographs nuclei were traced from and reads
// their spatial calibration.
package image

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/tiff"
)

// ErrNoResolution is returned when a file carries no usable resolution tags.
var ErrNoResolution = errors.New("no resolution tags found")

// TIFF tag ids and field types used for calibration.
const (
	tagXResolution    = 282
	tagYResolution    = 283
	tagResolutionUnit = 296

	typeShort    = 3
	typeRational = 5

	unitNone       = 1
	unitInch       = 2
	unitCentimetre = 3

	micronsPerInch       = 25400.0
	micronsPerCentimetre = 10000.0
)

// Source is a decoded micrograph.
type Source struct {
	Path  string
	Image image.Image

	// PixelsPerMicron is read from TIFF resolution tags; zero when the file
	// is uncalibrated.
	PixelsPerMicron float64
}

// Load decodes the image at path.
func Load(path string) (*Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	src := &Source{Path: path, Image: img}
	if isTIFF(path) {
		if ppm, err := PixelsPerMicron(path); err == nil {
			src.PixelsPerMicron = ppm
		}
	}
	return src, nil
}

// Width returns the image width in pixels.
func (s *Source) Width() int {
	if s.Image == nil {
		return 0
	}
	return s.Image.Bounds().Dx()
}

// Height returns the image height in pixels.
func (s *Source) Height() int {
	if s.Image == nil {
		return 0
	}
	return s.Image.Bounds().Dy()
}

// PixelsPerMicron reads the horizontal resolution of a TIFF file without
// decoding its pixels.
func PixelsPerMicron(path string) (float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	return readResolution(file)
}

func readResolution(r io.ReadSeeker) (float64, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, err
	}

	var order binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0, fmt.Errorf("not a valid TIFF file")
	}

	if _, err := r.Seek(int64(order.Uint32(header[4:8])), io.SeekStart); err != nil {
		return 0, err
	}
	var entries uint16
	if err := binary.Read(r, order, &entries); err != nil {
		return 0, err
	}

	var xRes, yRes float64
	unit := uint16(unitInch)
	entry := make([]byte, 12)
	for i := uint16(0); i < entries; i++ {
		if _, err := io.ReadFull(r, entry); err != nil {
			return 0, err
		}
		tag := order.Uint16(entry[0:2])
		fieldType := order.Uint16(entry[2:4])

		switch {
		case tag == tagXResolution && fieldType == typeRational:
			xRes = readRational(r, int64(order.Uint32(entry[8:12])), order)
		case tag == tagYResolution && fieldType == typeRational:
			yRes = readRational(r, int64(order.Uint32(entry[8:12])), order)
		case tag == tagResolutionUnit && fieldType == typeShort:
			unit = order.Uint16(entry[8:10])
		}
	}

	res := xRes
	if res == 0 {
		res = yRes
	}
	if res == 0 {
		return 0, ErrNoResolution
	}

	switch unit {
	case unitCentimetre:
		return res / micronsPerCentimetre, nil
	case unitInch:
		return res / micronsPerInch, nil
	case unitNone:
		return 0, ErrNoResolution
	default:
		return 0, fmt.Errorf("unknown resolution unit %d", unit)
	}
}

// readRational reads a RATIONAL value at offset and restores the read position.
func readRational(r io.ReadSeeker, offset int64, order binary.ByteOrder) float64 {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}
	defer r.Seek(pos, io.SeekStart)

	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return 0
	}
	var num, denom uint32
	if binary.Read(r, order, &num) != nil || binary.Read(r, order, &denom) != nil || denom == 0 {
		return 0
	}
	return float64(num) / float64(denom)
}

func isTIFF(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".tiff" || ext == ".tif"
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
