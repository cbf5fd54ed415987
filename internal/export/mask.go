// Package export writes nuclei out as images and tables.
package export

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"

	"github.com/bmskinner/nma-sub021/internal/nucleus"
)

// WriteMaskTIFF writes the nucleus's filled outline as a deflate-compressed
// 8-bit TIFF. The returned point is the mask's origin in image coordinates.
func WriteMaskTIFF(w io.Writer, n *nucleus.Nucleus) (image.Point, error) {
	mask, origin := n.Mask()
	gray := image.NewGray(mask.Bounds())
	for i, a := range mask.Pix {
		gray.Pix[i] = a
	}
	if err := tiff.Encode(w, gray, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return origin, fmt.Errorf("encode mask for nucleus %s: %w", n.ID(), err)
	}
	return origin, nil
}

// SaveMasks writes one <id>.tiff mask per nucleus into dir and returns the
// paths written.
func SaveMasks(dir string, nuclei []*nucleus.Nucleus) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	var paths []string
	for _, n := range nuclei {
		path := filepath.Join(dir, n.ID().String()+".tiff")
		f, err := os.Create(path)
		if err != nil {
			return paths, err
		}
		_, err = WriteMaskTIFF(f, n)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
