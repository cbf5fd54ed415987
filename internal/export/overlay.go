package export

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/nucleus"
)

// SegmentPalette returns n visually distinct segment colours. The same n
// always yields the same colours.
func SegmentPalette(n int) []color.Color {
	out := make([]color.Color, n)
	for i := range out {
		h := 360 * float64(i) / float64(max(n, 1))
		out[i] = colorful.Hcl(h, 0.6, 0.65).Clamped()
	}
	return out
}

// Overlay draws the nucleus border on a dark background with each border
// point coloured by its segment and the reference point marked in white.
// scale enlarges the result with nearest-neighbour sampling.
func Overlay(n *nucleus.Nucleus, scale int) *image.NRGBA {
	c := n.Contour()
	b := c.Bounds()
	origin := image.Pt(int(math.Floor(b.X))-2, int(math.Floor(b.Y))-2)
	w := int(math.Ceil(b.X+b.Width)) - origin.X + 3
	h := int(math.Ceil(b.Y+b.Height)) - origin.Y + 3

	img := imaging.New(w, h, color.NRGBA{A: 255})
	drawBorder(img, n, origin)

	if scale > 1 {
		img = imaging.Resize(img, w*scale, h*scale, imaging.NearestNeighbor)
	}
	return img
}

// OnSource draws the nucleus border over a copy of the micrograph it was
// traced from.
func OnSource(src image.Image, n *nucleus.Nucleus) *image.NRGBA {
	img := imaging.Clone(src)
	drawBorder(img, n, src.Bounds().Min)
	return img
}

// drawBorder colours each border point by its segment and marks the
// reference point with a cross. origin is subtracted from border coordinates.
func drawBorder(img *image.NRGBA, n *nucleus.Nucleus, origin image.Point) {
	c := n.Contour()
	ring := n.Segments()
	palette := SegmentPalette(ring.Count())
	order := make(map[string]int, ring.Count())
	for i, id := range ring.IDs() {
		order[id.String()] = i
	}

	pts := c.Points()
	for i, p := range pts {
		col := color.Color(color.White)
		if seg, ok := ring.SegmentContaining(i); ok {
			col = palette[order[seg.ID.String()]]
		}
		img.Set(int(math.Round(p.X))-origin.X, int(math.Round(p.Y))-origin.Y, col)
	}

	if rp, err := n.LandmarkFor(landmark.Reference); err == nil {
		p := pts[rp]
		x, y := int(math.Round(p.X))-origin.X, int(math.Round(p.Y))-origin.Y
		for d := -2; d <= 2; d++ {
			img.Set(x+d, y, color.White)
			img.Set(x, y+d, color.White)
		}
	}
}

// ContactSheet tiles images into a grid cols wide, each cell sized to the
// largest image.
func ContactSheet(images []image.Image, cols int) *image.NRGBA {
	if len(images) == 0 {
		return imaging.New(1, 1, color.NRGBA{A: 255})
	}
	if cols < 1 {
		cols = 1
	}
	cellW, cellH := 0, 0
	for _, im := range images {
		cellW = max(cellW, im.Bounds().Dx())
		cellH = max(cellH, im.Bounds().Dy())
	}
	rows := (len(images) + cols - 1) / cols
	sheet := imaging.New(cols*cellW, rows*cellH, color.NRGBA{A: 255})
	for i, im := range images {
		x := (i % cols) * cellW
		y := (i / cols) * cellH
		sheet = imaging.Paste(sheet, im, image.Pt(x, y))
	}
	return sheet
}
