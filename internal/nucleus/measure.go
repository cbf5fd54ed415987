package nucleus

import (
	"fmt"
	"image"
	"math"
	"sync"

	"golang.org/x/image/vector"

	"github.com/bmskinner/nma-sub021/internal/profile"
	"github.com/bmskinner/nma-sub021/pkg/geometry"
)

// Measurement names a scalar shape descriptor.
type Measurement string

const (
	Area           Measurement = "area"
	Perimeter      Measurement = "perimeter"
	Circularity    Measurement = "circularity"
	Solidity       Measurement = "solidity"
	MinDiameter    Measurement = "min_diameter"
	MaxRadius      Measurement = "max_radius"
	BoundingWidth  Measurement = "bounding_width"
	BoundingHeight Measurement = "bounding_height"
	PixelArea      Measurement = "pixel_area"
)

// Measurements lists every supported measurement.
var Measurements = []Measurement{
	Area, Perimeter, Circularity, Solidity, MinDiameter, MaxRadius,
	BoundingWidth, BoundingHeight, PixelArea,
}

// measureCache memoises measurements. Concurrent misses may compute the same
// value twice; the last write wins.
type measureCache struct {
	mu     sync.RWMutex
	values map[Measurement]float64
}

func newMeasureCache() *measureCache {
	return &measureCache{values: make(map[Measurement]float64)}
}

func (c *measureCache) get(m Measurement) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[m]
	return v, ok
}

func (c *measureCache) put(m Measurement, v float64) {
	c.mu.Lock()
	c.values[m] = v
	c.mu.Unlock()
}

func (c *measureCache) clear() {
	c.mu.Lock()
	c.values = make(map[Measurement]float64)
	c.mu.Unlock()
}

func (c *measureCache) snapshot() map[Measurement]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[Measurement]float64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

func (c *measureCache) clone() *measureCache {
	return &measureCache{values: c.snapshot()}
}

// Measure returns a measurement in pixel units. It is safe to call from
// several goroutines as long as nothing mutates the nucleus meanwhile.
func (n *Nucleus) Measure(m Measurement) (float64, error) {
	if v, ok := n.cache.get(m); ok {
		return v, nil
	}
	v, err := n.compute(m)
	if err != nil {
		return 0, err
	}
	n.cache.put(m, v)
	return v, nil
}

// MeasureScaled returns a measurement converted from pixels using the
// nucleus scale. Areas are divided by the square of the scale, lengths by
// the scale, and ratios are returned unchanged.
func (n *Nucleus) MeasureScaled(m Measurement) (float64, error) {
	v, err := n.Measure(m)
	if err != nil {
		return 0, err
	}
	switch m {
	case Area, PixelArea:
		return v / (n.scale * n.scale), nil
	case Circularity, Solidity:
		return v, nil
	default:
		return v / n.scale, nil
	}
}

// MeasureAll returns every measurement.
func (n *Nucleus) MeasureAll() (map[Measurement]float64, error) {
	out := make(map[Measurement]float64, len(Measurements))
	for _, m := range Measurements {
		v, err := n.Measure(m)
		if err != nil {
			return nil, err
		}
		out[m] = v
	}
	return out, nil
}

// compute reads only the contour, never the lazily built profiles, so it is
// free of writes to the nucleus.
func (n *Nucleus) compute(m Measurement) (float64, error) {
	c := n.contour
	switch m {
	case Area:
		return c.Area(), nil
	case Perimeter:
		return c.Perimeter(), nil
	case Circularity:
		p := c.Perimeter()
		if p == 0 {
			return 0, nil
		}
		return 4 * math.Pi * c.Area() / (p * p), nil
	case Solidity:
		hull := geometry.PolygonArea(geometry.ConvexHull(c.Points()))
		if hull == 0 {
			return 0, nil
		}
		return c.Area() / hull, nil
	case MinDiameter:
		return profile.ComputeDiameter(c).Min(), nil
	case MaxRadius:
		return profile.ComputeRadius(c).Max(), nil
	case BoundingWidth:
		return c.Bounds().Width, nil
	case BoundingHeight:
		return c.Bounds().Height, nil
	case PixelArea:
		mask, _ := n.Mask()
		var sum float64
		for _, a := range mask.Pix {
			sum += float64(a) / 255
		}
		return sum, nil
	default:
		return 0, fmt.Errorf("unknown measurement %q", m)
	}
}

// Mask rasterises the outline into an alpha mask covering its bounding box.
// The returned point is the image-space position of the mask's origin.
func (n *Nucleus) Mask() (*image.Alpha, image.Point) {
	b := n.contour.Bounds()
	origin := image.Pt(int(math.Floor(b.X)), int(math.Floor(b.Y)))
	w := int(math.Ceil(b.X+b.Width)) - origin.X + 1
	h := int(math.Ceil(b.Y+b.Height)) - origin.Y + 1

	r := vector.NewRasterizer(w, h)
	pts := n.contour.Points()
	ox, oy := float64(origin.X), float64(origin.Y)
	r.MoveTo(float32(pts[0].X-ox), float32(pts[0].Y-oy))
	for _, p := range pts[1:] {
		r.LineTo(float32(p.X-ox), float32(p.Y-oy))
	}
	r.ClosePath()

	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	r.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask, origin
}

// CachedMeasurements returns the measurements computed so far.
func (n *Nucleus) CachedMeasurements() map[Measurement]float64 {
	return n.cache.snapshot()
}
