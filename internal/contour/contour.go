// Package contour models the closed border of a biological object: an
// ordered list of evenly spaced border points, a centre of mass, and the
// rigid transforms used to move and orient the outline.
package contour

import (
	"errors"
	"fmt"
	"math"

	"github.com/bmskinner/nma-sub021/pkg/circular"
	"github.com/bmskinner/nma-sub021/pkg/geometry"
)

// DefaultInterval is the border point spacing, in pixels, used when none is given.
const DefaultInterval = 1.0

// ErrInvalidGeometry is returned when a contour cannot be built from the
// supplied coordinates.
var ErrInvalidGeometry = errors.New("invalid contour geometry")

// Contour is an ordered closed border with a centre of mass.
//
// The border is rebuilt from the raw polygon by interpolation, so it is only
// deterministic given the same raw coordinates, interval and traversal
// direction. Contours are not safe for concurrent mutation.
type Contour struct {
	rawX, rawY []float64
	interval   float64
	reversed   bool

	// placement accumulates every offset, rotation and flip applied since
	// construction so a rebuilt border lands where the old one was.
	placement geometry.AffineTransform

	border      []geometry.Point2D
	com         geometry.Point2D
	originalCom geometry.Point2D
	bounds      geometry.Rect
}

// New builds a contour from raw polygon coordinates and a declared centre of
// mass. The centre of mass must lie within the polygon's bounding box.
func New(xs, ys []float64, com geometry.Point2D, interval float64) (*Contour, error) {
	return build(xs, ys, com, interval, false)
}

// NewReversed builds a contour whose border runs opposite to the raw
// coordinate order, as though Reverse had been called once.
func NewReversed(xs, ys []float64, com geometry.Point2D, interval float64) (*Contour, error) {
	return build(xs, ys, com, interval, true)
}

func build(xs, ys []float64, com geometry.Point2D, interval float64, reversed bool) (*Contour, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%w: %d x coordinates but %d y coordinates", ErrInvalidGeometry, len(xs), len(ys))
	}
	if len(xs) < 3 {
		return nil, fmt.Errorf("%w: need at least 3 points, got %d", ErrInvalidGeometry, len(xs))
	}
	if !(interval > 0) || math.IsInf(interval, 0) {
		return nil, fmt.Errorf("%w: interpolation interval must be positive, got %v", ErrInvalidGeometry, interval)
	}

	c := &Contour{
		rawX:        append([]float64(nil), xs...),
		rawY:        append([]float64(nil), ys...),
		interval:    interval,
		reversed:    reversed,
		placement:   geometry.Identity(),
		com:         com,
		originalCom: com,
	}

	if !geometry.BoundingBox(c.rawPoints()).Contains(com) {
		return nil, fmt.Errorf("%w: centre of mass (%.2f,%.2f) outside polygon bounds", ErrInvalidGeometry, com.X, com.Y)
	}

	c.rebuild()
	if len(c.border) < 3 {
		return nil, fmt.Errorf("%w: interpolation at interval %v left %d border points", ErrInvalidGeometry, interval, len(c.border))
	}
	return c, nil
}

// rawPoints returns the raw polygon in current traversal order.
func (c *Contour) rawPoints() []geometry.Point2D {
	n := len(c.rawX)
	pts := make([]geometry.Point2D, n)
	for i := 0; i < n; i++ {
		pts[i] = geometry.Point2D{X: c.rawX[i], Y: c.rawY[i]}
	}
	if c.reversed {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	return pts
}

// rebuild regenerates the border from the raw polygon and re-applies the
// accumulated placement.
func (c *Contour) rebuild() {
	c.border = interpolate(c.rawPoints(), c.interval)
	for i := range c.border {
		c.border[i] = c.placement.Apply(c.border[i])
	}
	c.updateBounds()
}

// interpolate walks the closed polygon emitting a point every interval units
// of arc length, starting at the first vertex.
func interpolate(points []geometry.Point2D, interval float64) []geometry.Point2D {
	out := []geometry.Point2D{points[0]}
	n := len(points)
	carry := 0.0 // arc length since the last emitted point

	for i := 0; i < n; i++ {
		a := points[i]
		b := points[(i+1)%n]
		segLen := a.Distance(b)
		if segLen == 0 {
			continue
		}
		pos := interval - carry
		for pos <= segLen {
			t := pos / segLen
			out = append(out, geometry.Point2D{
				X: a.X + (b.X-a.X)*t,
				Y: a.Y + (b.Y-a.Y)*t,
			})
			pos += interval
		}
		carry = segLen - (pos - interval)
	}

	// The walk ends back at the first vertex; drop a duplicate closing point
	if len(out) > 1 && out[len(out)-1].Distance(out[0]) < interval/2 {
		out = out[:len(out)-1]
	}
	return out
}

func (c *Contour) updateBounds() {
	c.bounds = geometry.BoundingBox(c.border)
}

// Len returns the number of border points.
func (c *Contour) Len() int {
	return len(c.border)
}

// Point returns the border point at index i, wrapping around the border.
func (c *Contour) Point(i int) geometry.Point2D {
	return c.border[circular.Wrap(i, len(c.border))]
}

// Points returns a copy of the border list.
func (c *Contour) Points() []geometry.Point2D {
	return append([]geometry.Point2D(nil), c.border...)
}

// CentreOfMass returns the current centre of mass.
func (c *Contour) CentreOfMass() geometry.Point2D {
	return c.com
}

// OriginalCentreOfMass returns the centre of mass declared at construction.
func (c *Contour) OriginalCentreOfMass() geometry.Point2D {
	return c.originalCom
}

// Bounds returns the bounding box of the border.
func (c *Contour) Bounds() geometry.Rect {
	return c.bounds
}

// IsReversed reports whether the border runs opposite to the raw coordinates.
func (c *Contour) IsReversed() bool {
	return c.reversed
}

// Interval returns the border point spacing.
func (c *Contour) Interval() float64 {
	return c.interval
}

// RawX returns a copy of the raw polygon x coordinates in source order.
func (c *Contour) RawX() []float64 {
	return append([]float64(nil), c.rawX...)
}

// RawY returns a copy of the raw polygon y coordinates in source order.
func (c *Contour) RawY() []float64 {
	return append([]float64(nil), c.rawY...)
}

// Perimeter returns the length of the border.
func (c *Contour) Perimeter() float64 {
	return geometry.PolygonPerimeter(c.border)
}

// Area returns the area enclosed by the border.
func (c *Contour) Area() float64 {
	return geometry.PolygonArea(c.border)
}

// ContainsPoint reports whether p lies inside the border.
func (c *Contour) ContainsPoint(p geometry.Point2D) bool {
	return geometry.PointInPolygon(p, c.border)
}

// Clone returns a deep copy of the contour.
func (c *Contour) Clone() *Contour {
	dup := *c
	dup.rawX = append([]float64(nil), c.rawX...)
	dup.rawY = append([]float64(nil), c.rawY...)
	dup.border = append([]geometry.Point2D(nil), c.border...)
	return &dup
}
