package profile

import (
	"errors"
	"fmt"
	"math"

	"github.com/bmskinner/nma-sub021/internal/contour"
)

// DefaultWindowProportion is the fraction of the perimeter used as the angle
// window when none is configured.
const DefaultWindowProportion = 0.05

// ErrInvalidWindow is returned for window proportions outside (0, 1).
var ErrInvalidWindow = errors.New("window proportion must be in (0,1)")

// WindowSize returns the number of border points either side of an index
// used to measure its angle.
func WindowSize(perimeter, proportion float64) int {
	return max(1, int(math.Ceil(perimeter*proportion)))
}

// Compute builds a profile of the given type for c.
func Compute(t Type, c *contour.Contour, windowProportion float64) (Profile, error) {
	switch t {
	case Angle:
		return ComputeAngle(c, windowProportion)
	case Radius:
		return ComputeRadius(c), nil
	case Diameter:
		return ComputeDiameter(c), nil
	default:
		return Profile{}, fmt.Errorf("unsupported profile type %v", t)
	}
}

// ComputeAngle measures, at every border point i, the angle between the
// points w places either side of it. Where the chord joining those
// neighbours passes outside the contour the border is concave at i and the
// reported angle is 360 minus the measured one.
func ComputeAngle(c *contour.Contour, windowProportion float64) (Profile, error) {
	if !(windowProportion > 0 && windowProportion < 1) {
		return Profile{}, fmt.Errorf("%w: got %v", ErrInvalidWindow, windowProportion)
	}
	w := WindowSize(c.Perimeter(), windowProportion)

	n := c.Len()
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		p := c.Point(i)
		a := c.Point(i - w)
		b := c.Point(i + w)
		angle := p.AngleTo(a, b)
		if c.ContainsPoint(a.Midpoint(b)) {
			values[i] = angle
		} else {
			values[i] = 360 - angle
		}
	}
	return Profile{values: values}, nil
}

// ComputeRadius measures the distance from each border point to the centre
// of mass.
func ComputeRadius(c *contour.Contour) Profile {
	com := c.CentreOfMass()
	values := make([]float64, c.Len())
	for i := range values {
		values[i] = c.Point(i).Distance(com)
	}
	return Profile{values: values}
}

// ComputeDiameter measures the distance from each border point to its
// opposite border point.
func ComputeDiameter(c *contour.Contour) Profile {
	values := make([]float64, c.Len())
	for i := range values {
		values[i] = c.Point(i).Distance(c.Point(c.FindOppositeBorder(i)))
	}
	return Profile{values: values}
}
