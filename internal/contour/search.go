package contour

import (
	"math"

	"github.com/bmskinner/nma-sub021/pkg/circular"
	"github.com/bmskinner/nma-sub021/pkg/geometry"
)

// NearestIndex returns the index of the border point closest to p.
func (c *Contour) NearestIndex(p geometry.Point2D) int {
	best := 0
	bestDist := math.Inf(1)
	for i, q := range c.border {
		if d := q.Distance(p); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// FindOppositeBorder approximates where the line from border point i through
// the centre of mass leaves the shape on the far side. Candidates lie on the
// far side of the centre of mass from i; among those no closer to the centre
// than i (within half an interval) it picks the one minimising
// |d(q,com) + d(p,com) - d(q,p)|. When that set is empty it widens to the far
// side alone, then to every other point.
func (c *Contour) FindOppositeBorder(i int) int {
	i = circular.Wrap(i, len(c.border))
	p := c.border[i]
	dp := p.Distance(c.com)
	px, py := p.X-c.com.X, p.Y-c.com.Y
	tol := c.interval / 2

	farSide := func(q geometry.Point2D) bool {
		return (q.X-c.com.X)*px+(q.Y-c.com.Y)*py < 0
	}
	tiers := []func(j int, q geometry.Point2D) bool{
		func(j int, q geometry.Point2D) bool { return farSide(q) && q.Distance(c.com) >= dp-tol },
		func(j int, q geometry.Point2D) bool { return farSide(q) },
		func(j int, q geometry.Point2D) bool { return j != i },
	}

	for _, keep := range tiers {
		best := -1
		bestScore := math.Inf(1)
		for j, q := range c.border {
			if !keep(j, q) {
				continue
			}
			if s := math.Abs(q.Distance(c.com) + dp - q.Distance(p)); s < bestScore {
				best, bestScore = j, s
			}
		}
		if best >= 0 {
			return best
		}
	}
	return i
}

// FindOrthogonalBorderPoint returns the index of the border point whose
// angle at the centre of mass, measured from border point a, is closest to 90
// degrees.
func (c *Contour) FindOrthogonalBorderPoint(a int) int {
	p := c.Point(a)
	best := 0
	bestDiff := math.Inf(1)
	for j, q := range c.border {
		diff := math.Abs(c.com.AngleTo(p, q) - 90)
		if diff < bestDiff {
			best, bestDiff = j, diff
		}
	}
	return best
}

// PositionBetween returns the index midway between a and b along the shorter
// of the two arcs joining them.
func (c *Contour) PositionBetween(a, b int) int {
	return MidpointIndex(a, b, len(c.border))
}

// MidpointIndex returns the midpoint of the shorter arc between a and b on a
// ring of length n.
func MidpointIndex(a, b, n int) int {
	a = circular.Wrap(a, n)
	b = circular.Wrap(b, n)

	forward := circular.Distance(a, b, n) // a -> b
	backward := n - forward               // b -> a

	midForward := circular.Wrap(a+forward/2, n)
	midBackward := circular.Wrap(b+backward/2, n)

	if forward <= backward {
		return midForward
	}
	return midBackward
}
