// Package orient rotates and mirrors a contour into the canonical position
// described by a rule set's orientation marks.
package orient

import (
	"fmt"
	"log/slog"

	"github.com/bmskinner/nma-sub021/internal/contour"
	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/pkg/geometry"
)

// Result records what Orient did to the contour.
type Result struct {
	Rotation          float64 `json:"rotation"` // degrees, clockwise positive
	FlippedHorizontal bool    `json:"flipped_horizontal"`
	FlippedVertical   bool    `json:"flipped_vertical"`
}

// Orient rotates and mirrors c in place using the landmarks resolved through
// rules. With Y priority it aligns top/bottom (or rotates the Y landmark
// straight down) and then mirrors left to right; with X priority it aligns
// left/right (or rotates the X landmark straight left) and then mirrors top
// to bottom. Marks that are unmapped or unassigned are skipped, so a nucleus
// with no orientation landmarks is left as it is.
func Orient(c *contour.Contour, reg *landmark.Registry, rules landmark.RuleSet) (Result, error) {
	if err := rules.Validate(); err != nil {
		return Result{}, err
	}
	o := orienter{c: c, reg: reg, rules: rules}
	if rules.Priority == landmark.PriorityX {
		return o.orientX(), nil
	}
	return o.orientY(), nil
}

type orienter struct {
	c     *contour.Contour
	reg   *landmark.Registry
	rules landmark.RuleSet
}

// index resolves a mark to a border index.
func (o orienter) index(m landmark.OrientationMark) (int, bool) {
	name, ok := o.rules.Landmark(m)
	if !ok {
		return 0, false
	}
	i, err := o.reg.Get(name)
	if err != nil {
		return 0, false
	}
	return i, true
}

// point resolves a mark to its current border point.
func (o orienter) point(m landmark.OrientationMark) (geometry.Point2D, bool) {
	i, ok := o.index(m)
	if !ok {
		return geometry.Point2D{}, false
	}
	return o.c.Point(i), true
}

func (o orienter) orientY() Result {
	var res Result

	top, hasTop := o.index(landmark.Top)
	bottom, hasBottom := o.index(landmark.Bottom)
	switch {
	case hasTop && hasBottom && top != bottom:
		res.Rotation = o.c.AlignPointsOnVertical(o.c.Point(top), o.c.Point(bottom))
	default:
		if p, ok := o.point(landmark.Y); ok {
			res.Rotation = o.c.RotatePointToBottom(p)
		}
	}

	if o.shouldFlipHorizontal() {
		o.c.FlipHorizontal(o.c.CentreOfMass())
		res.FlippedHorizontal = true
	}
	slog.Debug("oriented contour", "priority", "y", "rotation", res.Rotation, "flipped_horizontal", res.FlippedHorizontal)
	return res
}

// shouldFlipHorizontal reads landmark positions after rotation.
func (o orienter) shouldFlipHorizontal() bool {
	com := o.c.CentreOfMass()
	left, hasLeft := o.point(landmark.Left)
	right, hasRight := o.point(landmark.Right)
	switch {
	case hasLeft && hasRight:
		return left.X > right.X
	case hasLeft:
		return left.X > com.X
	case hasRight:
		return right.X < com.X
	}
	if x, ok := o.point(landmark.X); ok {
		return x.X > com.X
	}
	return false
}

func (o orienter) orientX() Result {
	var res Result

	left, hasLeft := o.index(landmark.Left)
	right, hasRight := o.index(landmark.Right)
	switch {
	case hasLeft && hasRight && left != right:
		res.Rotation = o.c.AlignPointsOnHorizontal(o.c.Point(left), o.c.Point(right))
	default:
		if p, ok := o.point(landmark.X); ok {
			res.Rotation = o.c.RotatePointToLeft(p)
		}
	}

	if o.shouldFlipVertical() {
		o.c.FlipVertical(o.c.CentreOfMass())
		res.FlippedVertical = true
	}
	slog.Debug("oriented contour", "priority", "x", "rotation", res.Rotation, "flipped_vertical", res.FlippedVertical)
	return res
}

func (o orienter) shouldFlipVertical() bool {
	com := o.c.CentreOfMass()
	top, hasTop := o.point(landmark.Top)
	bottom, hasBottom := o.point(landmark.Bottom)
	switch {
	case hasTop && hasBottom:
		return top.Y > bottom.Y
	case hasTop:
		return top.Y > com.Y
	case hasBottom:
		return bottom.Y < com.Y
	}
	if y, ok := o.point(landmark.Y); ok {
		return y.Y < com.Y
	}
	return false
}

// String formats a result for logs and CLI output.
func (r Result) String() string {
	return fmt.Sprintf("rotated %.2f°, flipped horizontally: %t, flipped vertically: %t",
		r.Rotation, r.FlippedHorizontal, r.FlippedVertical)
}
