package contour

import (
	"math"

	"github.com/bmskinner/nma-sub021/pkg/geometry"
)

// Offset translates every border point and the centre of mass.
func (c *Contour) Offset(dx, dy float64) {
	for i := range c.border {
		c.border[i].Offset(dx, dy)
	}
	c.com.Offset(dx, dy)
	c.placement = geometry.Translation(dx, dy).Compose(c.placement)
	c.updateBounds()
}

// MoveCentreOfMass translates the contour so its centre of mass sits at p.
func (c *Contour) MoveCentreOfMass(p geometry.Point2D) {
	c.Offset(p.X-c.com.X, p.Y-c.com.Y)
}

// Rotate rotates the border and centre of mass about anchor. Positive angles
// are clockwise in image coordinates.
func (c *Contour) Rotate(degrees float64, anchor geometry.Point2D) {
	if degrees == 0 {
		return
	}
	c.apply(geometry.RotationAbout(degrees*math.Pi/180, anchor))
}

// FlipHorizontal mirrors the contour about the vertical line through anchor.
func (c *Contour) FlipHorizontal(anchor geometry.Point2D) {
	for i := range c.border {
		c.border[i].FlipX(anchor)
	}
	c.com.FlipX(anchor)
	c.placement = geometry.MirrorAbout(anchor, true).Compose(c.placement)
	c.updateBounds()
}

// FlipVertical mirrors the contour about the horizontal line through anchor.
func (c *Contour) FlipVertical(anchor geometry.Point2D) {
	for i := range c.border {
		c.border[i].FlipY(anchor)
	}
	c.com.FlipY(anchor)
	c.placement = geometry.MirrorAbout(anchor, false).Compose(c.placement)
	c.updateBounds()
}

// Reverse toggles the traversal direction and rebuilds the border from the
// raw coordinates. Interpolation is not length-stable under reversal, so
// callers must re-read Len afterwards.
func (c *Contour) Reverse() {
	c.reversed = !c.reversed
	c.rebuild()
}

func (c *Contour) apply(t geometry.AffineTransform) {
	for i := range c.border {
		c.border[i] = t.Apply(c.border[i])
	}
	c.com = t.Apply(c.com)
	c.placement = t.Compose(c.placement)
	c.updateBounds()
}

// AlignPointsOnVertical rotates the contour about its centre of mass so top
// lies directly above bottom.
func (c *Contour) AlignPointsOnVertical(top, bottom geometry.Point2D) float64 {
	if top == bottom {
		return 0
	}
	theta := math.Atan2(top.Y-bottom.Y, top.X-bottom.X)
	return c.rotateRadians(-math.Pi/2 - theta)
}

// AlignPointsOnHorizontal rotates the contour about its centre of mass so
// left lies directly left of right.
func (c *Contour) AlignPointsOnHorizontal(left, right geometry.Point2D) float64 {
	if left == right {
		return 0
	}
	theta := math.Atan2(right.Y-left.Y, right.X-left.X)
	return c.rotateRadians(-theta)
}

// RotatePointToBottom rotates the contour about its centre of mass so p lies
// directly below it.
func (c *Contour) RotatePointToBottom(p geometry.Point2D) float64 {
	theta := math.Atan2(p.Y-c.com.Y, p.X-c.com.X)
	return c.rotateRadians(math.Pi/2 - theta)
}

// RotatePointToLeft rotates the contour about its centre of mass so p lies
// directly left of it.
func (c *Contour) RotatePointToLeft(p geometry.Point2D) float64 {
	theta := math.Atan2(p.Y-c.com.Y, p.X-c.com.X)
	return c.rotateRadians(math.Pi - theta)
}

// rotateRadians rotates about the centre of mass and returns the applied
// angle in degrees, normalised to (-180, 180].
func (c *Contour) rotateRadians(rad float64) float64 {
	deg := math.Remainder(rad*180/math.Pi, 360)
	if deg == -180 {
		deg = 180
	}
	c.Rotate(deg, c.com)
	return deg
}
