package profile

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmskinner/nma-sub021/internal/contour"
	"github.com/bmskinner/nma-sub021/internal/segment"
	"github.com/bmskinner/nma-sub021/pkg/geometry"
)

func polygon(t *testing.T, pts []geometry.Point2D, com geometry.Point2D) *contour.Contour {
	t.Helper()
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.X, p.Y
	}
	c, err := contour.New(xs, ys, com, contour.DefaultInterval)
	require.NoError(t, err)
	return c
}

func circle(t *testing.T, r float64) *contour.Contour {
	return polygon(t, geometry.GenerateCirclePoints(50, 50, r, 120), geometry.NewPoint2D(50, 50))
}

func TestAngleProfileOfCircleIsFlat(t *testing.T) {
	c := circle(t, 20)
	p, err := ComputeAngle(c, DefaultWindowProportion)
	require.NoError(t, err)
	assert.Equal(t, c.Len(), p.Len())
	for _, v := range p.Values() {
		assert.Greater(t, v, 120.0)
		assert.Less(t, v, 180.0+1e-9)
	}
}

func TestAngleProfileFindsCorners(t *testing.T) {
	square := []geometry.Point2D{{X: 0, Y: 0}, {X: 40, Y: 0}, {X: 40, Y: 40}, {X: 0, Y: 40}}
	c := polygon(t, square, geometry.NewPoint2D(20, 20))
	require.Equal(t, 160, c.Len())

	p, err := ComputeAngle(c, DefaultWindowProportion)
	require.NoError(t, err)
	assert.InDelta(t, 90, p.Min(), 1e-6)
	assert.InDelta(t, 90, p.Get(0), 1e-6)
	assert.InDelta(t, 180, p.Get(20), 1e-6)
}

func TestAngleProfileReportsConcavity(t *testing.T) {
	arrow := []geometry.Point2D{{X: 0, Y: 0}, {X: 40, Y: 0}, {X: 40, Y: 40}, {X: 20, Y: 20}, {X: 0, Y: 40}}
	c := polygon(t, arrow, geometry.NewPoint2D(20, 10))

	p, err := ComputeAngle(c, DefaultWindowProportion)
	require.NoError(t, err)
	assert.Greater(t, p.Max(), 240.0)
	reflex := c.Point(p.MaxIndex())
	assert.Less(t, reflex.Distance(geometry.NewPoint2D(20, 20)), 2.0)
}

func TestAngleProfileRejectsBadWindow(t *testing.T) {
	c := circle(t, 10)
	for _, w := range []float64{0, 1, -0.1, 1.5} {
		_, err := ComputeAngle(c, w)
		assert.True(t, errors.Is(err, ErrInvalidWindow), "window %v", w)
	}
}

func TestRadiusAndDiameter(t *testing.T) {
	c := circle(t, 20)

	r, err := Compute(Radius, c, DefaultWindowProportion)
	require.NoError(t, err)
	assert.InDelta(t, 20, r.Mean(), 0.1)

	d, err := Compute(Diameter, c, DefaultWindowProportion)
	require.NoError(t, err)
	assert.InDelta(t, 40, d.Min(), 1)
	assert.InDelta(t, 40, d.Max(), 0.1)
}

func TestStartFromAndReverse(t *testing.T) {
	p := New([]float64{0, 1, 2, 3, 4})
	assert.Equal(t, []float64{2, 3, 4, 0, 1}, p.StartFrom(2).Values())
	assert.Equal(t, []float64{4, 0, 1, 2, 3}, p.StartFrom(-1).Values())
	assert.Equal(t, []float64{4, 3, 2, 1, 0}, p.Reverse().Values())
	assert.Equal(t, 4.0, p.Get(-1))
}

func TestInterpolateWraps(t *testing.T) {
	p := New([]float64{0, 10, 20, 30})
	up, err := p.Interpolate(8)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 5, 10, 15, 20, 25, 30, 15}, up.Values())

	_, err = p.Interpolate(0)
	assert.Error(t, err)
}

func TestBestFitOffsetFindsShift(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	values := make([]float64, 90)
	for i := range values {
		values[i] = rng.Float64() * 100
	}
	p := New(values)
	q := p.StartFrom(13)

	k, score, err := p.BestFitOffset(q)
	require.NoError(t, err)
	assert.Equal(t, 13, k)
	assert.InDelta(t, 0, score, 1e-9)

	_, _, err = p.BestFitOffset(New(values[:10]))
	assert.True(t, errors.Is(err, ErrLengthMismatch))
}

func TestSquaredDifference(t *testing.T) {
	d, err := New([]float64{1, 2, 3}).SquaredDifference(New([]float64{1, 4, 0}))
	require.NoError(t, err)
	assert.InDelta(t, 13, d, 1e-9)
}

func TestTypeText(t *testing.T) {
	var typ Type
	require.NoError(t, typ.UnmarshalText([]byte("Diameter")))
	assert.Equal(t, Diameter, typ)
	b, err := Radius.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "radius", string(b))
	assert.Error(t, typ.UnmarshalText([]byte("curvature")))
}

func TestSegmentedProfileMovesTogether(t *testing.T) {
	ring, err := segment.Link(100, 10, []segment.Segment{segment.New(0, 40), segment.New(40, 100)})
	require.NoError(t, err)
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i)
	}
	sp, err := NewSegmented(New(values), ring)
	require.NoError(t, err)

	moved := sp.StartFrom(40)
	assert.Equal(t, 40.0, moved.Get(0))
	assert.Equal(t, 0, moved.Ring.First().Start)
	assert.Equal(t, ring.Segments()[1].ID, moved.Ring.First().ID)

	rev := sp.Reverse()
	assert.Equal(t, 99.0, rev.Get(0))
	assert.Equal(t, ring.Segments()[1].ID, rev.Ring.First().ID)
	assert.Equal(t, 60, rev.Ring.Segments()[1].Start)

	up, err := sp.Interpolate(120)
	require.NoError(t, err)
	assert.Equal(t, 120, up.Len())
	assert.Equal(t, 48, up.Ring.Segments()[1].Start)

	_, err = NewSegmented(New(values[:50]), ring)
	assert.True(t, errors.Is(err, ErrLengthMismatch))
}
