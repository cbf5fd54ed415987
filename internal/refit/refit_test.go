package refit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmskinner/nma-sub021/internal/profile"
	"github.com/bmskinner/nma-sub021/internal/segment"
)

func bumpy(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		x := 2 * math.Pi * float64(i) / float64(n)
		v[i] = 180 + 40*math.Sin(x) + 25*math.Cos(3*x) + 10*math.Sin(7*x+0.3)
	}
	return v
}

func previous(t *testing.T, n int) profile.SegmentedProfile {
	t.Helper()
	ring, err := segment.Link(n, 10, []segment.Segment{
		segment.New(0, 3*n/10),
		segment.New(3*n/10, 7*n/10),
		segment.New(7*n/10, n),
	})
	require.NoError(t, err)
	sp, err := profile.NewSegmented(profile.New(bumpy(n)), ring)
	require.NoError(t, err)
	return sp
}

func TestFitRecoversOffset(t *testing.T) {
	prev := previous(t, 100)
	current := prev.Reverse().Profile.StartFrom(17)

	res, err := Fit(prev, current)
	require.NoError(t, err)
	assert.Equal(t, 17, res.Offset)
	assert.InDelta(t, 0, res.Score, 1e-9)
	assert.Equal(t, current.Values(), res.Profile.Values())

	segs := res.Profile.Ring.Segments()
	ids := prev.Ring.IDs()
	assert.Equal(t, []int{83, 13, 53}, []int{segs[0].Start, segs[1].Start, segs[2].Start})
	assert.Equal(t, ids[2], segs[0].ID, "old last segment leads after reversal")
	assert.Equal(t, 83, res.Reference())
	require.NoError(t, res.Profile.Ring.Validate())
}

func TestFitResamplesWhenLengthsDiffer(t *testing.T) {
	prev := previous(t, 100)
	rev := prev.Reverse()
	resampled, err := rev.Profile.Interpolate(110)
	require.NoError(t, err)
	current := resampled.StartFrom(40)

	res, err := Fit(prev, current)
	require.NoError(t, err)
	assert.Equal(t, 110, res.Profile.Ring.Total())
	assert.Equal(t, 110, res.Profile.Len())
	assert.Equal(t, 40, res.Offset)
	assert.Equal(t, 70, res.Reference())
	require.NoError(t, res.Profile.Ring.Validate())
}

func TestFitRejectsEmptyProfile(t *testing.T) {
	_, err := Fit(previous(t, 100), profile.New(nil))
	assert.Error(t, err)
}
