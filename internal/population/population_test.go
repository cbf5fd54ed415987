package population

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/nucleus"
	"github.com/bmskinner/nma-sub021/internal/profile"
	"github.com/bmskinner/nma-sub021/internal/validate"
	"github.com/bmskinner/nma-sub021/pkg/geometry"
)

func blob(t *testing.T, size, phase float64) *nucleus.Nucleus {
	t.Helper()
	n := 100
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		r := size * (1 + 0.2*math.Cos(2*a) + 0.1*math.Sin(3*a+phase))
		xs[i] = 100 + r*math.Cos(a)
		ys[i] = 100 + r*math.Sin(a)
	}
	nuc, err := nucleus.New(xs, ys, geometry.NewPoint2D(100, 100), nucleus.DefaultOptions())
	require.NoError(t, err)
	return nuc
}

func population(t *testing.T) []*nucleus.Nucleus {
	t.Helper()
	return []*nucleus.Nucleus{
		blob(t, 28, 0.1),
		blob(t, 30, 0.2),
		blob(t, 31, 0.0),
		blob(t, 33, 0.3),
		blob(t, 35, 0.1),
	}
}

func TestForEachVisitsAllAndJoinsErrors(t *testing.T) {
	nuclei := population(t)
	var visited atomic.Int32
	boom := errors.New("boom")

	err := ForEach(nuclei, 2, func(n *nucleus.Nucleus) error {
		visited.Add(1)
		if n == nuclei[1] || n == nuclei[3] {
			return boom
		}
		return nil
	})
	assert.Equal(t, int32(len(nuclei)), visited.Load())
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), nuclei[1].ID().String())
	assert.Contains(t, err.Error(), nuclei[3].ID().String())

	assert.NoError(t, ForEach(nuclei, 0, func(*nucleus.Nucleus) error { return nil }))
}

func TestMedianProfile(t *testing.T) {
	nuclei := population(t)
	require.NoError(t, ComputeProfiles(nuclei, 3))

	length := MedianLength(nuclei)
	assert.Equal(t, nuclei[2].Len(), length)

	median, err := MedianProfile(nuclei, profile.Radius, 3)
	require.NoError(t, err)
	assert.Equal(t, length, median.Len())
	assert.InDelta(t, 31, median.Mean(), 2)

	_, err = MedianProfile(nil, profile.Angle, 1)
	assert.Error(t, err)
}

func TestConsensusSegmentationValidatesAcrossReversal(t *testing.T) {
	nuclei := population(t)

	consensus, err := Consensus(nuclei, 4, 10, 0)
	require.NoError(t, err)
	require.NoError(t, ApplySegmentation(nuclei, consensus.Ring, 0))

	v := validate.New(consensus.Ring)
	rep := v.Validate(nuclei)
	assert.True(t, rep.OK(), rep.String())

	require.NoError(t, ReverseAll(nuclei, 0))
	rep = v.Validate(nuclei)
	assert.True(t, rep.OK(), rep.String())

	for _, n := range nuclei {
		sp, err := n.SegmentedProfile(landmark.Reference)
		require.NoError(t, err)
		assert.ElementsMatch(t, consensus.Ring.IDs(), sp.Ring.IDs())
	}
}
