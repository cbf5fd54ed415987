package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/nucleus"
	"github.com/bmskinner/nma-sub021/internal/profile"
	"github.com/bmskinner/nma-sub021/internal/segment"
	"github.com/bmskinner/nma-sub021/pkg/geometry"
)

// square returns a nucleus with exactly 100 border points.
func square(t *testing.T, opts nucleus.Options) *nucleus.Nucleus {
	t.Helper()
	n, err := nucleus.New(
		[]float64{0, 25, 25, 0},
		[]float64{0, 0, 25, 25},
		geometry.NewPoint2D(12.5, 12.5),
		opts,
	)
	require.NoError(t, err)
	require.Equal(t, 100, n.Len())
	return n
}

func halves(t *testing.T) *segment.Ring {
	t.Helper()
	r, err := segment.Link(100, 10, []segment.Segment{segment.New(0, 50), segment.New(50, 100)})
	require.NoError(t, err)
	return r
}

func canonicalOf(t *testing.T, n *nucleus.Nucleus) *segment.Ring {
	t.Helper()
	sp, err := n.SegmentedProfile(landmark.Reference)
	require.NoError(t, err)
	return sp.Ring
}

func TestFreshlySegmentedNucleusPasses(t *testing.T) {
	n := square(t, nucleus.DefaultOptions())
	require.NoError(t, n.SetSegments(halves(t)))

	rep := New(canonicalOf(t, n)).ValidateOne(n)
	assert.True(t, rep.OK(), rep.String())
	assert.Equal(t, 0, rep.ErrorCount())
	assert.Equal(t, 1, rep.Checked)
}

func TestOverwrittenReferencePointIsFlaggedAndRepaired(t *testing.T) {
	n := square(t, nucleus.DefaultOptions())
	require.NoError(t, n.SetSegments(halves(t)))
	v := New(canonicalOf(t, n))

	n.OverwriteLandmark(landmark.ReferencePoint, 25)
	rep := v.ValidateOne(n)
	assert.False(t, rep.OK())
	assert.True(t, rep.Has(n.ID(), CheckRPOnBoundary))
	assert.Equal(t, 1, rep.ErrorCount())
	assert.True(t, rep.Offenders[n.ID()])

	rep = v.Repair([]*nucleus.Nucleus{n})
	assert.True(t, rep.OK(), rep.String())
	rp, err := n.ReferenceIndex()
	require.NoError(t, err)
	assert.Equal(t, 0, rp)
}

func TestRepairWithoutCanonicalSnapsToContainingSegment(t *testing.T) {
	n := square(t, nucleus.DefaultOptions())
	require.NoError(t, n.SetSegments(halves(t)))
	n.OverwriteLandmark(landmark.ReferencePoint, 70)

	rep := (&Validator{}).Repair([]*nucleus.Nucleus{n})
	assert.True(t, rep.OK(), rep.String())
	rp, err := n.ReferenceIndex()
	require.NoError(t, err)
	assert.Equal(t, 50, rp)
}

func TestPopulationSegmentIDs(t *testing.T) {
	canonical := halves(t)

	a := square(t, nucleus.DefaultOptions())
	require.NoError(t, a.SetSegments(canonical.Clone()))
	b := square(t, nucleus.DefaultOptions())
	require.NoError(t, b.SetSegments(canonical.Clone()))
	c := square(t, nucleus.DefaultOptions())
	require.NoError(t, c.SegmentEvenly(2))

	rep := New(canonical).Validate([]*nucleus.Nucleus{a, b, c})
	assert.Equal(t, 3, rep.Checked)
	assert.Equal(t, 4, rep.ErrorCount(), rep.String())
	assert.Equal(t, []string{c.ID().String()}, idStrings(rep))
	assert.True(t, rep.Has(c.ID(), CheckSegmentIDs))
}

func TestMergeSourcesCompared(t *testing.T) {
	canonical, err := segment.NewEvenRing(100, 4, 0, 10)
	require.NoError(t, err)
	ids := canonical.IDs()
	merged, err := canonical.Merge(ids[1], ids[2])
	require.NoError(t, err)

	plain, err := segment.Link(100, 10, []segment.Segment{
		segment.WithID(ids[0], 0, 25),
		segment.WithID(merged.ID, 25, 75),
		segment.WithID(ids[3], 75, 100),
	})
	require.NoError(t, err)

	good := square(t, nucleus.DefaultOptions())
	require.NoError(t, good.SetSegments(canonical.Clone()))
	bad := square(t, nucleus.DefaultOptions())
	require.NoError(t, bad.SetSegments(plain))

	rep := New(canonical).Validate([]*nucleus.Nucleus{good, bad})
	assert.False(t, rep.Has(good.ID(), CheckMergeSources))
	assert.True(t, rep.Has(bad.ID(), CheckMergeSources))
	assert.Equal(t, 1, rep.ErrorCount())
}

func TestMissingProfileIsReported(t *testing.T) {
	opts := nucleus.DefaultOptions()
	opts.Profiles = []profile.Type{profile.Radius}
	n := square(t, opts)

	rep := (&Validator{Required: []profile.Type{profile.Angle, profile.Radius}}).ValidateOne(n)
	assert.True(t, rep.Has(n.ID(), CheckProfiles))
	assert.Equal(t, 1, rep.ErrorCount())
}

func idStrings(r *Report) []string {
	var out []string
	for _, id := range r.OffenderIDs() {
		out = append(out, id.String())
	}
	return out
}
