package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/nucleus"
	"github.com/bmskinner/nma-sub021/pkg/geometry"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nma.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func segmented(t *testing.T) *nucleus.Nucleus {
	t.Helper()
	opts := nucleus.DefaultOptions()
	opts.Rules = landmark.MouseSperm()
	opts.Source = nucleus.SourceImage{File: "slide_3.tiff", Channel: 1}
	opts.Scale = 0.5
	n, err := nucleus.New(
		[]float64{0, 40, 40, 0},
		[]float64{0, 0, 20, 20},
		geometry.NewPoint2D(20, 10),
		opts,
	)
	require.NoError(t, err)

	require.NoError(t, n.SetLandmark("Tip", 0))
	require.NoError(t, n.SegmentEvenly(4))
	require.NoError(t, n.SetLandmark("Top vertical", 30))

	rel, err := n.SegmentedProfile(landmark.Reference)
	require.NoError(t, err)
	ids := rel.Ring.IDs()
	_, err = rel.Ring.Merge(ids[1], ids[2])
	require.NoError(t, err)
	require.NoError(t, n.SetSegments(rel.Ring))

	_, err = n.MeasureAll()
	require.NoError(t, err)
	return n
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	n := segmented(t)
	want := n.Snapshot()

	require.NoError(t, s.Put(ctx, want))
	got, err := s.Get(ctx, n.ID())
	require.NoError(t, err)

	assert.Equal(t, want.Source, got.Source)
	assert.Equal(t, want.RawX, got.RawX)
	assert.Equal(t, want.CentreOfMass, got.CentreOfMass)
	assert.Equal(t, want.Scale, got.Scale)
	assert.Equal(t, want.Profiles, got.Profiles)
	assert.Equal(t, want.Segments, got.Segments)
	assert.Equal(t, want.Landmarks, got.Landmarks)
	assert.Equal(t, want.Marks, got.Marks)
	assert.Equal(t, want.Priority, got.Priority)
	assert.Equal(t, want.RuleSet, got.RuleSet)
	assert.InDeltaMapValues(t, want.Measurements, got.Measurements, 1e-9)

	restored, err := nucleus.FromState(got)
	require.NoError(t, err)
	assert.Equal(t, n.Segments().IDs(), restored.Segments().IDs())
	rp, err := restored.ReferenceIndex()
	require.NoError(t, err)
	assert.Equal(t, 0, rp)
}

func TestPutReplacesChildRows(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	n := segmented(t)
	require.NoError(t, s.Put(ctx, n.Snapshot()))

	require.NoError(t, n.SegmentEvenly(2))
	require.NoError(t, s.Put(ctx, n.Snapshot()))

	got, err := s.Get(ctx, n.ID())
	require.NoError(t, err)
	assert.Len(t, got.Segments, 2)

	usage, err := s.SegmentUsage(ctx)
	require.NoError(t, err)
	assert.Len(t, usage, 2)
}

func TestListLoadAllDelete(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	a, b := segmented(t), segmented(t)
	require.NoError(t, s.PutAll(ctx, []nucleus.State{a.Snapshot(), b.Snapshot()}))

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a.ID(), b.ID()}, ids)

	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.Delete(ctx, a.ID()))
	_, err = s.Get(ctx, a.ID())
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(s.Delete(ctx, a.ID()), ErrNotFound))

	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b.ID()}, ids)
}

func TestNilStore(t *testing.T) {
	var s *Store
	assert.NoError(t, s.Close())
	assert.Error(t, s.Put(context.Background(), nucleus.State{}))
	_, err := s.List(context.Background())
	assert.Error(t, err)
}
