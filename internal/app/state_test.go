package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/nucleus"
	"github.com/bmskinner/nma-sub021/internal/profile"
	"github.com/bmskinner/nma-sub021/pkg/geometry"
)

func rect(t *testing.T, w, h float64) *nucleus.Nucleus {
	t.Helper()
	n, err := nucleus.New(
		[]float64{0, w, w, 0},
		[]float64{0, 0, h, h},
		geometry.NewPoint2D(w/2, h/2),
		nucleus.DefaultOptions(),
	)
	require.NoError(t, err)
	return n
}

func workspace(t *testing.T) (*State, []uuid.UUID) {
	t.Helper()
	s := NewState(landmark.Round(), 2)
	var ids []uuid.UUID
	for _, n := range []*nucleus.Nucleus{rect(t, 40, 30), rect(t, 42, 30), rect(t, 44, 32)} {
		s.Add(n)
		ids = append(ids, n.ID())
	}
	return s, ids
}

func TestAddListRemove(t *testing.T) {
	s, ids := workspace(t)

	var added []interface{}
	s.On(EventNucleusRemoved, func(data interface{}) { added = append(added, data) })

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, ids[0], list[0].ID)
	assert.Equal(t, 140, list[0].Length)
	assert.Equal(t, 1, list[0].Segments)
	assert.True(t, s.Modified)

	require.NoError(t, s.Remove(ids[1]))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []interface{}{ids[1]}, added)

	err := s.Remove(ids[1])
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSegmentValidateAndRepair(t *testing.T) {
	s, ids := workspace(t)

	consensus, err := s.Segment(4, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, consensus.Ring.Count())

	rep := s.Validate()
	assert.True(t, rep.OK(), rep.String())

	require.NoError(t, s.Mutate(ids[0], func(n *nucleus.Nucleus) error {
		n.OverwriteLandmark(landmark.ReferencePoint, 3)
		return nil
	}))
	rep = s.Validate()
	assert.True(t, rep.Has(ids[0], "rp_on_boundary"))

	rep = s.Repair()
	assert.True(t, rep.OK(), rep.String())

	require.NoError(t, s.ReverseAll())
	rep = s.Validate()
	assert.True(t, rep.OK(), rep.String())
}

func TestProfileAndOrient(t *testing.T) {
	s, ids := workspace(t)

	sp, err := s.Profile(ids[0], profile.Radius, landmark.Reference)
	require.NoError(t, err)
	assert.Equal(t, 140, sp.Len())
	assert.Equal(t, 140, sp.Ring.Total())

	_, err = s.Profile(uuid.New(), profile.Angle, landmark.Reference)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.Orient(ids[0])
	require.NoError(t, err)
}

func TestSaveLoadDataset(t *testing.T) {
	s, ids := workspace(t)
	_, err := s.Segment(2, 10)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ws.nmd")
	require.NoError(t, s.SaveDataset(path))
	assert.False(t, s.Modified)

	loaded := NewState(landmark.Round(), 1)
	var events int
	loaded.On(EventDatasetLoaded, func(interface{}) { events++ })
	require.NoError(t, loaded.LoadDataset(path))
	assert.Equal(t, 1, events)
	assert.Equal(t, ids, loadedIDs(loaded))

	rep := loaded.Validate()
	assert.True(t, rep.OK(), rep.String())
}

func TestReloaderPicksUpExternalChanges(t *testing.T) {
	s, _ := workspace(t)
	path := filepath.Join(t.TempDir(), "ws.nmd")
	require.NoError(t, s.SaveDataset(path))

	other := NewState(landmark.Round(), 1)
	require.NoError(t, other.LoadDataset(path))

	r := NewReloader(other, path, time.Hour)
	require.NotNil(t, r)
	assert.False(t, r.Check())

	require.NoError(t, s.Remove(s.IDs()[0]))
	require.NoError(t, s.SaveDataset(path))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	var reloadErr error
	called := false
	r.OnReload(func(err error) { called, reloadErr = true, err })
	assert.True(t, r.Check())
	assert.True(t, called)
	assert.NoError(t, reloadErr)
	assert.Equal(t, 2, other.Len())

	assert.Nil(t, NewReloader(other, filepath.Join(t.TempDir(), "none"), time.Hour))
}

func loadedIDs(s *State) []uuid.UUID {
	var out []uuid.UUID
	for _, sum := range s.List() {
		out = append(out, sum.ID)
	}
	return out
}
