// Package app provides the in-memory workspace shared by the CLI, the HTTP
// server and the directory watcher.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/nucleus"
	"github.com/bmskinner/nma-sub021/internal/orient"
	"github.com/bmskinner/nma-sub021/internal/population"
	"github.com/bmskinner/nma-sub021/internal/profile"
	"github.com/bmskinner/nma-sub021/internal/project"
	"github.com/bmskinner/nma-sub021/internal/segment"
	"github.com/bmskinner/nma-sub021/internal/validate"
)

// ErrNotFound is returned when no nucleus has the requested id.
var ErrNotFound = errors.New("nucleus not found")

// State holds the workspace: the current dataset and its nuclei. Nuclei
// are not safe for concurrent use, so every operation that touches one
// holds the state lock.
type State struct {
	mu sync.RWMutex

	// Dataset
	DatasetPath string
	Modified    bool
	dataset     *project.File

	Rules   landmark.RuleSet
	Workers int

	nuclei    map[uuid.UUID]*nucleus.Nucleus
	order     []uuid.UUID
	consensus *profile.SegmentedProfile

	listeners map[EventType][]EventListener
}

// EventType identifies different workspace events.
type EventType int

const (
	EventDatasetLoaded EventType = iota
	EventDatasetSaved
	EventNucleusAdded
	EventNucleusRemoved
	EventNucleusChanged
	EventSegmented
	EventValidated
	EventModified
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// Summary is a short description of one nucleus.
type Summary struct {
	ID       uuid.UUID           `json:"id"`
	Source   nucleus.SourceImage `json:"source"`
	Length   int                 `json:"length"`
	Segments int                 `json:"segments"`
	Reversed bool                `json:"reversed"`
	Locked   bool                `json:"locked"`
}

// NewState creates an empty workspace using the given rule set.
func NewState(rules landmark.RuleSet, workers int) *State {
	return &State{
		dataset:   project.New("untitled", rules.Name),
		Rules:     rules,
		Workers:   workers,
		nuclei:    make(map[uuid.UUID]*nucleus.Nucleus),
		listeners: make(map[EventType][]EventListener),
	}
}

// On registers an event listener for the specified event type.
func (s *State) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *State) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// SetModified marks the dataset as modified and emits an event.
func (s *State) SetModified(modified bool) {
	s.mu.Lock()
	s.Modified = modified
	s.mu.Unlock()
	s.Emit(EventModified, modified)
}

// LoadDataset replaces the workspace with the nuclei stored at path.
// Nuclei that cannot be rebuilt are skipped and reported in the error.
func (s *State) LoadDataset(path string) error {
	f, err := project.Load(path)
	if err != nil {
		return err
	}
	nuclei, restoreErr := f.Restore()

	s.mu.Lock()
	s.DatasetPath = path
	s.Modified = false
	s.dataset = f
	s.nuclei = make(map[uuid.UUID]*nucleus.Nucleus, len(nuclei))
	s.order = s.order[:0]
	s.consensus = nil
	for _, n := range nuclei {
		s.nuclei[n.ID()] = n
		s.order = append(s.order, n.ID())
	}
	s.mu.Unlock()

	slog.Info("dataset loaded", "path", path, "nuclei", len(nuclei))
	s.Emit(EventDatasetLoaded, path)
	return restoreErr
}

// SaveDataset writes the workspace to path.
func (s *State) SaveDataset(path string) error {
	s.mu.Lock()
	ns := s.orderedLocked()
	s.dataset.SetNuclei(ns)
	s.dataset.RuleSet = s.Rules.Name
	err := s.dataset.Save(path)
	if err == nil {
		s.DatasetPath = path
		s.Modified = false
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.Emit(EventDatasetSaved, path)
	return nil
}

// Add puts a nucleus into the workspace. A nucleus with the same id is
// replaced.
func (s *State) Add(n *nucleus.Nucleus) {
	s.mu.Lock()
	if _, ok := s.nuclei[n.ID()]; !ok {
		s.order = append(s.order, n.ID())
	}
	s.nuclei[n.ID()] = n
	s.Modified = true
	s.mu.Unlock()
	s.Emit(EventNucleusAdded, n.ID())
}

// Remove deletes a nucleus from the workspace.
func (s *State) Remove(id uuid.UUID) error {
	s.mu.Lock()
	if _, ok := s.nuclei[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.nuclei, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.Modified = true
	s.mu.Unlock()
	s.Emit(EventNucleusRemoved, id)
	return nil
}

// Len returns the number of nuclei.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// List summarizes every nucleus in insertion order.
func (s *State) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.order))
	for _, id := range s.order {
		n := s.nuclei[id]
		out = append(out, Summary{
			ID:       id,
			Source:   n.Source(),
			Length:   n.Len(),
			Segments: n.Segments().Count(),
			Reversed: n.Contour().IsReversed(),
			Locked:   n.IsLocked(),
		})
	}
	return out
}

// Snapshot returns the persisted state of one nucleus.
func (s *State) Snapshot(id uuid.UUID) (nucleus.State, error) {
	var st nucleus.State
	err := s.View(id, func(n *nucleus.Nucleus) error {
		st = n.Snapshot()
		return nil
	})
	return st, err
}

// View runs fn with exclusive access to a nucleus without marking the
// dataset modified. Profile reads can fill caches, so this takes the write
// lock.
func (s *State) View(id uuid.UUID, fn func(*nucleus.Nucleus) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nuclei[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fn(n)
}

// Mutate runs fn with exclusive access to a nucleus and marks the dataset
// modified when fn succeeds.
func (s *State) Mutate(id uuid.UUID, fn func(*nucleus.Nucleus) error) error {
	s.mu.Lock()
	n, ok := s.nuclei[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	err := fn(n)
	if err == nil {
		s.Modified = true
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.Emit(EventNucleusChanged, id)
	return nil
}

// Profile returns a profile of one nucleus read from the given mark.
func (s *State) Profile(id uuid.UUID, t profile.Type, mark landmark.OrientationMark) (profile.SegmentedProfile, error) {
	var sp profile.SegmentedProfile
	err := s.View(id, func(n *nucleus.Nucleus) error {
		p, err := n.ProfileFrom(t, mark)
		if err != nil {
			return err
		}
		seg, err := n.SegmentedProfile(mark)
		if err != nil {
			return err
		}
		sp, err = profile.NewSegmented(p, seg.Ring)
		return err
	})
	return sp, err
}

// Reverse reverses one nucleus.
func (s *State) Reverse(id uuid.UUID) error {
	return s.Mutate(id, (*nucleus.Nucleus).Reverse)
}

// SetLandmark assigns a landmark on one nucleus.
func (s *State) SetLandmark(id uuid.UUID, name landmark.Name, index int) error {
	return s.Mutate(id, func(n *nucleus.Nucleus) error {
		return n.SetLandmark(name, index)
	})
}

// UpdateSegment moves a segment of one nucleus. Indices are counted from
// the reference point.
func (s *State) UpdateSegment(id, segID uuid.UUID, start, end int) (bool, error) {
	var ok bool
	err := s.Mutate(id, func(n *nucleus.Nucleus) error {
		ok = n.UpdateSegment(segID, start, end)
		return nil
	})
	return ok, err
}

// Orient returns an oriented copy's transform for one nucleus. The stored
// nucleus is not changed.
func (s *State) Orient(id uuid.UUID) (orient.Result, error) {
	var res orient.Result
	err := s.View(id, func(n *nucleus.Nucleus) error {
		var err error
		_, res, err = n.Oriented()
		return err
	})
	return res, err
}

// ReverseAll reverses every nucleus.
func (s *State) ReverseAll() error {
	s.mu.Lock()
	err := population.ReverseAll(s.orderedLocked(), s.Workers)
	s.Modified = true
	s.mu.Unlock()
	s.Emit(EventModified, true)
	return err
}

// Segment builds a consensus with count even segments and applies it to
// every nucleus.
func (s *State) Segment(count, minLength int) (profile.SegmentedProfile, error) {
	s.mu.Lock()
	ns := s.orderedLocked()
	consensus, err := population.Consensus(ns, count, minLength, s.Workers)
	if err == nil {
		err = population.ApplySegmentation(ns, consensus.Ring, s.Workers)
	}
	if err == nil {
		s.consensus = &consensus
		s.Modified = true
	}
	s.mu.Unlock()
	if err != nil {
		return profile.SegmentedProfile{}, err
	}

	slog.Info("segmented population", "nuclei", len(ns), "segments", count)
	s.Emit(EventSegmented, consensus.Ring.IDs())
	return consensus, nil
}

// Consensus returns the last consensus built by Segment, if any.
func (s *State) Consensus() (profile.SegmentedProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.consensus == nil {
		return profile.SegmentedProfile{}, false
	}
	return s.consensus.Clone(), true
}

// SetConsensus replaces the canonical segmentation used by Validate.
func (s *State) SetConsensus(sp profile.SegmentedProfile) {
	s.mu.Lock()
	c := sp.Clone()
	s.consensus = &c
	s.mu.Unlock()
}

// Validate checks every nucleus against the consensus segmentation, or
// against the first nucleus's segmentation when no consensus exists.
func (s *State) Validate() *validate.Report {
	s.mu.Lock()
	rep := s.validatorLocked().Validate(s.orderedLocked())
	s.mu.Unlock()
	s.Emit(EventValidated, rep)
	return rep
}

// Repair fixes reference points that drifted off a segment boundary.
func (s *State) Repair() *validate.Report {
	s.mu.Lock()
	rep := s.validatorLocked().Repair(s.orderedLocked())
	s.Modified = true
	s.mu.Unlock()
	s.Emit(EventValidated, rep)
	return rep
}

func (s *State) validatorLocked() *validate.Validator {
	var canonical *segment.Ring
	switch {
	case s.consensus != nil:
		canonical = s.consensus.Ring
	case len(s.order) > 0:
		if sp, err := s.nuclei[s.order[0]].SegmentedProfile(landmark.Reference); err == nil {
			canonical = sp.Ring
		}
	}
	return validate.New(canonical)
}

func (s *State) orderedLocked() []*nucleus.Nucleus {
	out := make([]*nucleus.Nucleus, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nuclei[id])
	}
	return out
}

// IDs returns every nucleus id, sorted.
func (s *State) IDs() []uuid.UUID {
	s.mu.RLock()
	ids := append([]uuid.UUID(nil), s.order...)
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
