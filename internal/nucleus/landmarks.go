package nucleus

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/segment"
	"github.com/bmskinner/nma-sub021/pkg/circular"
)

func (n *Nucleus) referenceName() landmark.Name {
	return n.rules.ReferenceName()
}

// ReferenceIndex returns the border index of the reference point.
func (n *Nucleus) ReferenceIndex() (int, error) {
	return n.landmarks.Get(n.referenceName())
}

// Landmark returns the border index of the named landmark.
func (n *Nucleus) Landmark(name landmark.Name) (int, error) {
	return n.landmarks.Get(name)
}

// Landmarks returns a copy of the landmark map.
func (n *Nucleus) Landmarks() map[landmark.Name]int {
	return n.landmarks.Map()
}

// LandmarkFor resolves an orientation mark through the rule set.
func (n *Nucleus) LandmarkFor(mark landmark.OrientationMark) (int, error) {
	name, ok := n.rules.Landmark(mark)
	if !ok {
		return 0, fmt.Errorf("%w: rule set %q does not map %s", landmark.ErrMissingLandmark, n.rules.Name, mark)
	}
	return n.landmarks.Get(name)
}

// SetLandmark places a landmark at a border index. Moving the reference
// point carries the segment ring with it, so the reference point stays on a
// segment boundary.
func (n *Nucleus) SetLandmark(name landmark.Name, index int) error {
	if n.locked {
		return fmt.Errorf("set landmark %q: %w", name, ErrLocked)
	}
	index = circular.Wrap(index, n.Len())

	if name != n.referenceName() {
		n.landmarks.Set(name, index)
		return nil
	}

	oldRP, err := n.ReferenceIndex()
	if err != nil {
		n.landmarks.Set(name, index)
		return nil
	}
	diff := index - oldRP

	rel := n.ring.StartFrom(oldRP)
	rel.MoveSegments(diff)
	moved := rel.StartFrom(-oldRP)

	if !moved.IsBoundary(index) {
		return fmt.Errorf("%w: reference point %d is not on a segment boundary after moving from %d",
			segment.ErrInvalidRing, index, oldRP)
	}
	n.ring = moved
	n.landmarks.Set(name, index)
	slog.Debug("moved reference point", "nucleus", n.id, "from", oldRP, "to", index)
	return nil
}

// OverwriteLandmark assigns a landmark index directly. Segments are not
// moved, so overwriting the reference point can leave it off a boundary.
// Only consistency repair should need this.
func (n *Nucleus) OverwriteLandmark(name landmark.Name, index int) {
	n.landmarks.Set(name, circular.Wrap(index, n.Len()))
}

// RemoveLandmark unsets a landmark. The reference point cannot be removed.
func (n *Nucleus) RemoveLandmark(name landmark.Name) error {
	if n.locked {
		return fmt.Errorf("remove landmark %q: %w", name, ErrLocked)
	}
	if name == n.referenceName() {
		return fmt.Errorf("cannot remove the reference point")
	}
	n.landmarks.Remove(name)
	return nil
}

// Segments returns a copy of the segment ring indexed from border index 0.
func (n *Nucleus) Segments() *segment.Ring {
	return n.ring.Clone()
}

// SetSegments replaces the segment ring. rel must be indexed from the
// reference point and have a boundary at its index 0.
func (n *Nucleus) SetSegments(rel *segment.Ring) error {
	if n.locked {
		return fmt.Errorf("set segments: %w", ErrLocked)
	}
	if rel.Total() != n.Len() {
		return fmt.Errorf("%w: ring spans %d indices, nucleus has %d border points", segment.ErrInvalidRing, rel.Total(), n.Len())
	}
	if err := rel.Validate(); err != nil {
		return err
	}
	if !rel.IsBoundary(0) {
		return fmt.Errorf("%w: no segment starts at the reference point", segment.ErrInvalidRing)
	}
	rp, err := n.ReferenceIndex()
	if err != nil {
		return err
	}
	abs := rel.StartFrom(-rp)
	abs.RotateHead(rp)
	n.ring = abs
	return nil
}

// SegmentEvenly replaces the ring with count near-equal segments, the first
// starting at the reference point.
func (n *Nucleus) SegmentEvenly(count int) error {
	ring, err := segment.NewEvenRing(n.Len(), count, 0, n.minSegmentLength)
	if err != nil {
		return err
	}
	return n.SetSegments(ring)
}

// UpdateSegment moves the boundaries of a segment, with start and end
// indexed from the reference point. Updates that would move the boundary at
// the reference point are refused, as are updates to locked nuclei.
func (n *Nucleus) UpdateSegment(id uuid.UUID, start, end int) bool {
	if n.locked {
		return false
	}
	rp, err := n.ReferenceIndex()
	if err != nil {
		return false
	}
	rel := n.ring.StartFrom(rp)
	seg, ok := rel.Get(id)
	if !ok {
		return false
	}
	total := rel.Total()
	if (seg.Start == 0 && circular.Wrap(start, total) != 0) || (seg.End == 0 && circular.Wrap(end, total) != 0) {
		slog.Debug("segment update refused: would move the reference point boundary", "nucleus", n.id, "segment", seg)
		return false
	}
	if !rel.Update(id, start, end) {
		return false
	}
	n.ring = rel.StartFrom(-rp)
	return true
}
