package nucleus

import (
	"fmt"
	"log/slog"

	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/profile"
	"github.com/bmskinner/nma-sub021/internal/refit"
	"github.com/bmskinner/nma-sub021/internal/segment"
	"github.com/bmskinner/nma-sub021/pkg/circular"
)

// Reverse flips the traversal direction of the outline and carries the
// segment ring and landmarks across.
//
// The border is rebuilt, so its length can change. The previous segmented
// profile, read from the reference point, is reversed and fitted to the new
// angle profile; the reference point moves to the start of the fitted ring's
// head. Other landmarks are remapped as length-idx-1, which is only an
// approximation of where they went. If any step fails the nucleus is left as
// it was.
func (n *Nucleus) Reverse() error {
	if n.locked {
		return fmt.Errorf("reverse nucleus %s: %w", n.id, ErrLocked)
	}
	snapshot := n.Clone()
	if err := n.reverse(); err != nil {
		n.restore(snapshot)
		return fmt.Errorf("reverse nucleus %s: %w", n.id, err)
	}
	return nil
}

func (n *Nucleus) reverse() error {
	previous, err := n.SegmentedProfile(landmark.Reference)
	if err != nil {
		return err
	}
	oldLen := n.Len()

	n.contour.Reverse()
	n.markDirty()

	current, err := n.Profile(profile.Angle)
	if err != nil {
		return err
	}
	fit, err := refit.Fit(previous, current)
	if err != nil {
		return err
	}

	newLen := n.Len()
	n.ring = fit.Profile.Ring
	rp := fit.Reference()

	rpName := n.referenceName()
	for name, idx := range n.landmarks.Map() {
		if name == rpName {
			continue
		}
		n.landmarks.Set(name, circular.Wrap(newLen-idx-1, newLen))
	}
	n.landmarks.Set(rpName, rp)

	if n.ring.Total() != newLen || !n.ring.IsBoundary(rp) {
		return fmt.Errorf("%w: reference point %d is not on a segment boundary after reversal", segment.ErrInvalidRing, rp)
	}

	slog.Debug("reversed nucleus",
		"nucleus", n.id,
		"old_length", oldLen,
		"new_length", newLen,
		"offset", fit.Offset,
		"score", fit.Score,
		"reference", rp,
	)
	return nil
}
