package profile

import (
	"fmt"

	"github.com/bmskinner/nma-sub021/internal/segment"
)

// SegmentedProfile pairs a profile with a segment ring over the same indices.
// Re-indexing operations move both together.
type SegmentedProfile struct {
	Profile
	Ring *segment.Ring
}

// NewSegmented pairs p with r. The ring must span exactly the profile.
func NewSegmented(p Profile, r *segment.Ring) (SegmentedProfile, error) {
	if r == nil {
		return SegmentedProfile{}, fmt.Errorf("segmented profile needs a ring")
	}
	if r.Total() != p.Len() {
		return SegmentedProfile{}, fmt.Errorf("%w: ring spans %d indices, profile has %d", ErrLengthMismatch, r.Total(), p.Len())
	}
	return SegmentedProfile{Profile: p, Ring: r}, nil
}

// StartFrom re-indexes profile and ring so that index k becomes 0. The head
// of the returned ring is the segment covering the new index 0.
func (sp SegmentedProfile) StartFrom(k int) SegmentedProfile {
	ring := sp.Ring.StartFrom(k)
	ring.RotateHead(0)
	return SegmentedProfile{Profile: sp.Profile.StartFrom(k), Ring: ring}
}

// Reverse reads profile and ring backwards.
func (sp SegmentedProfile) Reverse() SegmentedProfile {
	ring := sp.Ring.Clone()
	ring.Reverse()
	return SegmentedProfile{Profile: sp.Profile.Reverse(), Ring: ring}
}

// Interpolate resamples the profile to length n and scales the ring
// boundaries to match.
func (sp SegmentedProfile) Interpolate(n int) (SegmentedProfile, error) {
	p, err := sp.Profile.Interpolate(n)
	if err != nil {
		return SegmentedProfile{}, err
	}
	ring, err := sp.Ring.Scale(n)
	if err != nil {
		return SegmentedProfile{}, err
	}
	return SegmentedProfile{Profile: p, Ring: ring}, nil
}

// Clone returns a deep copy.
func (sp SegmentedProfile) Clone() SegmentedProfile {
	return SegmentedProfile{Profile: New(sp.values), Ring: sp.Ring.Clone()}
}
