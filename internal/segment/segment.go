// Package segment partitions a circular profile into contiguous, named
// regions. A Ring tiles every index of the profile exactly once; boundaries
// are shared between neighbours so moving one moves the other.
package segment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DefaultMinLength is the shortest segment a ring accepts unless told otherwise.
const DefaultMinLength = 10

// ErrInvalidRing is returned when a set of segments does not form a gap-free,
// non-overlapping ring.
var ErrInvalidRing = errors.New("invalid segment ring")

// Segment is a half-open span [Start, End) of profile indices. When End is
// less than Start the segment wraps through index 0.
type Segment struct {
	ID     uuid.UUID
	Start  int
	End    int
	Locked bool

	// MergeSources holds copies of the segments this one was merged from, in
	// ring order. Consistency checks compare them by id.
	MergeSources []Segment

	prev uuid.UUID
	next uuid.UUID
}

// New returns an unlinked segment with a fresh id.
func New(start, end int) Segment {
	return Segment{ID: uuid.New(), Start: start, End: end}
}

// WithID returns an unlinked segment with the given id.
func WithID(id uuid.UUID, start, end int) Segment {
	return Segment{ID: id, Start: start, End: end}
}

// Prev returns the id of the preceding segment in its ring.
func (s Segment) Prev() uuid.UUID { return s.prev }

// Next returns the id of the following segment in its ring.
func (s Segment) Next() uuid.UUID { return s.next }

// HasMergeSources reports whether the segment was produced by a merge.
func (s Segment) HasMergeSources() bool { return len(s.MergeSources) > 0 }

// MergeSourceIDs returns the ids of the merge sources in order.
func (s Segment) MergeSourceIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(s.MergeSources))
	for i, m := range s.MergeSources {
		ids[i] = m.ID
	}
	return ids
}

func (s Segment) String() string {
	return fmt.Sprintf("%s[%d,%d)", s.ID.String()[:8], s.Start, s.End)
}

// clone deep-copies the segment including merge sources.
func (s Segment) clone() Segment {
	dup := s
	if s.MergeSources != nil {
		dup.MergeSources = make([]Segment, len(s.MergeSources))
		for i, m := range s.MergeSources {
			dup.MergeSources[i] = m.clone()
		}
	}
	return dup
}

// detached returns a deep copy with ring links cleared, suitable for storing
// as a merge source.
func (s Segment) detached() Segment {
	dup := s.clone()
	dup.prev = uuid.Nil
	dup.next = uuid.Nil
	return dup
}
