package segment

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bmskinner/nma-sub021/pkg/circular"
)

// Ring is a circular partition of a profile of length total. Segments are
// held in an arena in ring order; prev/next links are stored as ids and kept
// consistent with that order.
//
// A Ring is not safe for concurrent mutation.
type Ring struct {
	segs      []Segment
	total     int
	minLength int
}

// NewSingle returns a ring holding one segment covering the whole profile,
// starting at index 0.
func NewSingle(total, minLength int) (*Ring, error) {
	return Link(total, minLength, []Segment{New(0, 0)})
}

// Link builds a ring from segments given in circular order. Indices are
// wrapped onto the profile, prev/next are wired circularly and the last
// segment's end is forced to the first segment's start to close the ring.
// If closing the ring leaves any segment shorter than minLength, or the
// segments do not tile the profile, the problem is logged and ErrInvalidRing
// returned.
func Link(total, minLength int, segments []Segment) (*Ring, error) {
	if total <= 0 {
		return nil, fmt.Errorf("%w: profile length must be positive, got %d", ErrInvalidRing, total)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no segments", ErrInvalidRing)
	}
	if minLength < 1 {
		minLength = 1
	}

	r := &Ring{
		segs:      make([]Segment, len(segments)),
		total:     total,
		minLength: minLength,
	}
	for i, s := range segments {
		s = s.clone()
		s.Start = circular.Wrap(s.Start, total)
		s.End = circular.Wrap(s.End, total)
		r.segs[i] = s
	}

	last := &r.segs[len(r.segs)-1]
	if last.End != r.segs[0].Start {
		slog.Debug("closing segment ring", "segment", last.ID, "old_end", last.End, "new_end", r.segs[0].Start)
		last.End = r.segs[0].Start
	}
	r.relink()

	if err := r.Validate(); err != nil {
		slog.Warn("linked segments do not form a valid ring", "error", err)
		return nil, err
	}
	return r, nil
}

// relink rewires prev/next from arena order.
func (r *Ring) relink() {
	n := len(r.segs)
	for i := range r.segs {
		r.segs[i].prev = r.segs[circular.Wrap(i-1, n)].ID
		r.segs[i].next = r.segs[circular.Wrap(i+1, n)].ID
	}
}

// Total returns the profile length the ring partitions.
func (r *Ring) Total() int { return r.total }

// MinLength returns the minimum segment length.
func (r *Ring) MinLength() int { return r.minLength }

// Count returns the number of segments.
func (r *Ring) Count() int { return len(r.segs) }

// Segments returns copies of the segments in ring order.
func (r *Ring) Segments() []Segment {
	out := make([]Segment, len(r.segs))
	for i, s := range r.segs {
		out[i] = s.clone()
	}
	return out
}

// First returns the head of the ring.
func (r *Ring) First() Segment {
	return r.segs[0].clone()
}

// IDs returns the segment ids in ring order.
func (r *Ring) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(r.segs))
	for i, s := range r.segs {
		ids[i] = s.ID
	}
	return ids
}

// Get returns the segment with the given id.
func (r *Ring) Get(id uuid.UUID) (Segment, bool) {
	i := r.indexOf(id)
	if i < 0 {
		return Segment{}, false
	}
	return r.segs[i].clone(), true
}

func (r *Ring) indexOf(id uuid.UUID) int {
	for i, s := range r.segs {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// arc returns the forward distance from a to b.
func (r *Ring) arc(a, b int) int {
	return circular.Distance(a, b, r.total)
}

// Length returns the number of indices covered by s. A lone segment covers
// the whole profile.
func (r *Ring) Length(s Segment) int {
	if len(r.segs) == 1 {
		return r.total
	}
	return r.arc(s.Start, s.End)
}

// Contains reports whether index falls inside s. Wrapping segments contain
// indices at or after Start and before End.
func (r *Ring) Contains(s Segment, index int) bool {
	if len(r.segs) == 1 {
		return true
	}
	index = circular.Wrap(index, r.total)
	if s.Start < s.End {
		return index >= s.Start && index < s.End
	}
	return index >= s.Start || index < s.End
}

// SegmentContaining returns the segment covering index.
func (r *Ring) SegmentContaining(index int) (Segment, bool) {
	for _, s := range r.segs {
		if r.Contains(s, index) {
			return s.clone(), true
		}
	}
	return Segment{}, false
}

// SegmentStartingAt returns the segment whose start is index, if any.
func (r *Ring) SegmentStartingAt(index int) (Segment, bool) {
	index = circular.Wrap(index, r.total)
	for _, s := range r.segs {
		if s.Start == index {
			return s.clone(), true
		}
	}
	return Segment{}, false
}

// IsBoundary reports whether some segment starts at index.
func (r *Ring) IsBoundary(index int) bool {
	_, ok := r.SegmentStartingAt(index)
	return ok
}

// MoveSegments shifts every boundary by offset, wrapping around the profile.
// Lengths, links and ring order are unchanged.
func (r *Ring) MoveSegments(offset int) {
	for i := range r.segs {
		shift(&r.segs[i], offset, r.total)
	}
}

func shift(s *Segment, offset, total int) {
	s.Start = circular.Wrap(s.Start+offset, total)
	s.End = circular.Wrap(s.End+offset, total)
	for i := range s.MergeSources {
		shift(&s.MergeSources[i], offset, total)
	}
}

// StartFrom returns a copy of the ring re-indexed so that index becomes 0.
func (r *Ring) StartFrom(index int) *Ring {
	dup := r.Clone()
	dup.MoveSegments(-index)
	return dup
}

// RotateHead reorders the ring so the segment covering index is first.
// Boundaries do not move.
func (r *Ring) RotateHead(index int) {
	for i, s := range r.segs {
		if r.Contains(s, index) {
			rotated := make([]Segment, 0, len(r.segs))
			rotated = append(rotated, r.segs[i:]...)
			r.segs = append(rotated, r.segs[:i]...)
			return
		}
	}
}

// Reverse mirrors the ring for a profile read in the opposite direction:
// [s, e) becomes [total-e, total-s) and ring order is reversed, so the old
// last segment becomes the head.
func (r *Ring) Reverse() {
	n := len(r.segs)
	out := make([]Segment, n)
	for i, s := range r.segs {
		mirror(&s, r.total)
		out[n-1-i] = s
	}
	r.segs = out
	r.relink()
}

func mirror(s *Segment, total int) {
	start := circular.Wrap(total-s.End, total)
	end := circular.Wrap(total-s.Start, total)
	s.Start, s.End = start, end
	k := len(s.MergeSources)
	for i := 0; i < k/2; i++ {
		s.MergeSources[i], s.MergeSources[k-1-i] = s.MergeSources[k-1-i], s.MergeSources[i]
	}
	for i := range s.MergeSources {
		mirror(&s.MergeSources[i], total)
	}
}

// Scale re-expresses the ring on a profile of a different length, moving
// each boundary proportionally.
func (r *Ring) Scale(total int) (*Ring, error) {
	if total <= 0 {
		return nil, fmt.Errorf("%w: cannot scale to length %d", ErrInvalidRing, total)
	}
	factor := float64(total) / float64(r.total)
	segs := r.Segments()
	for i := range segs {
		scale(&segs[i], factor, total)
	}
	scaled, err := Link(total, r.minLength, segs)
	if err != nil {
		return nil, fmt.Errorf("scale ring from %d to %d: %w", r.total, total, err)
	}
	return scaled, nil
}

func scale(s *Segment, factor float64, total int) {
	s.Start = circular.Wrap(roundIndex(float64(s.Start)*factor), total)
	s.End = circular.Wrap(roundIndex(float64(s.End)*factor), total)
	for i := range s.MergeSources {
		scale(&s.MergeSources[i], factor, total)
	}
}

func roundIndex(f float64) int {
	return int(f + 0.5)
}

// Validate checks that the ring tiles the profile: each segment ends where
// the next begins, lengths sum to the profile length, no segment is shorter
// than the minimum and links agree with ring order.
func (r *Ring) Validate() error {
	n := len(r.segs)
	if n == 0 {
		return fmt.Errorf("%w: no segments", ErrInvalidRing)
	}
	seen := make(map[uuid.UUID]bool, n)
	sum := 0
	for i, s := range r.segs {
		if s.ID == uuid.Nil {
			return fmt.Errorf("%w: segment %d has no id", ErrInvalidRing, i)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate segment id %s", ErrInvalidRing, s.ID)
		}
		seen[s.ID] = true

		next := r.segs[circular.Wrap(i+1, n)]
		prev := r.segs[circular.Wrap(i-1, n)]
		if s.End != next.Start {
			return fmt.Errorf("%w: %s ends at %d but %s starts at %d", ErrInvalidRing, s, s.End, next, next.Start)
		}
		if s.next != next.ID || s.prev != prev.ID {
			return fmt.Errorf("%w: links of %s disagree with ring order", ErrInvalidRing, s)
		}

		length := r.Length(s)
		if n > 1 && length < r.minLength {
			return fmt.Errorf("%w: %s has length %d, minimum is %d", ErrInvalidRing, s, length, r.minLength)
		}
		sum += length
	}
	if sum != r.total {
		return fmt.Errorf("%w: segments cover %d indices of %d", ErrInvalidRing, sum, r.total)
	}
	return nil
}

// Clone returns a deep copy of the ring.
func (r *Ring) Clone() *Ring {
	return &Ring{
		segs:      r.Segments(),
		total:     r.total,
		minLength: r.minLength,
	}
}

// NewEvenRing splits a profile into count segments of near-equal length,
// with the first boundary at offset.
func NewEvenRing(total, count, offset, minLength int) (*Ring, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: segment count must be positive, got %d", ErrInvalidRing, count)
	}
	if count == 1 {
		return Link(total, minLength, []Segment{New(offset, offset)})
	}
	segs := make([]Segment, count)
	for i := 0; i < count; i++ {
		start := offset + i*total/count
		end := offset + (i+1)*total/count
		segs[i] = New(start, end)
	}
	return Link(total, minLength, segs)
}
