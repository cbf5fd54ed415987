package segment

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/bmskinner/nma-sub021/pkg/circular"
)

// Update moves the boundaries of the segment with the given id to
// [start, end). The shared boundaries of the neighbouring segments move with
// it. All resulting boundaries are computed and validated before anything is
// changed; a refused update returns false and leaves the ring untouched.
//
// Checks, in order: locks, bounds (0 <= start,end <= total), the segment's
// own length, the lengths left to the previous and next segments, and that
// the new boundaries keep the ring's winding order.
func (r *Ring) Update(id uuid.UUID, start, end int) bool {
	i := r.indexOf(id)
	if i < 0 {
		slog.Debug("segment update refused: unknown segment", "segment", id)
		return false
	}
	seg := r.segs[i]

	if start < 0 || start > r.total || end < 0 || end > r.total {
		slog.Debug("segment update refused: out of bounds", "segment", seg, "start", start, "end", end, "total", r.total)
		return false
	}
	start = circular.Wrap(start, r.total)
	end = circular.Wrap(end, r.total)

	if start == seg.Start && end == seg.End {
		return true
	}
	if seg.Locked {
		slog.Debug("segment update refused: segment locked", "segment", seg)
		return false
	}

	n := len(r.segs)
	if n == 1 {
		// A lone segment covers everything; only its origin can move.
		if start != end {
			return false
		}
		r.segs[0].Start, r.segs[0].End = start, end
		return true
	}

	pi := circular.Wrap(i-1, n)
	ni := circular.Wrap(i+1, n)
	prev, next := r.segs[pi], r.segs[ni]

	if start != seg.Start && prev.Locked {
		slog.Debug("segment update refused: previous segment locked", "segment", seg, "previous", prev)
		return false
	}
	if end != seg.End && next.Locked {
		slog.Debug("segment update refused: next segment locked", "segment", seg, "next", next)
		return false
	}

	if own := r.arc(start, end); own < r.minLength {
		slog.Debug("segment update refused: segment too short", "segment", seg, "length", own)
		return false
	}
	if start != seg.Start {
		if l := r.arc(prev.Start, start); l < r.minLength {
			slog.Debug("segment update refused: previous segment too short", "previous", prev, "length", l)
			return false
		}
	}
	if end != seg.End {
		if l := r.arc(end, next.End); l < r.minLength {
			slog.Debug("segment update refused: next segment too short", "next", next, "length", l)
			return false
		}
	}

	// Build the whole batch of boundary changes before touching the ring.
	starts := make([]int, n)
	ends := make([]int, n)
	for k, s := range r.segs {
		starts[k], ends[k] = s.Start, s.End
	}
	starts[i], ends[i] = start, end
	ends[pi] = start
	starts[ni] = end

	if !r.winds(starts, ends) {
		slog.Debug("segment update refused: boundaries out of order", "segment", seg, "start", start, "end", end)
		return false
	}

	for k := range r.segs {
		setBounds(&r.segs[k], starts[k], ends[k])
	}
	return true
}

// winds reports whether the candidate boundaries still tile the profile once,
// in ring order, with every segment at least the minimum length.
func (r *Ring) winds(starts, ends []int) bool {
	n := len(starts)
	sum := 0
	for k := 0; k < n; k++ {
		if ends[k] != starts[circular.Wrap(k+1, n)] {
			return false
		}
		l := r.arc(starts[k], ends[k])
		if l < r.minLength {
			return false
		}
		sum += l
	}
	return sum == r.total
}

// setBounds moves a segment and keeps the outer edges of its merge sources
// in step.
func setBounds(s *Segment, start, end int) {
	s.Start, s.End = start, end
	if k := len(s.MergeSources); k > 0 {
		s.MergeSources[0].Start = start
		s.MergeSources[k-1].End = end
	}
}

// SetLocked sets the lock flag on the segment with the given id.
func (r *Ring) SetLocked(id uuid.UUID, locked bool) bool {
	i := r.indexOf(id)
	if i < 0 {
		return false
	}
	r.segs[i].Locked = locked
	return true
}

// LockAll sets the lock flag on every segment.
func (r *Ring) LockAll(locked bool) {
	for i := range r.segs {
		r.segs[i].Locked = locked
	}
}
