package segment

import (
	"fmt"

	"github.com/google/uuid"
)

// Merge replaces two adjacent segments a and b (b following a) with a single
// new segment spanning both. The new segment keeps copies of a and b as its
// merge sources.
func (r *Ring) Merge(a, b uuid.UUID) (Segment, error) {
	if len(r.segs) < 2 {
		return Segment{}, fmt.Errorf("%w: cannot merge in a ring of %d segments", ErrInvalidRing, len(r.segs))
	}
	i := r.indexOf(a)
	j := r.indexOf(b)
	if i < 0 || j < 0 {
		return Segment{}, fmt.Errorf("%w: merge of unknown segments %s and %s", ErrInvalidRing, a, b)
	}
	if r.segs[i].next != b {
		return Segment{}, fmt.Errorf("%w: %s does not follow %s", ErrInvalidRing, r.segs[j], r.segs[i])
	}
	if r.segs[i].Locked || r.segs[j].Locked {
		return Segment{}, fmt.Errorf("%w: cannot merge locked segments", ErrInvalidRing)
	}

	merged := New(r.segs[i].Start, r.segs[j].End)
	merged.MergeSources = []Segment{r.segs[i].detached(), r.segs[j].detached()}

	segs := make([]Segment, 0, len(r.segs)-1)
	for k, s := range r.segs {
		switch k {
		case i:
			segs = append(segs, merged)
		case j:
		default:
			segs = append(segs, s)
		}
	}
	if j == 0 {
		// b was the head; keep the merged span in its place
		segs = append([]Segment{segs[len(segs)-1]}, segs[:len(segs)-1]...)
	}
	r.segs = segs
	r.relink()
	return merged.clone(), nil
}

// Unmerge restores the merge sources of the segment with the given id. The
// outer edges of the restored segments follow the merged segment's current
// boundaries.
func (r *Ring) Unmerge(id uuid.UUID) error {
	i := r.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: unknown segment %s", ErrInvalidRing, id)
	}
	seg := r.segs[i]
	if !seg.HasMergeSources() {
		return fmt.Errorf("%w: %s has no merge sources", ErrInvalidRing, seg)
	}

	sources := make([]Segment, len(seg.MergeSources))
	for k, m := range seg.MergeSources {
		sources[k] = m.clone()
	}
	sources[0].Start = seg.Start
	sources[len(sources)-1].End = seg.End

	return r.replace(i, sources)
}

// Split divides the segment with the given id at index into two new
// segments. Both parts must meet the minimum length.
func (r *Ring) Split(id uuid.UUID, index int) (Segment, Segment, error) {
	i := r.indexOf(id)
	if i < 0 {
		return Segment{}, Segment{}, fmt.Errorf("%w: unknown segment %s", ErrInvalidRing, id)
	}
	seg := r.segs[i]
	if seg.Locked {
		return Segment{}, Segment{}, fmt.Errorf("%w: cannot split locked segment %s", ErrInvalidRing, seg)
	}
	if !r.Contains(seg, index) || index == seg.Start {
		return Segment{}, Segment{}, fmt.Errorf("%w: index %d is not inside %s", ErrInvalidRing, index, seg)
	}
	left := New(seg.Start, index)
	right := New(index, seg.End)
	if len(r.segs) == 1 {
		left.Start, right.End = seg.Start, seg.Start
	}
	if r.arc(left.Start, left.End) < r.minLength || r.arc(right.Start, right.End) < r.minLength {
		return Segment{}, Segment{}, fmt.Errorf("%w: splitting %s at %d leaves a segment shorter than %d", ErrInvalidRing, seg, index, r.minLength)
	}
	if err := r.replace(i, []Segment{left, right}); err != nil {
		return Segment{}, Segment{}, err
	}
	return left, right, nil
}

// replace swaps the segment at position i for parts, validating the result
// before committing.
func (r *Ring) replace(i int, parts []Segment) error {
	segs := make([]Segment, 0, len(r.segs)+len(parts)-1)
	segs = append(segs, r.segs[:i]...)
	segs = append(segs, parts...)
	segs = append(segs, r.segs[i+1:]...)

	candidate := &Ring{segs: segs, total: r.total, minLength: r.minLength}
	candidate.relink()
	if err := candidate.Validate(); err != nil {
		return err
	}
	r.segs = candidate.segs
	return nil
}
