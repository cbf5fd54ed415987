package nucleus

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/bmskinner/nma-sub021/internal/contour"
	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/profile"
	"github.com/bmskinner/nma-sub021/internal/segment"
	"github.com/bmskinner/nma-sub021/pkg/geometry"
)

// SegmentState is the persisted form of a segment.
type SegmentState struct {
	ID           uuid.UUID      `json:"id"`
	Start        int            `json:"start"`
	End          int            `json:"end"`
	Locked       bool           `json:"locked,omitempty"`
	MergeSources []SegmentState `json:"merge_sources,omitempty"`
}

// State is everything needed to rebuild a nucleus. The border is not
// stored; it is re-interpolated from the raw coordinates, which gives the
// same points for the same coordinates, interval and direction.
//
// Rotations and flips are not recorded. Oriented copies are derived on
// demand rather than stored.
type State struct {
	ID                   uuid.UUID                                  `json:"id"`
	Source               SourceImage                                `json:"source"`
	OriginalCentreOfMass geometry.Point2D                           `json:"original_com"`
	CentreOfMass         geometry.Point2D                           `json:"com"`
	Scale                float64                                    `json:"scale"`
	RawX                 []float64                                  `json:"raw_x"`
	RawY                 []float64                                  `json:"raw_y"`
	Reversed             bool                                       `json:"reversed"`
	Interval             float64                                    `json:"interval"`
	WindowProportion     float64                                    `json:"window_proportion"`
	MinSegmentLength     int                                        `json:"min_segment_length"`
	Locked               bool                                       `json:"locked"`
	Profiles             []profile.Type                             `json:"profiles,omitempty"`
	Segments             []SegmentState                             `json:"segments"`
	Landmarks            map[landmark.Name]int                      `json:"landmarks"`
	RuleSet              string                                     `json:"rule_set"`
	Marks                map[landmark.OrientationMark]landmark.Name `json:"marks"`
	Priority             landmark.PriorityAxis                      `json:"priority"`
	Measurements         map[Measurement]float64                    `json:"measurements,omitempty"`
}

// Snapshot captures the persistent state of the nucleus. Segments are
// stored in ring order with indices counted from border index 0.
func (n *Nucleus) Snapshot() State {
	s := State{
		ID:                   n.id,
		Source:               n.source,
		OriginalCentreOfMass: n.contour.OriginalCentreOfMass(),
		CentreOfMass:         n.contour.CentreOfMass(),
		Scale:                n.scale,
		RawX:                 n.contour.RawX(),
		RawY:                 n.contour.RawY(),
		Reversed:             n.contour.IsReversed(),
		Interval:             n.contour.Interval(),
		WindowProportion:     n.windowProportion,
		MinSegmentLength:     n.minSegmentLength,
		Locked:               n.locked,
		Profiles:             append([]profile.Type(nil), n.profileTypes...),
		Landmarks:            n.landmarks.Map(),
		RuleSet:              n.rules.Name,
		Marks:                n.rules.Clone().Marks,
		Priority:             n.rules.Priority,
		Measurements:         n.CachedMeasurements(),
	}
	for _, seg := range n.ring.Segments() {
		s.Segments = append(s.Segments, segmentState(seg))
	}
	return s
}

func segmentState(seg segment.Segment) SegmentState {
	st := SegmentState{ID: seg.ID, Start: seg.Start, End: seg.End, Locked: seg.Locked}
	for _, m := range seg.MergeSources {
		st.MergeSources = append(st.MergeSources, segmentState(m))
	}
	return st
}

func (st SegmentState) segment() segment.Segment {
	seg := segment.WithID(st.ID, st.Start, st.End)
	seg.Locked = st.Locked
	for _, m := range st.MergeSources {
		seg.MergeSources = append(seg.MergeSources, m.segment())
	}
	return seg
}

// FromState rebuilds a nucleus from a snapshot. The border is
// re-interpolated from the raw coordinates and direction, then translated
// so the centre of mass matches the stored one.
func FromState(s State) (*Nucleus, error) {
	com := s.OriginalCentreOfMass
	var (
		c   *contour.Contour
		err error
	)
	if s.Reversed {
		c, err = contour.NewReversed(s.RawX, s.RawY, com, s.Interval)
	} else {
		c, err = contour.New(s.RawX, s.RawY, com, s.Interval)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to restore nucleus %s: %w", s.ID, err)
	}
	c.Offset(s.CentreOfMass.X-com.X, s.CentreOfMass.Y-com.Y)

	rules := landmark.RuleSet{Name: s.RuleSet, Marks: s.Marks, Priority: s.Priority}
	opts := Options{
		Interval:         s.Interval,
		WindowProportion: s.WindowProportion,
		MinSegmentLength: s.MinSegmentLength,
		Rules:            rules,
		Scale:            s.Scale,
		Source:           s.Source,
		Profiles:         s.Profiles,
	}
	id := s.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	n, err := fromContour(id, c, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to restore nucleus %s: %w", s.ID, err)
	}

	for name, idx := range s.Landmarks {
		n.landmarks.Set(name, idx)
	}

	if len(s.Segments) > 0 {
		segs := make([]segment.Segment, len(s.Segments))
		for i, st := range s.Segments {
			segs[i] = st.segment()
		}
		ring, err := segment.Link(n.Len(), n.minSegmentLength, segs)
		if err != nil {
			return nil, fmt.Errorf("failed to restore segments of nucleus %s: %w", s.ID, err)
		}
		n.ring = ring
	}

	for m, v := range s.Measurements {
		n.cache.put(m, v)
	}
	n.locked = s.Locked
	return n, nil
}
