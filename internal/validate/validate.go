// Package validate checks a population of nuclei against a canonical
// segmentation and repairs the one inconsistency that can be fixed in place:
// a reference point that has drifted off its segment boundary.
package validate

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/nucleus"
	"github.com/bmskinner/nma-sub021/internal/profile"
	"github.com/bmskinner/nma-sub021/internal/segment"
)

// Check names a consistency check.
type Check string

const (
	CheckReferencePoint Check = "reference_point"
	CheckProfiles       Check = "profiles"
	CheckSegmentIDs     Check = "segment_ids"
	CheckRing           Check = "ring"
	CheckMergeSources   Check = "merge_sources"
	CheckRPOnBoundary   Check = "rp_on_boundary"
)

// Issue is one failed check on one nucleus.
type Issue struct {
	Nucleus uuid.UUID `json:"nucleus"`
	Check   Check     `json:"check"`
	Message string    `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Nucleus, i.Check, i.Message)
}

// Report accumulates issues across a population.
type Report struct {
	Issues    []Issue            `json:"issues"`
	Offenders map[uuid.UUID]bool `json:"-"`
	Checked   int                `json:"checked"`
}

func newReport() *Report {
	return &Report{Offenders: make(map[uuid.UUID]bool)}
}

func (r *Report) add(id uuid.UUID, check Check, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Nucleus: id, Check: check, Message: fmt.Sprintf(format, args...)})
	r.Offenders[id] = true
}

// OK reports whether no issues were found.
func (r *Report) OK() bool { return len(r.Issues) == 0 }

// ErrorCount returns the number of failed checks.
func (r *Report) ErrorCount() int { return len(r.Issues) }

// OffenderIDs returns the ids of nuclei with at least one issue, sorted.
func (r *Report) OffenderIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.Offenders))
	for id := range r.Offenders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Has reports whether the report contains an issue of the given check for
// the given nucleus.
func (r *Report) Has(id uuid.UUID, check Check) bool {
	for _, i := range r.Issues {
		if i.Nucleus == id && i.Check == check {
			return true
		}
	}
	return false
}

func (r *Report) String() string {
	if r.OK() {
		return fmt.Sprintf("%d nuclei checked, no issues", r.Checked)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d nuclei checked, %d issues in %d nuclei", r.Checked, len(r.Issues), len(r.Offenders))
	for _, i := range r.Issues {
		b.WriteString("\n  ")
		b.WriteString(i.String())
	}
	return b.String()
}

// Validator checks nuclei against a canonical ring. The canonical ring is
// indexed from the reference point, as returned by
// Nucleus.SegmentedProfile(landmark.Reference).
type Validator struct {
	Canonical *segment.Ring
	Required  []profile.Type
}

// New returns a validator requiring the angle profile.
func New(canonical *segment.Ring) *Validator {
	return &Validator{Canonical: canonical, Required: []profile.Type{profile.Angle}}
}

// Validate checks every nucleus and returns the accumulated report. Domain
// inconsistencies never produce an error.
func (v *Validator) Validate(nuclei []*nucleus.Nucleus) *Report {
	r := newReport()
	for _, n := range nuclei {
		v.check(n, r)
		r.Checked++
	}
	return r
}

// ValidateOne checks a single nucleus.
func (v *Validator) ValidateOne(n *nucleus.Nucleus) *Report {
	return v.Validate([]*nucleus.Nucleus{n})
}

func (v *Validator) check(n *nucleus.Nucleus, r *Report) {
	id := n.ID()

	rp, err := n.ReferenceIndex()
	if err != nil {
		r.add(id, CheckReferencePoint, "reference point is not assigned")
	}

	for _, t := range v.Required {
		if _, err := n.Profile(t); err != nil {
			r.add(id, CheckProfiles, "%s profile unavailable: %v", t, err)
		}
	}

	ring := n.Segments()
	if err := ring.Validate(); err != nil {
		r.add(id, CheckRing, "%v", err)
	}
	if ring.Total() != n.Len() {
		r.add(id, CheckRing, "ring spans %d indices but border has %d points", ring.Total(), n.Len())
	}

	if v.Canonical != nil {
		v.compareSegments(id, ring, r)
	}

	if err == nil && !ring.IsBoundary(rp) {
		r.add(id, CheckRPOnBoundary, "reference point %d is not a segment start", rp)
	}
}

func (v *Validator) compareSegments(id uuid.UUID, ring *segment.Ring, r *Report) {
	want := make(map[uuid.UUID]segment.Segment)
	for _, s := range v.Canonical.Segments() {
		want[s.ID] = s
	}
	have := make(map[uuid.UUID]segment.Segment)
	for _, s := range ring.Segments() {
		have[s.ID] = s
	}

	for sid := range want {
		if _, ok := have[sid]; !ok {
			r.add(id, CheckSegmentIDs, "missing segment %s", sid)
		}
	}
	for sid := range have {
		if _, ok := want[sid]; !ok {
			r.add(id, CheckSegmentIDs, "unexpected segment %s", sid)
		}
	}

	for sid, c := range want {
		s, ok := have[sid]
		if !ok {
			continue
		}
		wantSrc := c.MergeSourceIDs()
		haveSrc := s.MergeSourceIDs()
		if len(wantSrc) != len(haveSrc) {
			r.add(id, CheckMergeSources, "segment %s has %d merge sources, expected %d", sid, len(haveSrc), len(wantSrc))
			continue
		}
		for i := range wantSrc {
			if wantSrc[i] != haveSrc[i] {
				r.add(id, CheckMergeSources, "segment %s merge source %d is %s, expected %s", sid, i, haveSrc[i], wantSrc[i])
				break
			}
		}
	}
}

// Repair fixes nuclei whose reference point is off a segment boundary by
// overwriting the reference point with the start of the segment that the
// canonical ring says begins at the reference point. Segments are not
// moved. Each repaired nucleus is re-validated; failures are logged and
// returned in the report, never as an error.
func (v *Validator) Repair(nuclei []*nucleus.Nucleus) *Report {
	var headID uuid.UUID
	if v.Canonical != nil {
		if s, ok := v.Canonical.SegmentContaining(0); ok {
			headID = s.ID
		}
	}

	for _, n := range nuclei {
		rp, err := n.ReferenceIndex()
		if err != nil {
			slog.Warn("cannot repair nucleus without a reference point", "nucleus", n.ID())
			continue
		}
		ring := n.Segments()
		if ring.IsBoundary(rp) {
			continue
		}

		target, ok := ring.Get(headID)
		if !ok {
			// Without a canonical match, snap to the segment holding the
			// reference point.
			target, ok = ring.SegmentContaining(rp)
		}
		if !ok {
			slog.Warn("no segment found to repair reference point", "nucleus", n.ID(), "rp", rp)
			continue
		}

		name, _ := n.Rules().Landmark(landmark.Reference)
		n.OverwriteLandmark(name, target.Start)

		if rep := v.ValidateOne(n); rep.OK() {
			slog.Info("repaired reference point", "nucleus", n.ID(), "from", rp, "to", target.Start)
		} else {
			slog.Warn("reference point repair incomplete", "nucleus", n.ID(), "from", rp, "to", target.Start, "issues", rep.ErrorCount())
		}
	}
	return v.Validate(nuclei)
}
