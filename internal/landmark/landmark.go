// Package landmark holds the named border indices of a nucleus and the rule
// sets that map abstract orientation marks onto them.
package landmark

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Name identifies a landmark, e.g. "Tip" or "Reference point".
type Name string

// ReferencePoint is the landmark name used by the built-in round rule set.
const ReferencePoint Name = "Reference point"

// ErrMissingLandmark is returned when a landmark or orientation mark has no
// assigned index.
var ErrMissingLandmark = errors.New("missing landmark")

// OrientationMark is an abstract position that a rule set resolves to a
// landmark name.
type OrientationMark int

const (
	Reference OrientationMark = iota
	Top
	Bottom
	Left
	Right
	X
	Y
)

// Marks lists every orientation mark.
var Marks = []OrientationMark{Reference, Top, Bottom, Left, Right, X, Y}

var markNames = map[OrientationMark]string{
	Reference: "reference",
	Top:       "top",
	Bottom:    "bottom",
	Left:      "left",
	Right:     "right",
	X:         "x",
	Y:         "y",
}

func (m OrientationMark) String() string {
	if s, ok := markNames[m]; ok {
		return s
	}
	return fmt.Sprintf("OrientationMark(%d)", int(m))
}

// ParseMark converts a name such as "TOP" or "top" into an OrientationMark.
func ParseMark(s string) (OrientationMark, error) {
	for m, name := range markNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown orientation mark %q", s)
}

func (m OrientationMark) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *OrientationMark) UnmarshalText(b []byte) error {
	v, err := ParseMark(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Registry maps landmark names to border indices. A name absent from the
// registry is unset. The zero value is not usable; call NewRegistry.
type Registry struct {
	indices map[Name]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{indices: make(map[Name]int)}
}

// Set assigns index to name without any further bookkeeping. Segment-aware
// placement of the reference point is done by the owning nucleus.
func (r *Registry) Set(name Name, index int) {
	r.indices[name] = index
}

// Get returns the index of name, or ErrMissingLandmark.
func (r *Registry) Get(name Name) (int, error) {
	i, ok := r.indices[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMissingLandmark, name)
	}
	return i, nil
}

// Has reports whether name is assigned.
func (r *Registry) Has(name Name) bool {
	_, ok := r.indices[name]
	return ok
}

// Remove unsets name.
func (r *Registry) Remove(name Name) {
	delete(r.indices, name)
}

// Names returns the assigned landmark names in sorted order.
func (r *Registry) Names() []Name {
	names := make([]Name, 0, len(r.indices))
	for n := range r.indices {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Map returns a copy of the name to index mapping.
func (r *Registry) Map() map[Name]int {
	out := make(map[Name]int, len(r.indices))
	for k, v := range r.indices {
		out[k] = v
	}
	return out
}

// Len returns the number of assigned landmarks.
func (r *Registry) Len() int { return len(r.indices) }

// Clone returns an independent copy.
func (r *Registry) Clone() *Registry {
	return &Registry{indices: r.Map()}
}
