// Package profile turns a contour into circular scalar signals, one value
// per border point, and provides the index arithmetic used to compare them.
package profile

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/bmskinner/nma-sub021/pkg/circular"
)

// Type identifies what a profile measures.
type Type int

const (
	// Angle is the windowed interior angle at each border point.
	Angle Type = iota
	// Radius is the distance from each border point to the centre of mass.
	Radius
	// Diameter is the distance from each border point to the opposite border.
	Diameter
)

// Types lists every profile type.
var Types = []Type{Angle, Radius, Diameter}

func (t Type) String() string {
	switch t {
	case Angle:
		return "angle"
	case Radius:
		return "radius"
	case Diameter:
		return "diameter"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType converts a name such as "angle" into a Type.
func ParseType(s string) (Type, error) {
	for _, t := range Types {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown profile type %q", s)
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ErrLengthMismatch is returned when two profiles must have equal length.
var ErrLengthMismatch = errors.New("profile lengths differ")

// Profile is a circular sequence of values. Indexing wraps.
type Profile struct {
	values []float64
}

// New copies values into a profile.
func New(values []float64) Profile {
	return Profile{values: append([]float64(nil), values...)}
}

// Len returns the number of values.
func (p Profile) Len() int { return len(p.values) }

// Get returns the value at index i, wrapping around the profile.
func (p Profile) Get(i int) float64 {
	return p.values[circular.Wrap(i, len(p.values))]
}

// Values returns a copy of the underlying values.
func (p Profile) Values() []float64 {
	return append([]float64(nil), p.values...)
}

// StartFrom returns the profile re-indexed so that index k becomes 0.
func (p Profile) StartFrom(k int) Profile {
	n := len(p.values)
	out := make([]float64, n)
	for i := range out {
		out[i] = p.values[circular.Wrap(i+k, n)]
	}
	return Profile{values: out}
}

// Reverse returns the profile read backwards: index i becomes n-1-i.
func (p Profile) Reverse() Profile {
	n := len(p.values)
	out := make([]float64, n)
	for i, v := range p.values {
		out[n-1-i] = v
	}
	return Profile{values: out}
}

// Interpolate resamples the profile to length n by linear interpolation
// between neighbouring values, wrapping at the end.
func (p Profile) Interpolate(n int) (Profile, error) {
	if n <= 0 {
		return Profile{}, fmt.Errorf("cannot interpolate profile to length %d", n)
	}
	m := len(p.values)
	if m == 0 {
		return Profile{}, fmt.Errorf("cannot interpolate empty profile")
	}
	if n == m {
		return New(p.values), nil
	}
	out := make([]float64, n)
	step := float64(m) / float64(n)
	for i := range out {
		f := circular.WrapFloat(float64(i)*step, m)
		lo := int(math.Floor(f))
		frac := f - float64(lo)
		a := p.values[circular.Wrap(lo, m)]
		b := p.values[circular.Wrap(lo+1, m)]
		out[i] = a + (b-a)*frac
	}
	return Profile{values: out}, nil
}

// SquaredDifference returns the sum of squared differences between p and o.
func (p Profile) SquaredDifference(o Profile) (float64, error) {
	if p.Len() != o.Len() {
		return 0, fmt.Errorf("%w: %d and %d", ErrLengthMismatch, p.Len(), o.Len())
	}
	d := floats.Distance(p.values, o.values, 2)
	return d * d, nil
}

// BestFitOffset finds the offset k minimising sum((p[i+k] - o[i])^2) by
// trying every k. It returns k and the score at k.
func (p Profile) BestFitOffset(o Profile) (int, float64, error) {
	n := p.Len()
	if n != o.Len() {
		return 0, 0, fmt.Errorf("%w: %d and %d", ErrLengthMismatch, n, o.Len())
	}
	if n == 0 {
		return 0, 0, fmt.Errorf("cannot fit empty profiles")
	}

	shifted := make([]float64, n)
	best, bestScore := 0, math.Inf(1)
	for k := 0; k < n; k++ {
		for i := range shifted {
			shifted[i] = p.values[circular.Wrap(i+k, n)]
		}
		d := floats.Distance(shifted, o.values, 2)
		if score := d * d; score < bestScore {
			best, bestScore = k, score
		}
	}
	return best, bestScore, nil
}

func (p Profile) Min() float64 { return floats.Min(p.values) }
func (p Profile) Max() float64 { return floats.Max(p.values) }

// MinIndex returns the index of the smallest value.
func (p Profile) MinIndex() int { return floats.MinIdx(p.values) }

// MaxIndex returns the index of the largest value.
func (p Profile) MaxIndex() int { return floats.MaxIdx(p.values) }

// Mean returns the arithmetic mean of the values.
func (p Profile) Mean() float64 {
	return floats.Sum(p.values) / float64(len(p.values))
}
