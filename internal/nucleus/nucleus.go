// Package nucleus ties a contour to the profiles, segment ring and landmarks
// derived from it. A Nucleus is the unit that is reversed, oriented,
// validated and persisted.
//
// A Nucleus is single-owner: callers must serialise mutations. Only the
// measurement cache may be read concurrently.
package nucleus

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bmskinner/nma-sub021/internal/contour"
	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/orient"
	"github.com/bmskinner/nma-sub021/internal/profile"
	"github.com/bmskinner/nma-sub021/internal/segment"
	"github.com/bmskinner/nma-sub021/pkg/geometry"
)

var (
	// ErrMissingProfile is returned when a profile type has not been computed.
	ErrMissingProfile = errors.New("missing profile")
	// ErrLocked is returned when a locked nucleus is asked to change its
	// landmarks or segments.
	ErrLocked = errors.New("nucleus is locked")
)

// SourceImage identifies where a nucleus was detected.
type SourceImage struct {
	File    string `json:"file"`
	Channel int    `json:"channel"`
}

// Options control how a nucleus is built.
type Options struct {
	Interval         float64
	WindowProportion float64
	MinSegmentLength int
	Rules            landmark.RuleSet
	Scale            float64 // pixels per micron
	Source           SourceImage
	Profiles         []profile.Type
}

// DefaultOptions returns the options used when nothing else is configured.
func DefaultOptions() Options {
	return Options{
		Interval:         contour.DefaultInterval,
		WindowProportion: profile.DefaultWindowProportion,
		MinSegmentLength: segment.DefaultMinLength,
		Rules:            landmark.Round(),
		Scale:            1,
		Profiles:         profile.Types,
	}
}

// Nucleus is a traced outline with its derived shape data.
type Nucleus struct {
	id     uuid.UUID
	source SourceImage
	scale  float64

	contour          *contour.Contour
	windowProportion float64
	minSegmentLength int
	locked           bool

	rules     landmark.RuleSet
	landmarks *landmark.Registry

	// profiles are recomputed on read when dirty is set
	profileTypes []profile.Type
	profiles     map[profile.Type]profile.Profile
	dirty        bool

	// ring partitions the angle profile, indexed from border index 0
	ring *segment.Ring

	cache *measureCache
}

// New builds a nucleus from raw polygon coordinates and a declared centre of
// mass. The reference point starts at border index 0 and the ring holds a
// single segment starting there.
func New(xs, ys []float64, com geometry.Point2D, opts Options) (*Nucleus, error) {
	c, err := contour.New(xs, ys, com, opts.Interval)
	if err != nil {
		return nil, fmt.Errorf("failed to create nucleus: %w", err)
	}
	return fromContour(uuid.New(), c, opts)
}

func fromContour(id uuid.UUID, c *contour.Contour, opts Options) (*Nucleus, error) {
	if err := opts.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create nucleus: %w", err)
	}
	if !(opts.WindowProportion > 0 && opts.WindowProportion < 1) {
		return nil, fmt.Errorf("failed to create nucleus: %w: got %v", profile.ErrInvalidWindow, opts.WindowProportion)
	}
	if opts.MinSegmentLength < 1 {
		opts.MinSegmentLength = segment.DefaultMinLength
	}
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	if len(opts.Profiles) == 0 {
		opts.Profiles = profile.Types
	}

	ring, err := segment.NewSingle(c.Len(), opts.MinSegmentLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create nucleus: %w", err)
	}

	n := &Nucleus{
		id:               id,
		source:           opts.Source,
		scale:            opts.Scale,
		contour:          c,
		windowProportion: opts.WindowProportion,
		minSegmentLength: opts.MinSegmentLength,
		rules:            opts.Rules.Clone(),
		landmarks:        landmark.NewRegistry(),
		profileTypes:     append([]profile.Type(nil), opts.Profiles...),
		dirty:            true,
		ring:             ring,
		cache:            newMeasureCache(),
	}
	n.landmarks.Set(n.referenceName(), 0)
	return n, nil
}

func (n *Nucleus) ID() uuid.UUID { return n.id }
func (n *Nucleus) Source() SourceImage { return n.source }
func (n *Nucleus) Scale() float64 { return n.scale }
func (n *Nucleus) Rules() landmark.RuleSet { return n.rules.Clone() }
func (n *Nucleus) IsLocked() bool { return n.locked }

// SetLocked freezes or releases the nucleus's landmarks and segments.
func (n *Nucleus) SetLocked(locked bool) { n.locked = locked }

// Contour returns a copy of the nucleus outline.
func (n *Nucleus) Contour() *contour.Contour { return n.contour.Clone() }

// Len returns the number of border points.
func (n *Nucleus) Len() int { return n.contour.Len() }

// WindowProportion returns the fraction of the perimeter used as the angle
// window.
func (n *Nucleus) WindowProportion() float64 { return n.windowProportion }

// SetWindowProportion changes the angle window. Profiles are recomputed on
// next read.
func (n *Nucleus) SetWindowProportion(p float64) error {
	if !(p > 0 && p < 1) {
		return fmt.Errorf("%w: got %v", profile.ErrInvalidWindow, p)
	}
	if p != n.windowProportion {
		n.windowProportion = p
		n.markDirty()
	}
	return nil
}

func (n *Nucleus) markDirty() {
	n.dirty = true
	n.cache.clear()
}

// ComputeProfiles recomputes every configured profile type.
func (n *Nucleus) ComputeProfiles() error {
	profiles := make(map[profile.Type]profile.Profile, len(n.profileTypes))
	for _, t := range n.profileTypes {
		p, err := profile.Compute(t, n.contour, n.windowProportion)
		if err != nil {
			return fmt.Errorf("failed to compute %s profile: %w", t, err)
		}
		profiles[t] = p
	}
	n.profiles = profiles
	n.dirty = false
	return nil
}

// HasProfile reports whether t is one of the nucleus's profile types.
func (n *Nucleus) HasProfile(t profile.Type) bool {
	for _, pt := range n.profileTypes {
		if pt == t {
			return true
		}
	}
	return false
}

// Profile returns the profile of type t indexed from border index 0.
func (n *Nucleus) Profile(t profile.Type) (profile.Profile, error) {
	if !n.HasProfile(t) {
		return profile.Profile{}, fmt.Errorf("%w: %s", ErrMissingProfile, t)
	}
	if n.dirty || n.profiles == nil {
		if err := n.ComputeProfiles(); err != nil {
			return profile.Profile{}, err
		}
	}
	p, ok := n.profiles[t]
	if !ok {
		return profile.Profile{}, fmt.Errorf("%w: %s", ErrMissingProfile, t)
	}
	return p, nil
}

// ProfileFrom returns the profile of type t re-indexed so the landmark
// behind mark is at index 0.
func (n *Nucleus) ProfileFrom(t profile.Type, mark landmark.OrientationMark) (profile.Profile, error) {
	idx, err := n.LandmarkFor(mark)
	if err != nil {
		return profile.Profile{}, err
	}
	p, err := n.Profile(t)
	if err != nil {
		return profile.Profile{}, err
	}
	return p.StartFrom(idx), nil
}

// SegmentedProfile returns the angle profile and segment ring re-indexed so
// the landmark behind mark is at index 0.
func (n *Nucleus) SegmentedProfile(mark landmark.OrientationMark) (profile.SegmentedProfile, error) {
	idx, err := n.LandmarkFor(mark)
	if err != nil {
		return profile.SegmentedProfile{}, err
	}
	p, err := n.Profile(profile.Angle)
	if err != nil {
		return profile.SegmentedProfile{}, err
	}
	sp, err := profile.NewSegmented(p, n.ring.Clone())
	if err != nil {
		return profile.SegmentedProfile{}, err
	}
	return sp.StartFrom(idx), nil
}

// Offset translates the nucleus.
func (n *Nucleus) Offset(dx, dy float64) {
	n.contour.Offset(dx, dy)
	n.cache.clear()
}

// MoveCentreOfMass translates the nucleus so its centre of mass is at p.
func (n *Nucleus) MoveCentreOfMass(p geometry.Point2D) {
	n.contour.MoveCentreOfMass(p)
	n.cache.clear()
}

// Orient rotates and mirrors the nucleus in place using its rule set.
func (n *Nucleus) Orient() (orient.Result, error) {
	res, err := orient.Orient(n.contour, n.landmarks, n.rules)
	if err != nil {
		return orient.Result{}, fmt.Errorf("failed to orient nucleus %s: %w", n.id, err)
	}
	n.cache.clear()
	return res, nil
}

// Oriented returns an oriented copy, leaving the receiver untouched.
func (n *Nucleus) Oriented() (*Nucleus, orient.Result, error) {
	dup := n.Clone()
	res, err := dup.Orient()
	if err != nil {
		return nil, orient.Result{}, err
	}
	return dup, res, nil
}

// Clone returns a deep copy sharing nothing with the receiver.
func (n *Nucleus) Clone() *Nucleus {
	dup := *n
	dup.contour = n.contour.Clone()
	dup.rules = n.rules.Clone()
	dup.landmarks = n.landmarks.Clone()
	dup.profileTypes = append([]profile.Type(nil), n.profileTypes...)
	if n.profiles != nil {
		dup.profiles = make(map[profile.Type]profile.Profile, len(n.profiles))
		for k, v := range n.profiles {
			dup.profiles[k] = v
		}
	}
	dup.ring = n.ring.Clone()
	dup.cache = n.cache.clone()
	return &dup
}

// restore replaces the receiver's state with a snapshot taken by Clone.
func (n *Nucleus) restore(snapshot *Nucleus) {
	*n = *snapshot
}
