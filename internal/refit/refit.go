// Package refit carries a segment ring across a reversal of a contour's
// traversal direction.
//
// After a contour is reversed its border is rebuilt, so both its length and
// the correspondence between indices change. The ring fitted to the old
// profile is reversed with it, resampled to the new length if needed, and
// then slid around the new profile to the offset where the two agree best.
package refit

import (
	"fmt"
	"log/slog"

	"github.com/bmskinner/nma-sub021/internal/profile"
)

// Result is a ring fitted to the new profile.
type Result struct {
	// Profile holds the new profile values with the fitted ring, indexed
	// from the new border's index 0.
	Profile profile.SegmentedProfile
	// Offset is the shift applied to the reversed previous ring.
	Offset int
	// Score is the sum of squared differences at Offset.
	Score float64
}

// Reference returns the index the fitted ring's head starts at. The
// reference point belongs there.
func (r Result) Reference() int {
	return r.Profile.Ring.First().Start
}

// Fit reverses previous, a profile and ring expressed from the reference
// point, and finds the rotation k minimising sum((rev[i+k] - current[i])^2)
// by trying every k. The reversed ring is moved by -k so its boundaries are
// indexed like current.
func Fit(previous profile.SegmentedProfile, current profile.Profile) (Result, error) {
	if current.Len() == 0 {
		return Result{}, fmt.Errorf("cannot fit to an empty profile")
	}

	rev := previous.Reverse()
	if rev.Len() != current.Len() {
		slog.Debug("resampling reversed profile", "from", rev.Len(), "to", current.Len())
		var err error
		rev, err = rev.Interpolate(current.Len())
		if err != nil {
			return Result{}, fmt.Errorf("failed to resample reversed profile: %w", err)
		}
	}

	k, score, err := rev.Profile.BestFitOffset(current)
	if err != nil {
		return Result{}, fmt.Errorf("failed to find best fit: %w", err)
	}

	ring := rev.Ring.Clone()
	ring.MoveSegments(-k)

	fitted, err := profile.NewSegmented(current, ring)
	if err != nil {
		return Result{}, err
	}
	return Result{Profile: fitted, Offset: k, Score: score}, nil
}
