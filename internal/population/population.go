// Package population runs nucleus operations across many nuclei in
// parallel and aggregates their profiles.
//
// Nuclei share no mutable state, so each worker owns one nucleus at a time.
// Work inside a single nucleus is never split.
package population

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/nucleus"
	"github.com/bmskinner/nma-sub021/internal/profile"
	"github.com/bmskinner/nma-sub021/internal/segment"
)

// ForEach calls fn for every nucleus using up to workers goroutines
// (NumCPU when workers < 1). It waits for all calls and returns the joined
// errors, each tagged with the failing nucleus id.
func ForEach(nuclei []*nucleus.Nucleus, workers int, fn func(*nucleus.Nucleus) error) error {
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	var mu sync.Mutex
	var errs []error

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for _, n := range nuclei {
		wg.Add(1)
		sem <- struct{}{} // acquire

		go func(n *nucleus.Nucleus) {
			defer wg.Done()
			defer func() { <-sem }() // release

			if err := fn(n); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("nucleus %s: %w", n.ID(), err))
				mu.Unlock()
			}
		}(n)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// ComputeProfiles recomputes every nucleus's profiles.
func ComputeProfiles(nuclei []*nucleus.Nucleus, workers int) error {
	return ForEach(nuclei, workers, (*nucleus.Nucleus).ComputeProfiles)
}

// ReverseAll reverses every nucleus. Nuclei that fail are left unchanged.
func ReverseAll(nuclei []*nucleus.Nucleus, workers int) error {
	err := ForEach(nuclei, workers, (*nucleus.Nucleus).Reverse)
	if err != nil {
		slog.Warn("some nuclei could not be reversed", "error", err)
	}
	return err
}

// MedianLength returns the median border length.
func MedianLength(nuclei []*nucleus.Nucleus) int {
	if len(nuclei) == 0 {
		return 0
	}
	lengths := make([]float64, len(nuclei))
	for i, n := range nuclei {
		lengths[i] = float64(n.Len())
	}
	sort.Float64s(lengths)
	return int(stat.Quantile(0.5, stat.Empirical, lengths, nil))
}

// MedianProfile builds the per-index median of every nucleus's profile of
// type t, read from the reference point and resampled to the median border
// length.
func MedianProfile(nuclei []*nucleus.Nucleus, t profile.Type, workers int) (profile.Profile, error) {
	if len(nuclei) == 0 {
		return profile.Profile{}, fmt.Errorf("no nuclei to aggregate")
	}
	length := MedianLength(nuclei)

	resampled := make([][]float64, len(nuclei))
	index := make(map[*nucleus.Nucleus]int, len(nuclei))
	for i, n := range nuclei {
		index[n] = i
	}
	err := ForEach(nuclei, workers, func(n *nucleus.Nucleus) error {
		p, err := n.ProfileFrom(t, landmark.Reference)
		if err != nil {
			return err
		}
		p, err = p.Interpolate(length)
		if err != nil {
			return err
		}
		resampled[index[n]] = p.Values()
		return nil
	})
	if err != nil {
		return profile.Profile{}, err
	}

	median := make([]float64, length)
	column := make([]float64, len(nuclei))
	for i := range median {
		for j, values := range resampled {
			column[j] = values[i]
		}
		sort.Float64s(column)
		median[i] = stat.Quantile(0.5, stat.Empirical, column, nil)
	}
	return profile.New(median), nil
}

// ApplySegmentation gives every nucleus a copy of template, scaled to its
// border length, so all nuclei share segment ids. template is indexed from
// the reference point.
func ApplySegmentation(nuclei []*nucleus.Nucleus, template *segment.Ring, workers int) error {
	return ForEach(nuclei, workers, func(n *nucleus.Nucleus) error {
		ring := template.Clone()
		if ring.Total() != n.Len() {
			var err error
			ring, err = template.Scale(n.Len())
			if err != nil {
				return err
			}
		}
		return n.SetSegments(ring)
	})
}

// Consensus returns the median angle profile with an even segmentation of
// count segments, the first starting at the reference point. The ring is
// suitable both as a template for ApplySegmentation and as the canonical
// ring for validation.
func Consensus(nuclei []*nucleus.Nucleus, count, minLength, workers int) (profile.SegmentedProfile, error) {
	median, err := MedianProfile(nuclei, profile.Angle, workers)
	if err != nil {
		return profile.SegmentedProfile{}, err
	}
	ring, err := segment.NewEvenRing(median.Len(), count, 0, minLength)
	if err != nil {
		return profile.SegmentedProfile{}, err
	}
	return profile.NewSegmented(median, ring)
}
