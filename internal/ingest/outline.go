// Package ingest reads traced outlines and turns them into nuclei.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/nucleus"
	"github.com/bmskinner/nma-sub021/pkg/geometry"
)

// Outline is one traced nucleus as written by a detection tool. Landmarks
// are border indices after interpolation.
type Outline struct {
	X            []float64             `json:"x"`
	Y            []float64             `json:"y"`
	CentreOfMass *geometry.Point2D     `json:"com,omitempty"`
	Source       nucleus.SourceImage   `json:"source"`
	Landmarks    map[landmark.Name]int `json:"landmarks,omitempty"`
}

// IsOutlineFile reports whether path has an extension ReadFile accepts.
func IsOutlineFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// ReadFile reads one outline or an array of outlines from a JSON file.
// Outlines without a source image are attributed to the file itself.
func ReadFile(path string) ([]Outline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	outlines, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i := range outlines {
		if outlines[i].Source.File == "" {
			outlines[i].Source.File = filepath.Base(path)
		}
	}
	return outlines, nil
}

// Parse decodes one outline object or an array of them.
func Parse(data []byte) ([]Outline, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty outline file")
	}
	if data[0] == '[' {
		var out []Outline
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var o Outline
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, err
	}
	return []Outline{o}, nil
}

// Build creates a nucleus from an outline. A missing centre of mass
// defaults to the vertex centroid.
func (o Outline) Build(opts nucleus.Options) (*nucleus.Nucleus, error) {
	com := geometry.Point2D{}
	if o.CentreOfMass != nil {
		com = *o.CentreOfMass
	} else {
		if len(o.X) != len(o.Y) {
			return nil, fmt.Errorf("outline has %d x and %d y coordinates", len(o.X), len(o.Y))
		}
		pts := make([]geometry.Point2D, len(o.X))
		for i := range o.X {
			pts[i] = geometry.NewPoint2D(o.X[i], o.Y[i])
		}
		com = geometry.Centroid(pts)
	}
	if o.Source.File != "" {
		opts.Source = o.Source
	}

	n, err := nucleus.New(o.X, o.Y, com, opts)
	if err != nil {
		return nil, err
	}
	// Reference first, so later landmarks are not shifted by ring moves.
	ref := opts.Rules.ReferenceName()
	if idx, ok := o.Landmarks[ref]; ok {
		if err := n.SetLandmark(ref, idx); err != nil {
			return nil, err
		}
	}
	for name, idx := range o.Landmarks {
		if name == ref {
			continue
		}
		if err := n.SetLandmark(name, idx); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// LoadFile reads and builds every outline in a file. Outlines that fail
// are skipped and their errors joined.
func LoadFile(path string, opts nucleus.Options) ([]*nucleus.Nucleus, error) {
	outlines, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []*nucleus.Nucleus
	var errs []error
	for i, o := range outlines {
		n, err := o.Build(opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s outline %d: %w", path, i, err))
			continue
		}
		out = append(out, n)
	}
	return out, errors.Join(errs...)
}
