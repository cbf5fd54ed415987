// Package project provides dataset file handling and persistence.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmskinner/nma-sub021/internal/nucleus"
)

// CurrentVersion is the dataset file format version written by Save.
const CurrentVersion = 1

// Extension is the conventional dataset file extension.
const Extension = ".nmd"

// File represents a dataset file (.nmd): a named population of nuclei.
type File struct {
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	RuleSet     string    `json:"rule_set"`
	Description string    `json:"description,omitempty"`

	// Image directory (relative to dataset file)
	ImageDir string `json:"image_dir,omitempty"`

	// User settings
	Settings Settings `json:"settings,omitempty"`

	Nuclei []nucleus.State `json:"nuclei"`
}

// Settings holds analysis preferences for the dataset.
type Settings struct {
	WindowProportion float64 `json:"window_proportion,omitempty"`
	SegmentCount     int     `json:"segment_count,omitempty"`
	MinSegmentLength int     `json:"min_segment_length,omitempty"`
}

// New creates a new dataset file with default settings.
func New(name, ruleSet string) *File {
	now := time.Now()
	return &File{
		Version:  CurrentVersion,
		Name:     name,
		Created:  now,
		Modified: now,
		RuleSet:  ruleSet,
		Settings: Settings{
			WindowProportion: 0.05,
			SegmentCount:     4,
			MinSegmentLength: 10,
		},
	}
}

// Load loads a dataset from a file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if f.Version > CurrentVersion {
		return nil, fmt.Errorf("%s: unsupported dataset version %d", path, f.Version)
	}

	return &f, nil
}

// Save saves the dataset to a file.
func (f *File) Save(path string) error {
	f.Modified = time.Now()
	if f.Version == 0 {
		f.Version = CurrentVersion
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// SetNuclei replaces the stored nuclei with snapshots of ns.
func (f *File) SetNuclei(ns []*nucleus.Nucleus) {
	f.Nuclei = f.Nuclei[:0]
	for _, n := range ns {
		f.Nuclei = append(f.Nuclei, n.Snapshot())
	}
	f.Modified = time.Now()
}

// AddNucleus appends a snapshot of n.
func (f *File) AddNucleus(n *nucleus.Nucleus) {
	f.Nuclei = append(f.Nuclei, n.Snapshot())
	f.Modified = time.Now()
}

// Restore rebuilds every stored nucleus. Nuclei that fail to rebuild are
// skipped and their errors joined.
func (f *File) Restore() ([]*nucleus.Nucleus, error) {
	out := make([]*nucleus.Nucleus, 0, len(f.Nuclei))
	var errs []error
	for _, st := range f.Nuclei {
		n, err := nucleus.FromState(st)
		if err != nil {
			errs = append(errs, fmt.Errorf("nucleus %s: %w", st.ID, err))
			continue
		}
		out = append(out, n)
	}
	return out, errors.Join(errs...)
}

// SetImageDir sets the image directory (relative to the dataset).
func (f *File) SetImageDir(datasetPath, dir string) {
	rel, err := filepath.Rel(filepath.Dir(datasetPath), dir)
	if err != nil {
		f.ImageDir = dir
	} else {
		f.ImageDir = rel
	}
	f.Modified = time.Now()
}

// GetImagePath returns the absolute path to a nucleus's source image.
func (f *File) GetImagePath(datasetPath string, src nucleus.SourceImage) string {
	if src.File == "" {
		return ""
	}
	if filepath.IsAbs(src.File) {
		return src.File
	}
	return filepath.Join(filepath.Dir(datasetPath), f.ImageDir, src.File)
}

// DefaultPath returns the dataset path for a name in dir.
func DefaultPath(dir, name string) string {
	return filepath.Join(dir, name+Extension)
}
