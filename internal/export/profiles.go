package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/nucleus"
	"github.com/bmskinner/nma-sub021/internal/profile"
)

// WriteProfilesCSV writes one row per nucleus: its id followed by the
// profile of type t read from the reference point and resampled to length
// points.
func WriteProfilesCSV(w io.Writer, nuclei []*nucleus.Nucleus, t profile.Type, length int) error {
	cw := csv.NewWriter(w)
	header := make([]string, length+1)
	header[0] = "nucleus"
	for i := 0; i < length; i++ {
		header[i+1] = strconv.Itoa(i)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, length+1)
	for _, n := range nuclei {
		p, err := n.ProfileFrom(t, landmark.Reference)
		if err != nil {
			return fmt.Errorf("nucleus %s: %w", n.ID(), err)
		}
		if p, err = p.Interpolate(length); err != nil {
			return fmt.Errorf("nucleus %s: %w", n.ID(), err)
		}
		row[0] = n.ID().String()
		for i, v := range p.Values() {
			row[i+1] = strconv.FormatFloat(v, 'f', 4, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMeasurementsCSV writes one row per nucleus with every measurement
// in calibrated units.
func WriteMeasurementsCSV(w io.Writer, nuclei []*nucleus.Nucleus) error {
	cw := csv.NewWriter(w)
	header := []string{"nucleus", "source", "channel"}
	for _, m := range nucleus.Measurements {
		header = append(header, string(m))
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, n := range nuclei {
		src := n.Source()
		row := []string{n.ID().String(), src.File, strconv.Itoa(src.Channel)}
		for _, m := range nucleus.Measurements {
			v, err := n.MeasureScaled(m)
			if err != nil {
				return fmt.Errorf("nucleus %s: %w", n.ID(), err)
			}
			row = append(row, strconv.FormatFloat(v, 'f', 4, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
