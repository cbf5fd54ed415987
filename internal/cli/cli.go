// Package cli implements the nma command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/bmskinner/nma-sub021/internal/app"
	"github.com/bmskinner/nma-sub021/internal/config"
	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/logging"
	"github.com/bmskinner/nma-sub021/internal/nucleus"
	"github.com/bmskinner/nma-sub021/internal/segment"
)

// Root carries what every command needs.
type Root struct {
	cfg     *config.Config
	log     *slog.Logger
	out     io.Writer
	dataset string
}

// NewRoot constructs the CLI root.
func NewRoot(cfg *config.Config, logger *slog.Logger, out io.Writer) *Root {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = os.Stdout
	}
	return &Root{cfg: cfg, log: logger, out: out, dataset: "dataset.nmd"}
}

func (r *Root) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

func (r *Root) rules() (landmark.RuleSet, error) {
	return landmark.LoadRuleSet(r.cfg.Analysis.RuleSet)
}

// options builds nucleus options from the config.
func (r *Root) options() (nucleus.Options, error) {
	rules, err := r.rules()
	if err != nil {
		return nucleus.Options{}, err
	}
	opts := nucleus.DefaultOptions()
	opts.Interval = r.cfg.Analysis.Interval
	opts.WindowProportion = r.cfg.Analysis.WindowProportion
	opts.MinSegmentLength = r.cfg.Analysis.MinSegmentLength
	opts.Rules = rules
	return opts, nil
}

// openState loads the dataset into a workspace. A missing dataset gives an
// empty workspace when allowMissing is set.
func (r *Root) openState(allowMissing bool) (*app.State, error) {
	rules, err := r.rules()
	if err != nil {
		return nil, err
	}
	state := app.NewState(rules, r.cfg.Analysis.Workers)
	if _, err := os.Stat(r.dataset); errors.Is(err, os.ErrNotExist) {
		if allowMissing {
			return state, nil
		}
		return nil, fmt.Errorf("dataset %s does not exist", r.dataset)
	}
	if err := state.LoadDataset(r.dataset); err != nil {
		if state.Len() == 0 {
			return nil, err
		}
		r.log.Warn("some nuclei could not be restored", "dataset", r.dataset, "error", err)
	}
	return state, nil
}

func (r *Root) save(state *app.State) error {
	if err := state.SaveDataset(r.dataset); err != nil {
		return fmt.Errorf("save %s: %w", r.dataset, err)
	}
	r.log.Debug("dataset saved", "path", r.dataset, "nuclei", state.Len())
	return nil
}

// selectIDs resolves the ids a command applies to: the given ones, or every
// nucleus when none are given.
func selectIDs(state *app.State, args []string) ([]uuid.UUID, error) {
	if len(args) == 0 {
		return state.IDs(), nil
	}
	ids := make([]uuid.UUID, 0, len(args))
	for _, a := range args {
		id, err := uuid.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("invalid nucleus id %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *Root) segmentMin() int {
	if r.cfg.Analysis.MinSegmentLength > 0 {
		return r.cfg.Analysis.MinSegmentLength
	}
	return segment.DefaultMinLength
}

// job runs a batch operation over the population with start, completion
// and failure logged.
func (r *Root) job(op string, nuclei int, options map[string]any, fn func() error) error {
	logging.LogJobStart(r.log, op, nuclei, options)
	start := time.Now()
	if err := fn(); err != nil {
		logging.LogJobError(r.log, op, time.Since(start), err)
		return err
	}
	logging.LogJobComplete(r.log, op, time.Since(start), nil)
	return nil
}
