package cli

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bmskinner/nma-sub021/internal/app"
	"github.com/bmskinner/nma-sub021/internal/export"
	nmaimage "github.com/bmskinner/nma-sub021/internal/image"
	"github.com/bmskinner/nma-sub021/internal/ingest"
	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/nucleus"
	"github.com/bmskinner/nma-sub021/internal/profile"
	"github.com/bmskinner/nma-sub021/internal/project"
	"github.com/bmskinner/nma-sub021/internal/server"
	"github.com/bmskinner/nma-sub021/internal/storage"
	"github.com/bmskinner/nma-sub021/internal/version"
	"github.com/bmskinner/nma-sub021/internal/watch"
)

// ErrInconsistent is returned by validate when any nucleus fails a check.
var ErrInconsistent = errors.New("dataset has consistency issues")

// NewRootCmd creates the root Cobra command.
func NewRootCmd(root *Root) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nma",
		Short: "Nuclear morphology analysis",
		Long: `nma profiles traced nuclear outlines, segments them consistently across a
population, and keeps landmarks and segments coherent when outlines are
reversed or oriented.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&root.dataset, "dataset", "d", root.dataset, "dataset file")

	rootCmd.AddCommand(newImportCmd(root))
	rootCmd.AddCommand(newListCmd(root))
	rootCmd.AddCommand(newProfileCmd(root))
	rootCmd.AddCommand(newReverseCmd(root))
	rootCmd.AddCommand(newOrientCmd(root))
	rootCmd.AddCommand(newLandmarkCmd(root))
	rootCmd.AddCommand(newSegmentCmd(root))
	rootCmd.AddCommand(newValidateCmd(root))
	rootCmd.AddCommand(newRepairCmd(root))
	rootCmd.AddCommand(newExportCmd(root))
	rootCmd.AddCommand(newStoreCmd(root))
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newWatchCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

func newImportCmd(root *Root) *cobra.Command {
	var images string
	cmd := &cobra.Command{
		Use:   "import <outline.json>...",
		Short: "Add traced outlines to the dataset",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := root.options()
			if err != nil {
				return err
			}
			state, err := root.openState(true)
			if err != nil {
				return err
			}

			cal := newCalibration(images, root.log)
			added := 0
			var errs []error
			for _, path := range args {
				outlines, err := ingest.ReadFile(path)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				for i, o := range outlines {
					nopts := opts
					if ppm := cal.scale(o.Source.File); ppm > 0 {
						nopts.Scale = ppm
					}
					n, err := o.Build(nopts)
					if err != nil {
						errs = append(errs, fmt.Errorf("%s outline %d: %w", path, i, err))
						continue
					}
					state.Add(n)
					added++
				}
			}
			if added > 0 {
				if err := root.save(state); err != nil {
					return err
				}
			}
			root.printf("imported %d nuclei into %s\n", added, root.dataset)
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringVar(&images, "images", "", "directory of source images to read calibration from")
	return cmd
}

// calibration caches the pixels-per-micron scale of source images.
type calibration struct {
	dir   string
	log   *slog.Logger
	cache map[string]float64
}

func newCalibration(dir string, log *slog.Logger) *calibration {
	return &calibration{dir: dir, log: log, cache: make(map[string]float64)}
}

// scale returns the calibration of the named image, or zero when there is
// no image directory or the image carries no resolution.
func (c *calibration) scale(file string) float64 {
	if c.dir == "" || file == "" {
		return 0
	}
	if v, ok := c.cache[file]; ok {
		return v
	}
	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.dir, file)
	}
	ppm, err := nmaimage.PixelsPerMicron(path)
	if err != nil {
		c.log.Debug("no calibration for image", "path", path, "error", err)
	}
	c.cache[file] = ppm
	return ppm
}

func newListCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Summarize the dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := project.Load(root.dataset)
			if err != nil {
				return err
			}
			info, err := os.Stat(root.dataset)
			if err != nil {
				return err
			}
			root.printf("%s: %s nuclei, rule set %s, %s, modified %s\n",
				f.Name, humanize.Comma(int64(len(f.Nuclei))), f.RuleSet,
				humanize.Bytes(uint64(info.Size())), humanize.Time(f.Modified))

			state, err := root.openState(false)
			if err != nil {
				return err
			}
			for _, s := range state.List() {
				flags := ""
				if s.Reversed {
					flags += " reversed"
				}
				if s.Locked {
					flags += " locked"
				}
				root.printf("%s\t%d points\t%d segments\t%s%s\n", s.ID, s.Length, s.Segments, s.Source.File, flags)
			}
			return nil
		},
	}
}

func newProfileCmd(root *Root) *cobra.Command {
	var (
		typeName string
		from     string
	)
	cmd := &cobra.Command{
		Use:   "profile [id...]",
		Short: "Print profiles read from a landmark",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := profile.ParseType(typeName)
			if err != nil {
				return err
			}
			mark, err := landmark.ParseMark(from)
			if err != nil {
				return err
			}
			state, err := root.openState(false)
			if err != nil {
				return err
			}
			ids, err := selectIDs(state, args)
			if err != nil {
				return err
			}
			for _, id := range ids {
				sp, err := state.Profile(id, t, mark)
				if err != nil {
					return err
				}
				vals := make([]string, sp.Len())
				for i, v := range sp.Values() {
					vals[i] = fmt.Sprintf("%.2f", v)
				}
				root.printf("%s\t%s\n", id, strings.Join(vals, "\t"))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&typeName, "type", "t", "angle", "profile type: angle, radius or diameter")
	cmd.Flags().StringVar(&from, "from", "reference", "orientation mark to read from")
	return cmd
}

func newReverseCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "reverse [id...]",
		Short: "Reverse border direction, carrying landmarks and segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := root.openState(false)
			if err != nil {
				return err
			}
			count := state.Len()
			if len(args) == 0 {
				err = root.job("reverse", count, nil, state.ReverseAll)
			} else {
				ids, perr := selectIDs(state, args)
				if perr != nil {
					return perr
				}
				count = len(ids)
				var errs []error
				for _, id := range ids {
					errs = append(errs, state.Reverse(id))
				}
				err = errors.Join(errs...)
			}
			if serr := root.save(state); serr != nil {
				return serr
			}
			if err != nil {
				return err
			}
			root.printf("reversed %d nuclei\n", count)
			return nil
		},
	}
}

func newOrientCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "orient [id...]",
		Short: "Report the rotation and flips that orient each nucleus",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := root.openState(false)
			if err != nil {
				return err
			}
			ids, err := selectIDs(state, args)
			if err != nil {
				return err
			}
			for _, id := range ids {
				res, err := state.Orient(id)
				if err != nil {
					return err
				}
				root.printf("%s\t%s\n", id, res)
			}
			return nil
		},
	}
}

func newLandmarkCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "landmark <id> <name> <index>",
		Short: "Place a landmark on a nucleus",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := root.openState(false)
			if err != nil {
				return err
			}
			ids, err := selectIDs(state, args[:1])
			if err != nil {
				return err
			}
			var index int
			if _, err := fmt.Sscanf(args[2], "%d", &index); err != nil {
				return fmt.Errorf("invalid index %q: %w", args[2], err)
			}
			if err := state.SetLandmark(ids[0], landmark.Name(args[1]), index); err != nil {
				return err
			}
			return root.save(state)
		},
	}
}

func newSegmentCmd(root *Root) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "segment",
		Short: "Segment every nucleus from the population's median profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				count = root.cfg.Analysis.SegmentCount
			}
			state, err := root.openState(false)
			if err != nil {
				return err
			}
			var consensus profile.SegmentedProfile
			err = root.job("segment", state.Len(), map[string]any{"count": count, "min_length": root.segmentMin()}, func() error {
				var err error
				consensus, err = state.Segment(count, root.segmentMin())
				return err
			})
			if err != nil {
				return err
			}
			for _, s := range consensus.Ring.Segments() {
				root.printf("%s\t[%d,%d)\n", s.ID, s.Start, s.End)
			}
			return root.save(state)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "number of segments (default from config)")
	return cmd
}

func newValidateCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check landmarks, profiles and segments for consistency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := root.openState(false)
			if err != nil {
				return err
			}
			rep := state.Validate()
			root.printf("%s\n", rep)
			if !rep.OK() {
				return ErrInconsistent
			}
			return nil
		},
	}
}

func newRepairCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Snap drifted reference points back onto segment boundaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := root.openState(false)
			if err != nil {
				return err
			}
			rep := state.Repair()
			root.printf("%s\n", rep)
			return root.save(state)
		},
	}
}

func newExportCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write masks, overlays and tables",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "masks <dir>",
		Short: "Write one TIFF mask per nucleus",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return root.withNuclei(func(ns []*nucleus.Nucleus) error {
				paths, err := export.SaveMasks(args[0], ns)
				root.printf("wrote %d masks to %s\n", len(paths), args[0])
				return err
			})
		},
	})

	var images string
	outlines := &cobra.Command{
		Use:   "outlines <dir>",
		Short: "Draw each nucleus over its source image",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := os.MkdirAll(args[0], 0755); err != nil {
				return err
			}
			return root.withNuclei(func(ns []*nucleus.Nucleus) error {
				written := 0
				var errs []error
				for _, n := range ns {
					path := n.Source().File
					if path == "" {
						continue
					}
					if !filepath.IsAbs(path) {
						path = filepath.Join(images, path)
					}
					src, err := nmaimage.Load(path)
					if err != nil {
						errs = append(errs, fmt.Errorf("nucleus %s: %w", n.ID(), err))
						continue
					}
					out := filepath.Join(args[0], n.ID().String()+".png")
					if err := imaging.Save(export.OnSource(src.Image, n), out); err != nil {
						errs = append(errs, err)
						continue
					}
					written++
				}
				root.printf("wrote %d outlines to %s\n", written, args[0])
				return errors.Join(errs...)
			})
		},
	}
	outlines.Flags().StringVar(&images, "images", ".", "directory holding the source images")
	cmd.AddCommand(outlines)

	var (
		cols  int
		scale int
	)
	overlay := &cobra.Command{
		Use:   "overlay <file.png>",
		Short: "Write a contact sheet of segment overlays",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return root.withNuclei(func(ns []*nucleus.Nucleus) error {
				imgs := make([]image.Image, len(ns))
				for i, n := range ns {
					imgs[i] = export.Overlay(n, scale)
				}
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				return png.Encode(f, export.ContactSheet(imgs, cols))
			})
		},
	}
	overlay.Flags().IntVar(&cols, "cols", 6, "columns in the sheet")
	overlay.Flags().IntVar(&scale, "scale", 2, "pixel enlargement")
	cmd.AddCommand(overlay)

	var (
		typeName string
		length   int
	)
	profiles := &cobra.Command{
		Use:   "profiles <file.csv>",
		Short: "Write profiles from the reference point as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			t, err := profile.ParseType(typeName)
			if err != nil {
				return err
			}
			return root.withNuclei(func(ns []*nucleus.Nucleus) error {
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				return export.WriteProfilesCSV(f, ns, t, length)
			})
		},
	}
	profiles.Flags().StringVarP(&typeName, "type", "t", "angle", "profile type")
	profiles.Flags().IntVar(&length, "length", 100, "resampled profile length")
	cmd.AddCommand(profiles)

	cmd.AddCommand(&cobra.Command{
		Use:   "measurements <file.csv>",
		Short: "Write calibrated measurements as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return root.withNuclei(func(ns []*nucleus.Nucleus) error {
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				return export.WriteMeasurementsCSV(f, ns)
			})
		},
	})
	return cmd
}

// withNuclei restores the dataset's nuclei directly, bypassing the
// workspace, for read-only commands.
func (r *Root) withNuclei(fn func([]*nucleus.Nucleus) error) error {
	f, err := project.Load(r.dataset)
	if err != nil {
		return err
	}
	ns, err := f.Restore()
	if err != nil {
		r.log.Warn("some nuclei could not be restored", "error", err)
	}
	return fn(ns)
}

func newStoreCmd(root *Root) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Copy nuclei between the dataset and the database",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default from config)")
	open := func() (*storage.Store, error) {
		if dbPath == "" {
			dbPath = root.cfg.Paths.DatabasePath
		}
		return storage.New(dbPath)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "push",
		Short: "Write every dataset nucleus to the database",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			f, err := project.Load(root.dataset)
			if err != nil {
				return err
			}
			if err := store.PutAll(c.Context(), f.Nuclei); err != nil {
				return err
			}
			root.printf("stored %d nuclei in %s\n", len(f.Nuclei), dbPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "pull",
		Short: "Add every database nucleus to the dataset",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			ns, loadErr := store.LoadAll(c.Context())
			state, err := root.openState(true)
			if err != nil {
				return err
			}
			for _, n := range ns {
				state.Add(n)
			}
			if err := root.save(state); err != nil {
				return err
			}
			root.printf("loaded %d nuclei from %s\n", len(ns), dbPath)
			return loadErr
		},
	})
	return cmd
}

func newServeCmd(root *Root) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dataset over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = root.cfg.Server.Address
			}
			state, err := root.openState(true)
			if err != nil {
				return err
			}
			store, err := storage.New(root.cfg.Paths.DatabasePath)
			if err != nil {
				root.log.Warn("database unavailable, persistence disabled", "error", err)
				store = nil
			} else {
				defer store.Close()
			}

			if reloader := app.NewReloader(state, root.dataset, 2*time.Second); reloader != nil {
				reloader.Start()
				defer reloader.Stop()
			}

			return server.NewServer(addr, state, store, root.log).Start(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func newWatchCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [dir]",
		Short: "Import outline files as they appear in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := root.cfg.Paths.WatchDir
			if len(args) == 1 {
				dir = args[0]
			}
			opts, err := root.options()
			if err != nil {
				return err
			}
			state, err := root.openState(true)
			if err != nil {
				return err
			}
			w, err := watch.New(dir, state, opts)
			if err != nil {
				return err
			}
			if err := w.Start(); err != nil {
				return err
			}
			defer w.Stop()
			return root.watchLoop(cmd.Context(), state, w)
		},
	}
}

func (r *Root) watchLoop(ctx context.Context, state *app.State, w *watch.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if e.Err != nil && e.Nuclei == 0 {
				continue
			}
			if err := r.save(state); err != nil {
				r.log.Error("failed to save dataset", "error", err)
				continue
			}
			r.printf("%s %s: %d nuclei, dataset now %d\n", e.Operation, filepath.Base(e.Path), e.Nuclei, state.Len())
		}
	}
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			root.printf("%s\n", version.String())
		},
	}
}
