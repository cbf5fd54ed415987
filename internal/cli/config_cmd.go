package cli

import (
	"github.com/spf13/cobra"

	"github.com/bmskinner/nma-sub021/internal/config"
)

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialize the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			a := root.cfg.Analysis
			root.printf("config file:        %s\n", config.Path())
			root.printf("interval:           %v\n", a.Interval)
			root.printf("window proportion:  %v\n", a.WindowProportion)
			root.printf("min segment length: %d\n", a.MinSegmentLength)
			root.printf("segment count:      %d\n", a.SegmentCount)
			root.printf("rule set:           %s\n", a.RuleSet)
			root.printf("workers:            %d\n", a.Workers)
			root.printf("database:           %s\n", root.cfg.Paths.DatabasePath)
			root.printf("server address:     %s\n", root.cfg.Server.Address)
			root.printf("log level:          %s (%s)\n", root.cfg.Logging.Level, root.cfg.Logging.Format)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the current configuration to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			path := config.Path()
			if len(args) == 1 {
				path = args[0]
			}
			if err := root.cfg.Save(path); err != nil {
				return err
			}
			root.printf("wrote %s\n", path)
			return nil
		},
	})
	return cmd
}
