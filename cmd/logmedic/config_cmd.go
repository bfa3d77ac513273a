package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/logmedic/internal/config"
	"github.com/ppiankov/logmedic/internal/pipeline"
)

func newConfigCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Show the configuration analyze would run with after merging the config
files, environment variables and defaults. Secrets are masked. Items a run
in the given mode would still need are listed at the end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var o config.Overrides
			if cmd.Flags().Changed("mode") {
				m, err := pipeline.ParseMode(mode)
				if err != nil {
					return cliUsage(err)
				}
				o.Mode = &m
			}
			s, err := resolveSettings(o)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if path, err := config.HomePath(); err == nil {
				fmt.Fprintf(out, "config file: %s\n\n", path)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, kv := range s.Entries() {
				fmt.Fprintf(tw, "%s\t%s\n", kv[0], kv[1])
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			missing := s.Validate(s.Mode)
			if len(missing) == 0 {
				fmt.Fprintf(out, "\nready for %s runs\n", s.Mode)
				return nil
			}
			fmt.Fprintf(out, "\nmissing for %s runs:\n", s.Mode)
			for _, m := range missing {
				fmt.Fprintf(out, "  - %s\n", m)
			}
			fmt.Fprintln(out, "\nrun 'logmedic setup' to fill these in")
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "check requirements for this mode: interactive, dry-run, batch")
	return cmd
}
