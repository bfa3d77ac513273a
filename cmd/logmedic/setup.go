package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/logmedic/internal/cli"
	"github.com/ppiankov/logmedic/internal/config"
	"github.com/ppiankov/logmedic/internal/tui"
)

// runWizard is replaced in tests.
var runWizard = tui.RunWizard

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Configure the LLM provider and GitHub access",
		Long: `Walk through the settings analyze needs and save them to
~/.logmedic/config.yaml (or the file given with --config). Existing values
are offered as defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configPath
			if path == "" {
				home, err := config.HomePath()
				if err != nil {
					return configError(err)
				}
				path = home
			}
			existing, err := config.LoadFrom(path)
			if err != nil {
				existing = &config.Config{}
			}

			cfg, err := runWizard(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), existing)
			if errors.Is(err, tui.ErrAborted) {
				fmt.Fprintln(cmd.ErrOrStderr(), "setup cancelled, nothing saved")
				return nil
			}
			if err != nil {
				return cli.NewInternalError(err.Error()).Wrap(err)
			}
			if err := config.Save(path, cfg); err != nil {
				return cli.Classify(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", path)
			return nil
		},
	}
}
