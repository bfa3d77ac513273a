package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/logmedic/internal/cli"
)

var version = "dev"

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		// --json output asks for machine-readable errors too.
		cli.FormatError(os.Stderr, err, slices.Contains(os.Args[1:], "--json"))
		os.Exit(cli.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "logmedic",
		Short:         "Triage payment switch error logs and propose fixes",
		Long:          "logmedic parses payment switch logs, groups related errors, asks a language model to classify each group and propose a fix, and opens pull requests for approved code patches.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.logmedic/config.yaml then ./.logmedic.yaml)")
	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newSetupCmd())
	root.AddCommand(newCompletionCmd())
	root.AddCommand(newVersionCmd())
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return cli.NewUsageError(err.Error())
	})
	return root
}

func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	var ce *cli.CLIError
	if err != nil && !errors.As(err, &ce) && isUsageError(err) {
		return cli.NewUsageError(err.Error())
	}
	return err
}
