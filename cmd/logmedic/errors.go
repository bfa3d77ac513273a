package main

import (
	"errors"
	"strings"

	"github.com/ppiankov/logmedic/internal/cli"
	"github.com/ppiankov/logmedic/internal/llm"
	"github.com/ppiankov/logmedic/internal/source"
)

const setupHint = "run 'logmedic setup', or 'logmedic config' to see what is set"

// sourceError maps a failure to open the log onto an exit category.
func sourceError(err error) error {
	if errors.Is(err, source.ErrNotFound) {
		return cli.NewNotFoundError(err.Error()).Wrap(err)
	}
	return cli.Classify(err)
}

// runError maps a run-fatal error. Rejected credentials are a
// configuration problem; an interrupted run is aborted.
func runError(err error) error {
	if errors.Is(err, llm.ErrAuth) {
		return cli.NewConfigError("language model rejected the credentials: " + err.Error()).
			Wrap(err).WithHint(setupHint)
	}
	return cli.Classify(err)
}

func configError(err error) error {
	return cli.NewConfigError(err.Error()).Wrap(err).WithHint(setupHint)
}

func cliUsage(err error) error {
	return cli.NewUsageError(err.Error()).Wrap(err)
}

// isUsageError recognizes cobra's argument validation failures.
func isUsageError(err error) bool {
	msg := err.Error()
	for _, s := range []string{
		"unknown command", "accepts ", "requires at least", "invalid argument",
		"unknown flag", "unknown shorthand flag", "none of the others can be",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
