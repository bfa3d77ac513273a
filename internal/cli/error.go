// Package cli defines the process exit contract: categorized errors, their
// exit codes and how they are printed.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
)

// Exit codes. A completed run exits 0 even when some groups failed.
const (
	ExitOK         = 0
	ExitInternal   = 1
	ExitUsage      = 2
	ExitNotFound   = 3
	ExitPermission = 4
	ExitNetwork    = 5
	ExitAborted    = 6
	ExitConfig     = 7
)

// CLIError is an error with an exit category. Its JSON form is what
// scripts driving logmedic read on stderr.
type CLIError struct {
	Code    int    `json:"exit_code"`
	Type    string `json:"error"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
	Recover bool   `json:"recoverable"`
	Err     error  `json:"-"`
}

func (e *CLIError) Error() string { return e.Message }

// Unwrap returns the cause.
func (e *CLIError) Unwrap() error { return e.Err }

// Wrap records cause and returns e.
func (e *CLIError) Wrap(cause error) *CLIError {
	e.Err = cause
	return e
}

// WithHint adds a next step for the operator and returns e.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

func newError(code int, typ, msg string, recoverable bool) *CLIError {
	return &CLIError{Code: code, Type: typ, Message: msg, Recover: recoverable}
}

// NewUsageError reports bad arguments or flags.
func NewUsageError(msg string) *CLIError { return newError(ExitUsage, "invalid_args", msg, false) }

// NewNotFoundError reports a log source that does not exist.
func NewNotFoundError(msg string) *CLIError { return newError(ExitNotFound, "not_found", msg, false) }

// NewPermissionError reports a file or object that may not be read or written.
func NewPermissionError(msg string) *CLIError {
	return newError(ExitPermission, "permission", msg, false)
}

// NewNetworkError reports an unreachable remote; retrying may help.
func NewNetworkError(msg string) *CLIError { return newError(ExitNetwork, "network", msg, true) }

// NewConfigError reports missing or invalid configuration, including
// credentials a collaborator rejected.
func NewConfigError(msg string) *CLIError { return newError(ExitConfig, "config", msg, false) }

// NewAbortedError reports a run stopped before every group was handled.
func NewAbortedError(msg string) *CLIError { return newError(ExitAborted, "aborted", msg, true) }

// NewInternalError reports anything else.
func NewInternalError(msg string) *CLIError { return newError(ExitInternal, "internal", msg, false) }

// Classify returns err as a CLIError. Errors that already carry a category
// keep it; missing files, denied access, interruptions and network
// failures are recognized; anything else is internal.
func Classify(err error) *CLIError {
	if err == nil {
		return nil
	}
	var ce *CLIError
	if errors.As(err, &ce) {
		return ce
	}
	var ne net.Error
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NewNotFoundError(err.Error()).Wrap(err)
	case errors.Is(err, fs.ErrPermission):
		return NewPermissionError(err.Error()).Wrap(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NewAbortedError(err.Error()).Wrap(err)
	case errors.As(err, &ne):
		return NewNetworkError(err.Error()).Wrap(err)
	}
	return NewInternalError(err.Error()).Wrap(err)
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ce *CLIError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ExitInternal
}

// FormatError prints err as one JSON object, or as "error: ..." followed
// by any hint.
func FormatError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	var ce *CLIError
	if !errors.As(err, &ce) {
		ce = NewInternalError(err.Error())
	}
	if jsonMode {
		data, _ := json.Marshal(ce)
		_, _ = fmt.Fprintln(w, string(data))
		return
	}
	_, _ = fmt.Fprintf(w, "error: %s\n", err)
	if ce.Hint != "" {
		_, _ = fmt.Fprintf(w, "hint: %s\n", ce.Hint)
	}
}
