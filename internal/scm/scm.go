// Package scm submits patch proposals to source control as pull requests.
package scm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/logmedic/internal/model"
)

// Request is one approved patch proposal.
type Request struct {
	RunID    string
	Group    model.ErrorGroup
	Report   *model.ErrorReport
	Proposal model.FixProposal
}

// Submission describes the created pull request.
type Submission struct {
	Branch string   `json:"branch"`
	URL    string   `json:"url"`
	Files  []string `json:"files"`
}

// Submitter creates a change request for a proposal.
type Submitter interface {
	Submit(ctx context.Context, req Request) (*Submission, error)
}

// ErrorKind classifies source-control failures.
type ErrorKind string

const (
	KindAuth     ErrorKind = "auth"
	KindConflict ErrorKind = "conflict"
	KindNetwork  ErrorKind = "network"
)

// Error is a classified source-control failure. It never aborts a run.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("scm %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNotPatch is returned for proposals that carry no code change.
var ErrNotPatch = errors.New("only patch proposals can be submitted")

// wrap classifies err by the wording GitHub and the MCP server use.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "401", "403", "bad credentials", "unauthorized", "forbidden", "requires authentication"):
		return &Error{Kind: KindAuth, Op: op, Err: err}
	case containsAny(msg, "409", "422", "already exists", "conflict", "not a fast forward", "sha wasn't supplied"):
		return &Error{Kind: KindConflict, Op: op, Err: err}
	}
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
