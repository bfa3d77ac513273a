package pipeline

import (
	"time"

	"github.com/ppiankov/logmedic/internal/model"
	"github.com/ppiankov/logmedic/internal/parser"
	"github.com/ppiankov/logmedic/internal/scm"
)

// Status is the run status.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// Stage names the step a failure happened in.
type Stage string

const (
	StageClassify Stage = "classify"
	StagePropose  Stage = "propose"
	StageSubmit   Stage = "submit"
)

// Action is what happened to a group's proposal.
type Action string

const (
	ActionNone      Action = "none"
	ActionSubmitted Action = "submitted"
	ActionSkipped   Action = "skipped"
	ActionFailed    Action = "failed"
)

// Stats counts the input.
type Stats struct {
	Lines    int `json:"lines"`
	Entries  int `json:"entries"`
	Selected int `json:"selected"`
	Warnings int `json:"warnings"`
	Groups   int `json:"groups"`
}

// Failure records why a group did not reach a success state.
type Failure struct {
	Key      model.GroupKey `json:"key"`
	Stage    Stage          `json:"stage"`
	Detail   string         `json:"detail"`
	Attempts int            `json:"attempts"`
}

// GroupOutcome is the final record of one group.
type GroupOutcome struct {
	Group      model.ErrorGroup   `json:"group"`
	State      State              `json:"state"`
	History    []State            `json:"history"`
	Report     *model.ErrorReport `json:"report,omitempty"`
	Proposal   *model.FixProposal `json:"proposal,omitempty"`
	Action     Action             `json:"action"`
	SkipReason string             `json:"skip_reason,omitempty"`
	Submission *scm.Submission    `json:"submission,omitempty"`
}

// Result is the outcome of a run, folded from the groups in order.
type Result struct {
	RunID      string           `json:"run_id"`
	Mode       Mode             `json:"mode"`
	Status     Status           `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Source     string           `json:"source"`
	Stats      Stats            `json:"stats"`
	Warnings   []parser.Warning `json:"warnings,omitempty"`
	Groups     []GroupOutcome   `json:"groups"`
	Failures   []Failure        `json:"failures"`
}

// Counts summarizes the outcomes.
type Counts struct {
	Reports     int `json:"reports"`
	Proposals   int `json:"proposals"`
	Submissions int `json:"submissions"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
}

// Counts tallies reports, proposals and actions.
func (r *Result) Counts() Counts {
	var c Counts
	for _, g := range r.Groups {
		if g.Report != nil {
			c.Reports++
		}
		if g.Proposal != nil {
			c.Proposals++
		}
		switch g.State {
		case StateSubmitted:
			c.Submissions++
		case StateSkipped:
			c.Skipped++
		case StateFailed:
			c.Failed++
		}
	}
	return c
}

// Duration is the wall time of the run.
func (r *Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
