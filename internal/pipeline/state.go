package pipeline

import (
	"fmt"
	"strings"
)

// State is a group's position in the pipeline.
type State string

const (
	StateParsed      State = "parsed"
	StateGrouped     State = "grouped"
	StateClassifying State = "classifying"
	StateClassified  State = "classified"
	StateProposing   State = "proposing"
	StateProposed    State = "proposed"
	StateSubmitting  State = "submitting"
	StateSubmitted   State = "submitted"
	StateSkipped     State = "skipped"
	StateFailed      State = "failed"
)

var transitions = map[State][]State{
	StateParsed:      {StateGrouped},
	StateGrouped:     {StateClassifying},
	StateClassifying: {StateClassified, StateFailed},
	StateClassified:  {StateProposing},
	StateProposing:   {StateProposed, StateFailed},
	StateProposed:    {StateSubmitting, StateSkipped},
	StateSubmitting:  {StateSubmitted, StateFailed},
}

// Transition returns an error unless from may move to to.
func Transition(from, to State) error {
	for _, s := range transitions[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("invalid transition %s -> %s", from, to)
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Mode selects how far the pipeline goes.
type Mode string

const (
	// ModeInteractive confirms each pull request with the operator.
	ModeInteractive Mode = "interactive"
	// ModeBatch classifies only: no proposals, no submissions.
	ModeBatch Mode = "batch"
	// ModeDryRun runs every stage but never submits.
	ModeDryRun Mode = "dry-run"
)

// ParseMode accepts the mode names, with dry_run and dryrun as aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeInteractive):
		return ModeInteractive, nil
	case string(ModeBatch):
		return ModeBatch, nil
	case string(ModeDryRun), "dry_run", "dryrun":
		return ModeDryRun, nil
	}
	return "", fmt.Errorf("unknown mode %q (want interactive, batch or dry-run)", s)
}
