package export

import (
	"time"

	"github.com/ppiankov/logmedic/internal/model"
	"github.com/ppiankov/logmedic/internal/pipeline"
)

// Row is the flat record of one group's outcome.
type Row struct {
	RunID          string    `json:"run_id" parquet:"run_id"`
	Group          int       `json:"group" parquet:"group"`
	File           string    `json:"file,omitempty" parquet:"file"`
	Function       string    `json:"function,omitempty" parquet:"function"`
	Signature      string    `json:"signature" parquet:"signature"`
	Occurrences    int       `json:"occurrences" parquet:"occurrences"`
	Severity       string    `json:"severity" parquet:"severity"`
	FirstSeen      time.Time `json:"first_seen,omitzero" parquet:"first_seen,timestamp(millisecond)"`
	FirstLine      int       `json:"first_line" parquet:"first_line"`
	State          string    `json:"state" parquet:"state"`
	ErrorKind      string    `json:"error_kind,omitempty" parquet:"error_kind"`
	Category       string    `json:"category,omitempty" parquet:"category"`
	Confidence     float64   `json:"confidence" parquet:"confidence"`
	ProposalKind   string    `json:"proposal_kind,omitempty" parquet:"proposal_kind"`
	Title          string    `json:"title,omitempty" parquet:"title"`
	Risk           string    `json:"risk,omitempty" parquet:"risk"`
	RequiresReview bool      `json:"requires_review" parquet:"requires_review"`
	Action         string    `json:"action" parquet:"action"`
	SkipReason     string    `json:"skip_reason,omitempty" parquet:"skip_reason"`
	PRURL          string    `json:"pr_url,omitempty" parquet:"pr_url"`
	FailureStage   string    `json:"failure_stage,omitempty" parquet:"failure_stage"`
	FailureDetail  string    `json:"failure_detail,omitempty" parquet:"failure_detail"`
	Attempts       int       `json:"attempts" parquet:"attempts"`
}

// Rows flattens res into one row per group, in group order.
func Rows(res *pipeline.Result) []Row {
	failures := make(map[model.GroupKey]pipeline.Failure, len(res.Failures))
	for _, f := range res.Failures {
		failures[f.Key] = f
	}

	rows := make([]Row, 0, len(res.Groups))
	for i, g := range res.Groups {
		first := g.Group.First()
		r := Row{
			RunID:       res.RunID,
			Group:       i + 1,
			File:        g.Group.Key.File,
			Function:    g.Group.Key.Function,
			Signature:   g.Group.Key.Signature,
			Occurrences: len(g.Group.Members),
			Severity:    string(g.Group.Severity()),
			FirstSeen:   first.Time,
			FirstLine:   first.Lines.First,
			State:       string(g.State),
			Action:      string(g.Action),
			SkipReason:  g.SkipReason,
		}
		if rep := g.Report; rep != nil {
			r.ErrorKind = string(rep.Kind)
			r.Category = string(rep.Category)
			r.Confidence = rep.Confidence
			r.Attempts = rep.Attempts
		}
		if p := g.Proposal; p != nil {
			r.ProposalKind = string(p.Kind())
			r.Title = p.Title
			r.Risk = p.Risk
			r.RequiresReview = p.RequiresReview
			r.Confidence = p.Confidence
		}
		if s := g.Submission; s != nil {
			r.PRURL = s.URL
		}
		if f, ok := failures[g.Group.Key]; ok {
			r.FailureStage = string(f.Stage)
			r.FailureDetail = f.Detail
			r.Attempts = f.Attempts
		}
		rows = append(rows, r)
	}
	return rows
}
