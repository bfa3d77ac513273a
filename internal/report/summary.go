// Package report renders a run result for people: a markdown summary,
// the JSON result, a terminal table of groups and proposal details.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/logmedic/internal/model"
	"github.com/ppiankov/logmedic/internal/pipeline"
)

// Output file names written by WriteDir.
const (
	SummaryFile = "summary.md"
	ResultFile  = "result.json"
)

// maxWarnings caps the parse warnings listed in the summary.
const maxWarnings = 10

type textWriter struct {
	w   io.Writer
	err error
}

func (tw *textWriter) printf(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.w, format, args...)
}

func (tw *textWriter) println(args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintln(tw.w, args...)
}

// WriteSummary writes res as markdown.
func WriteSummary(w io.Writer, res *pipeline.Result) error {
	tw := &textWriter{w: w}
	counts := res.Counts()

	tw.printf("# logmedic run %s\n\n", res.RunID)
	tw.printf("- Source: `%s`\n", res.Source)
	tw.printf("- Mode: %s\n", res.Mode)
	tw.printf("- Status: %s\n", res.Status)
	if !res.StartedAt.IsZero() {
		tw.printf("- Started: %s (%s)\n", res.StartedAt.Format("2006-01-02 15:04:05"), HumanDuration(res.Duration()))
	}
	tw.printf("- Input: %d lines, %d entries, %d selected, %d warnings\n",
		res.Stats.Lines, res.Stats.Entries, res.Stats.Selected, res.Stats.Warnings)
	tw.printf("- Outcome: %d groups, %d reports, %d proposals, %d submitted, %d skipped, %d failed\n",
		res.Stats.Groups, counts.Reports, counts.Proposals, counts.Submissions, counts.Skipped, counts.Failed)
	tw.println()

	if len(res.Groups) == 0 {
		tw.println("No error groups found.")
		return tw.err
	}

	tw.println("## Error groups")
	tw.println()
	for i, g := range res.Groups {
		writeGroup(tw, i+1, g)
	}

	if len(res.Failures) > 0 {
		tw.println("## Failures")
		tw.println()
		for _, f := range res.Failures {
			tw.printf("- `%s` at %s after %d attempt(s): %s\n", f.Key, f.Stage, f.Attempts, f.Detail)
		}
		tw.println()
	}

	if len(res.Warnings) > 0 {
		tw.printf("## Parse warnings (%d)\n\n", len(res.Warnings))
		for i, wn := range res.Warnings {
			if i == maxWarnings {
				tw.printf("- ... %d more\n", len(res.Warnings)-maxWarnings)
				break
			}
			tw.printf("- line %d: %s\n", wn.Line, wn.Reason)
		}
		tw.println()
	}
	return tw.err
}

func writeGroup(tw *textWriter, n int, g pipeline.GroupOutcome) {
	key := g.Group.Key
	title := key.Signature
	if !key.CatchAll() {
		title = key.File + " " + key.Function
	}
	tw.printf("### %d. %s\n\n", n, title)
	tw.printf("- Signature: `%s`\n", key.Signature)
	tw.printf("- Occurrences: %d (highest severity %s, first at line %d)\n",
		len(g.Group.Members), g.Group.Severity(), g.Group.First().Lines.First)
	tw.printf("- State: %s\n", g.State)

	if rep := g.Report; rep != nil {
		tw.printf("- Kind: %s (%s, confidence %.2f)\n", rep.Kind, rep.Category, rep.Confidence)
		if rep.Explanation != "" {
			tw.printf("\n%s\n", rep.Explanation)
		}
	}
	if p := g.Proposal; p != nil {
		tw.println()
		WriteProposal(tw.w, *p)
	}
	switch g.Action {
	case pipeline.ActionSubmitted:
		if g.Submission != nil {
			tw.printf("\nPull request: %s (branch `%s`)\n", g.Submission.URL, g.Submission.Branch)
		}
	case pipeline.ActionSkipped:
		tw.printf("\nNot submitted: %s\n", g.SkipReason)
	}
	tw.println()
}

// WriteProposal writes one proposal as markdown.
func WriteProposal(w io.Writer, p model.FixProposal) {
	tw := &textWriter{w: w}
	review := ""
	if p.RequiresReview {
		review = ", requires review"
	}
	tw.printf("**Proposed %s:** %s (risk %s, confidence %.2f%s)\n\n",
		strings.ReplaceAll(string(p.Kind()), "_", " "), p.Title, p.Risk, p.Confidence, review)
	if p.Description != "" {
		tw.printf("%s\n\n", p.Description)
	}

	switch pl := p.Payload.(type) {
	case *model.Patch:
		if pl.Diff != "" {
			tw.printf("```diff\n%s", pl.Diff)
			if !strings.HasSuffix(pl.Diff, "\n") {
				tw.println()
			}
			tw.println("```")
		}
	case *model.ConfigChange:
		if pl.Target != "" {
			tw.printf("Target: `%s`\n\n", pl.Target)
		}
		for _, e := range pl.Entries {
			tw.printf("- `%s` = `%s`\n", e.Key, e.Value)
		}
		if pl.Instructions != "" {
			tw.printf("\n%s\n", pl.Instructions)
		}
	case *model.DataOperation:
		if pl.Store != "" {
			tw.printf("Store: `%s`\n\n", pl.Store)
		}
		for _, op := range pl.Operations {
			tw.printf("- `%s`\n", op)
		}
		if pl.Instructions != "" {
			tw.printf("\n%s\n", pl.Instructions)
		}
	}
}

// WriteJSON writes the full result as indented JSON.
func WriteJSON(w io.Writer, res *pipeline.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// WriteDir writes summary.md and result.json into dir, creating it.
func WriteDir(dir string, res *pipeline.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	outputs := []struct {
		name string
		fn   func(io.Writer) error
	}{
		{SummaryFile, func(w io.Writer) error { return WriteSummary(w, res) }},
		{ResultFile, func(w io.Writer) error { return WriteJSON(w, res) }},
	}

	for _, out := range outputs {
		path := filepath.Join(dir, out.name)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", out.name, err)
		}
		werr := out.fn(f)
		if err := f.Close(); err != nil && werr == nil {
			werr = err
		}
		if werr != nil {
			return fmt.Errorf("write %s: %w", out.name, werr)
		}
	}
	return nil
}

// HumanDuration formats d as "1h 02m", "3m 07s" or "12s".
func HumanDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %02dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
