package export

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

var csvHeader = []string{
	"run_id", "group", "file", "function", "signature", "occurrences", "severity",
	"first_seen", "first_line", "state", "error_kind", "category", "confidence",
	"proposal_kind", "title", "risk", "requires_review", "action", "skip_reason",
	"pr_url", "failure_stage", "failure_detail", "attempts",
}

type csvWriter struct {
	file *os.File
	w    *csv.Writer
}

func newCSVWriter(path string) (*csvWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &csvWriter{file: f, w: w}, nil
}

func (w *csvWriter) Write(r Row) error {
	firstSeen := ""
	if !r.FirstSeen.IsZero() {
		firstSeen = r.FirstSeen.Format(time.RFC3339Nano)
	}
	return w.w.Write([]string{
		r.RunID,
		strconv.Itoa(r.Group),
		r.File,
		r.Function,
		r.Signature,
		strconv.Itoa(r.Occurrences),
		r.Severity,
		firstSeen,
		strconv.Itoa(r.FirstLine),
		r.State,
		r.ErrorKind,
		r.Category,
		strconv.FormatFloat(r.Confidence, 'f', 2, 64),
		r.ProposalKind,
		r.Title,
		r.Risk,
		strconv.FormatBool(r.RequiresReview),
		r.Action,
		r.SkipReason,
		r.PRURL,
		r.FailureStage,
		r.FailureDetail,
		strconv.Itoa(r.Attempts),
	})
}

func (w *csvWriter) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}
