// Package export writes a run result to a file, either whole (json) or as
// one row per error group (jsonl, csv, parquet).
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/logmedic/internal/pipeline"
)

// Format identifies the output format.
type Format string

const (
	FormatJSON    Format = "json"
	FormatJSONL   Format = "jsonl"
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// Formats lists the accepted format names.
var Formats = []Format{FormatJSON, FormatJSONL, FormatCSV, FormatParquet}

// ParseFormat validates a --export-format value. An empty value infers the
// format from path's extension, falling back to json.
func ParseFormat(s, path string) (Format, error) {
	if s == "" {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		if ext == "ndjson" {
			ext = string(FormatJSONL)
		}
		s = ext
		if !known(Format(s)) {
			return FormatJSON, nil
		}
	}
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if !known(f) {
		return "", fmt.Errorf("unsupported format: %q", s)
	}
	return f, nil
}

func known(f Format) bool {
	for _, k := range Formats {
		if f == k {
			return true
		}
	}
	return false
}

// Ext returns the file extension for f, with the dot.
func (f Format) Ext() string { return "." + string(f) }

// rowWriter writes group rows to an output format.
type rowWriter interface {
	Write(Row) error
	Close() error
}

// Write exports res to path in format and returns the rows written.
func Write(res *pipeline.Result, path string, format Format) (int, error) {
	if format == FormatJSON {
		return len(res.Groups), writeJSON(res, path)
	}

	w, err := newRowWriter(path, format, res)
	if err != nil {
		return 0, fmt.Errorf("create writer: %w", err)
	}
	rows := Rows(res)
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			_ = w.Close()
			return 0, fmt.Errorf("write row: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("close writer: %w", err)
	}
	return len(rows), nil
}

func newRowWriter(path string, format Format, res *pipeline.Result) (rowWriter, error) {
	switch format {
	case FormatParquet:
		return newParquetWriter(path, map[string]string{
			"logmedic.run_id": res.RunID,
			"logmedic.source": res.Source,
			"logmedic.mode":   string(res.Mode),
			"logmedic.status": string(res.Status),
		})
	case FormatCSV:
		return newCSVWriter(path)
	case FormatJSONL:
		return newJSONLWriter(path)
	default:
		return nil, fmt.Errorf("unsupported format: %q", format)
	}
}

func writeJSON(res *pipeline.Result, path string) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
