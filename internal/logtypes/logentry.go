package logtypes

import (
	"strconv"
	"strings"
	"time"
)

// Severity is the log level reported by the payment switch.
type Severity string

const (
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
	SeverityFatal    Severity = "FATAL"
	SeverityUnknown  Severity = "UNKNOWN"
)

var severityRank = map[Severity]int{
	SeverityUnknown:  0,
	SeverityDebug:    1,
	SeverityInfo:     2,
	SeverityWarning:  3,
	SeverityError:    4,
	SeverityCritical: 5,
	SeverityFatal:    6,
}

// ParseSeverity maps a level token onto a Severity. Common aliases
// (WARN, ERR, CRIT, TRACE) are accepted; anything else is UNKNOWN.
func ParseSeverity(s string) Severity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE", "DEBUG", "DBG":
		return SeverityDebug
	case "INFO", "INF", "NOTICE":
		return SeverityInfo
	case "WARN", "WARNING", "WRN":
		return SeverityWarning
	case "ERROR", "ERR":
		return SeverityError
	case "CRITICAL", "CRIT":
		return SeverityCritical
	case "FATAL", "PANIC", "EMERG":
		return SeverityFatal
	}
	return SeverityUnknown
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// Max returns the more severe of a and b.
func Max(a, b Severity) Severity {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}

// LineRange is the inclusive 1-based range of raw input lines an entry spans.
type LineRange struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// LogEntry represents a single parsed log event. Continuation lines
// (stack frames and similar) are folded into Context.
type LogEntry struct {
	Timestamp  string    `json:"ts,omitempty"`
	Time       time.Time `json:"time,omitzero"`
	Severity   Severity  `json:"severity"`
	SourceFile string    `json:"file,omitempty"`
	Line       int       `json:"line,omitempty"`
	Function   string    `json:"function,omitempty"`
	Thread     string    `json:"thread,omitempty"`
	Message    string    `json:"msg"`
	Raw        string    `json:"raw"`
	Context    []string  `json:"context,omitempty"`
	Lines      LineRange `json:"lines"`
}

// Location formats the entry's source position as file:line, or file alone
// when no line number was logged.
func (e LogEntry) Location() string {
	switch {
	case e.SourceFile == "":
		return ""
	case e.Line > 0:
		return e.SourceFile + ":" + strconv.Itoa(e.Line)
	default:
		return e.SourceFile
	}
}

// Text returns the raw line followed by any continuation lines.
func (e LogEntry) Text() string {
	if len(e.Context) == 0 {
		return e.Raw
	}
	return e.Raw + "\n" + strings.Join(e.Context, "\n")
}
