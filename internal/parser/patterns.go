package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/logmedic/internal/logtypes"
)

// Pattern recognizes one log line layout. The expression uses named
// groups; "msg" is required, and "time", "level", "file", "line", "func"
// and "thread" are picked up when present.
type Pattern struct {
	Name string
	re   *regexp.Regexp
	idx  map[string]int
}

// CompilePattern compiles a named line pattern.
func CompilePattern(name, expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("compile pattern %s: %w", name, err)
	}
	idx := make(map[string]int)
	for i, n := range re.SubexpNames() {
		if n != "" {
			idx[n] = i
		}
	}
	if _, ok := idx["msg"]; !ok {
		return Pattern{}, fmt.Errorf("pattern %s: missing (?P<msg>...) group", name)
	}
	return Pattern{Name: name, re: re, idx: idx}, nil
}

func mustPattern(name, expr string) Pattern {
	p, err := CompilePattern(name, expr)
	if err != nil {
		panic(err)
	}
	return p
}

const levelAlt = `TRACE|DEBUG|INFO|NOTICE|WARN|WARNING|ERROR|ERR|CRITICAL|CRIT|FATAL|PANIC`

// DefaultPatterns are tried in order against every line.
var DefaultPatterns = []Pattern{
	// 10:32:01.123  ERROR  PaymentProcessor.cpp  0412  processPayment  7781 message
	mustPattern("switch",
		`^(?P<time>\d{2}:\d{2}:\d{2}\.\d{3})\s+(?P<level>[A-Za-z]+)\s+(?P<file>\S+)\s+(?P<line>\d{4})\s+(?P<func>\S+)\s+(?P<thread>\d+)\s*(?P<msg>.*)$`),
	// 2024-01-15 10:32:01.123 ERROR [7781] Routing.cpp:88 loadRoutingTable - message
	mustPattern("iso-located",
		`^(?P<time>\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?)\s+\[?(?P<level>`+levelAlt+`)\]?\s+(?:\[(?P<thread>[^\]]+)\]\s+)?\[?(?P<file>[\w./-]+\.\w+):(?P<line>\d+)\]?\s+(?:(?P<func>[\w:~<>.]+)(?:\(\))?\s*[-:]\s+)?(?P<msg>.*)$`),
	// ERROR Routing.cpp:88 loadRoutingTable: message
	mustPattern("level-located",
		`^\[?(?P<level>`+levelAlt+`)\]?\s+(?P<file>[\w./-]+\.\w+):(?P<line>\d+)\s+(?:(?P<func>[\w:~<>.]+)(?:\(\))?:\s+)?(?P<msg>.*)$`),
	// 2024-01-15T10:32:01Z ERROR message (no location, grouped by signature only)
	mustPattern("iso-plain",
		`^(?P<time>\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?)\s+\[?(?P<level>`+levelAlt+`)\]?:?\s+(?P<msg>.*)$`),
}

// continuation matches lines that extend the previous entry: stack
// frames, exception chains and indented detail.
var continuation = regexp.MustCompile(`^(?:\s+\S|at\s|#\d+\s|Caused by|Traceback|\.\.\.|---|terminate called|Stack trace|Backtrace)`)

var timeLayouts = []string{
	"15:04:05.000",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05,000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (p Pattern) match(text string) (logtypes.LogEntry, bool) {
	m := p.re.FindStringSubmatch(text)
	if m == nil {
		return logtypes.LogEntry{}, false
	}
	get := func(name string) string {
		if i, ok := p.idx[name]; ok {
			return strings.TrimSpace(m[i])
		}
		return ""
	}

	e := logtypes.LogEntry{
		Timestamp:  get("time"),
		Severity:   logtypes.ParseSeverity(get("level")),
		SourceFile: get("file"),
		Function:   get("func"),
		Thread:     get("thread"),
		Message:    get("msg"),
		Raw:        text,
	}
	if n, err := strconv.Atoi(get("line")); err == nil {
		e.Line = n
	}
	e.Time = parseTime(e.Timestamp)
	return e, true
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
