// Package selector decides which log entries are error events, using an
// expr-lang boolean expression.
package selector

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ppiankov/logmedic/internal/logtypes"
	"github.com/ppiankov/logmedic/internal/signature"
)

// DefaultExpression selects ERROR and above, plus unlevelled lines that
// read like errors.
const DefaultExpression = `severity in ["ERROR", "CRITICAL", "FATAL"] || (severity == "UNKNOWN" && looks_error)`

// Env is the variable set visible to expressions.
type Env struct {
	Severity   string `expr:"severity"`
	File       string `expr:"file"`
	Function   string `expr:"function"`
	Line       int    `expr:"line"`
	Thread     string `expr:"thread"`
	Message    string `expr:"message"`
	Timestamp  string `expr:"timestamp"`
	LooksError bool   `expr:"looks_error"`
}

// Selector is a compiled entry filter. It is safe for concurrent use.
type Selector struct {
	source  string
	program *vm.Program
}

// Compile compiles src. An empty src compiles DefaultExpression.
func Compile(src string) (*Selector, error) {
	if src == "" {
		src = DefaultExpression
	}
	program, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", src, err)
	}
	return &Selector{source: src, program: program}, nil
}

// String returns the expression source.
func (s *Selector) String() string { return s.source }

// Match evaluates the expression for e.
func (s *Selector) Match(e logtypes.LogEntry) (bool, error) {
	out, err := expr.Run(s.program, envFor(e))
	if err != nil {
		return false, fmt.Errorf("evaluate selector: %w", err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Filter returns the entries that match, in order. Evaluation errors
// exclude the entry and are counted.
func (s *Selector) Filter(entries []logtypes.LogEntry) (selected []logtypes.LogEntry, failed int) {
	for _, e := range entries {
		ok, err := s.Match(e)
		if err != nil {
			failed++
			continue
		}
		if ok {
			selected = append(selected, e)
		}
	}
	return selected, failed
}

func envFor(e logtypes.LogEntry) Env {
	return Env{
		Severity:   string(e.Severity),
		File:       e.SourceFile,
		Function:   e.Function,
		Line:       e.Line,
		Thread:     e.Thread,
		Message:    e.Message,
		Timestamp:  e.Timestamp,
		LooksError: signature.LooksLikeError(e.Message),
	}
}
