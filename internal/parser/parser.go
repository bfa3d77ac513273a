// Package parser turns raw payment-switch log text into LogEntry values.
package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/ppiankov/logmedic/internal/logtypes"
	"github.com/ppiankov/logmedic/internal/source"
)

// maxLineBytes caps the raw text kept for a single line.
const maxLineBytes = 1024 * 1024

// Warning describes a line the parser skipped.
type Warning struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

const (
	ReasonUnrecognized = "unrecognized format"
	ReasonOrphan       = "continuation without preceding entry"
	ReasonTruncated    = "line truncated"
)

// warnTextBytes caps the line text carried by a truncation warning.
const warnTextBytes = 256

// Parser recognizes log lines against an ordered pattern list.
type Parser struct {
	patterns []Pattern
	onWarn   func(Warning)
}

// Option configures a Parser.
type Option func(*Parser)

// WithPatterns replaces the default pattern list.
func WithPatterns(patterns ...Pattern) Option {
	return func(p *Parser) { p.patterns = patterns }
}

// WithWarningHandler registers a callback for skipped lines.
func WithWarningHandler(fn func(Warning)) Option {
	return func(p *Parser) { p.onWarn = fn }
}

// New creates a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{patterns: DefaultPatterns}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Entries returns a lazy sequence of entries in line order. Each iteration
// re-opens the source, so the sequence can be consumed more than once.
// A non-nil error is only yielded for I/O failures and ends the sequence.
func (p *Parser) Entries(open source.Opener) iter.Seq2[logtypes.LogEntry, error] {
	return func(yield func(logtypes.LogEntry, error) bool) {
		_, err := p.scan(open, p.onWarn, func(e logtypes.LogEntry) bool {
			return yield(e, nil)
		})
		if err != nil {
			yield(logtypes.LogEntry{}, err)
		}
	}
}

// Parsed is the materialized result of one pass over a source.
type Parsed struct {
	Entries  []logtypes.LogEntry
	Warnings []Warning
	Lines    int
}

// ParseAll consumes the whole source.
func (p *Parser) ParseAll(open source.Opener) (*Parsed, error) {
	out := &Parsed{}
	warn := func(w Warning) {
		out.Warnings = append(out.Warnings, w)
		if p.onWarn != nil {
			p.onWarn(w)
		}
	}
	lines, err := p.scan(open, warn, func(e logtypes.LogEntry) bool {
		out.Entries = append(out.Entries, e)
		return true
	})
	out.Lines = lines
	if err != nil {
		return out, err
	}
	return out, nil
}

// ParseString parses an in-memory log.
func (p *Parser) ParseString(s string) *Parsed {
	out, _ := p.ParseAll(source.FromString(s))
	return out
}

// scan drives one pass. An entry is emitted only once the next entry (or
// end of input) shows that no further continuation lines follow.
func (p *Parser) scan(open source.Opener, warn func(Warning), emit func(logtypes.LogEntry) bool) (int, error) {
	rc, err := open()
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	if warn == nil {
		warn = func(Warning) {}
	}

	r := bufio.NewReaderSize(rc, 256*1024)
	var (
		pending *logtypes.LogEntry
		lineNo  int
	)
	for {
		text, truncated, ok, readErr := readLine(r)
		if ok {
			lineNo++
			if truncated {
				warn(Warning{Line: lineNo, Text: text[:min(len(text), warnTextBytes)], Reason: ReasonTruncated})
			}

			switch {
			case strings.TrimSpace(text) == "":
			case p.recognize(text, lineNo, &pending, emit):
				if pending == nil {
					return lineNo, nil
				}
			case continuation.MatchString(text):
				if pending == nil {
					warn(Warning{Line: lineNo, Text: text, Reason: ReasonOrphan})
					break
				}
				pending.Context = append(pending.Context, text)
				pending.Lines.Last = lineNo
			default:
				warn(Warning{Line: lineNo, Text: text, Reason: ReasonUnrecognized})
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return lineNo, fmt.Errorf("read line %d: %w", lineNo+1, readErr)
		}
	}

	if pending != nil {
		emit(*pending)
	}
	return lineNo, nil
}

// readLine returns the next line without its terminator, keeping at most
// maxLineBytes of it. The rest of a longer line is read and dropped, so a
// line with no newline never has to fit in memory. ok is false when
// nothing was read.
func readLine(r *bufio.Reader) (line string, truncated, ok bool, err error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if len(chunk) > 0 {
			ok = true
		}
		if err == nil {
			chunk = bytes.TrimSuffix(chunk[:len(chunk)-1], []byte{'\r'})
		}
		if room := maxLineBytes - len(buf); len(chunk) > room {
			chunk = chunk[:max(room, 0)]
			truncated = true
		}
		buf = append(buf, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return strings.TrimRight(string(buf), "\r"), truncated, ok, err
	}
}

// recognize tries every pattern. On a match it flushes the pending entry
// and replaces it; pending is set to nil if the consumer stopped.
func (p *Parser) recognize(text string, lineNo int, pending **logtypes.LogEntry, emit func(logtypes.LogEntry) bool) bool {
	for _, pat := range p.patterns {
		e, ok := pat.match(text)
		if !ok {
			continue
		}
		e.Lines = logtypes.LineRange{First: lineNo, Last: lineNo}
		if *pending != nil && !emit(**pending) {
			*pending = nil
			return true
		}
		*pending = &e
		return true
	}
	return false
}
