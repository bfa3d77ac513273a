// Package model holds the values that flow between pipeline stages.
package model

import "github.com/ppiankov/logmedic/internal/logtypes"

// GroupKey identifies an error group. File and Function are empty for
// catch-all groups, which are keyed by signature alone.
type GroupKey struct {
	File      string `json:"file"`
	Function  string `json:"function"`
	Signature string `json:"signature"`
}

// CatchAll reports whether the key lacks a source location.
func (k GroupKey) CatchAll() bool {
	return k.File == "" && k.Function == ""
}

func (k GroupKey) String() string {
	if k.CatchAll() {
		return "*: " + k.Signature
	}
	return k.File + " " + k.Function + ": " + k.Signature
}

// ErrorGroup is a set of entries sharing one key. It always has at least
// one member, in input order.
type ErrorGroup struct {
	Key     GroupKey            `json:"key"`
	Members []logtypes.LogEntry `json:"members"`
}

// First returns the earliest member.
func (g ErrorGroup) First() logtypes.LogEntry { return g.Members[0] }

// Severity returns the highest member severity.
func (g ErrorGroup) Severity() logtypes.Severity {
	s := logtypes.SeverityUnknown
	for _, m := range g.Members {
		s = logtypes.Max(s, m.Severity)
	}
	return s
}

// Representatives returns at most n members: the first, the last and
// evenly spaced ones in between, in input order.
func (g ErrorGroup) Representatives(n int) []logtypes.LogEntry {
	if n <= 0 || len(g.Members) <= n {
		return g.Members
	}
	if n == 1 {
		return g.Members[:1]
	}
	out := make([]logtypes.LogEntry, 0, n)
	last := len(g.Members) - 1
	for i := 0; i < n; i++ {
		out = append(out, g.Members[i*last/(n-1)])
	}
	return out
}
