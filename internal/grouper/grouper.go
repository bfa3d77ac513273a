// Package grouper collects error entries into groups keyed by source
// location and normalized message.
package grouper

import (
	"iter"

	"github.com/ppiankov/logmedic/internal/logtypes"
	"github.com/ppiankov/logmedic/internal/model"
	"github.com/ppiankov/logmedic/internal/signature"
)

// Grouper assigns entries to groups.
type Grouper struct {
	normalize signature.Normalizer
}

// Option configures a Grouper.
type Option func(*Grouper)

// WithNormalizer overrides the message normalizer.
func WithNormalizer(n signature.Normalizer) Option {
	return func(g *Grouper) {
		if n != nil {
			g.normalize = n
		}
	}
}

// New creates a Grouper using signature.Default unless overridden.
func New(opts ...Option) *Grouper {
	g := &Grouper{normalize: signature.Default}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Key computes the group key for e. Entries without a file or function
// fall into a catch-all group keyed by signature alone.
func (g *Grouper) Key(e logtypes.LogEntry) model.GroupKey {
	sig := g.normalize(e.Message)
	if e.SourceFile == "" || e.Function == "" {
		return model.GroupKey{Signature: sig}
	}
	return model.GroupKey{File: e.SourceFile, Function: e.Function, Signature: sig}
}

// Group partitions entries. Groups keep first-seen order and members keep
// input order.
func (g *Grouper) Group(entries iter.Seq[logtypes.LogEntry]) *Groups {
	out := &Groups{index: make(map[model.GroupKey]int)}
	for e := range entries {
		out.add(g.Key(e), e)
	}
	return out
}

// GroupSlice is Group over a slice.
func (g *Grouper) GroupSlice(entries []logtypes.LogEntry) *Groups {
	return g.Group(func(yield func(logtypes.LogEntry) bool) {
		for _, e := range entries {
			if !yield(e) {
				return
			}
		}
	})
}

// Groups is an insertion-ordered collection of error groups.
type Groups struct {
	groups []model.ErrorGroup
	index  map[model.GroupKey]int
}

func (gs *Groups) add(k model.GroupKey, e logtypes.LogEntry) {
	if i, ok := gs.index[k]; ok {
		gs.groups[i].Members = append(gs.groups[i].Members, e)
		return
	}
	gs.index[k] = len(gs.groups)
	gs.groups = append(gs.groups, model.ErrorGroup{Key: k, Members: []logtypes.LogEntry{e}})
}

// Len returns the number of groups.
func (gs *Groups) Len() int { return len(gs.groups) }

// Keys returns the group keys in first-seen order.
func (gs *Groups) Keys() []model.GroupKey {
	keys := make([]model.GroupKey, len(gs.groups))
	for i, g := range gs.groups {
		keys[i] = g.Key
	}
	return keys
}

// Get returns the group for k.
func (gs *Groups) Get(k model.GroupKey) (model.ErrorGroup, bool) {
	i, ok := gs.index[k]
	if !ok {
		return model.ErrorGroup{}, false
	}
	return gs.groups[i], true
}

// At returns the i-th group in first-seen order.
func (gs *Groups) At(i int) model.ErrorGroup { return gs.groups[i] }

// All yields groups in first-seen order.
func (gs *Groups) All() iter.Seq[model.ErrorGroup] {
	return func(yield func(model.ErrorGroup) bool) {
		for _, g := range gs.groups {
			if !yield(g) {
				return
			}
		}
	}
}

// Size returns the total number of grouped entries.
func (gs *Groups) Size() int {
	n := 0
	for _, g := range gs.groups {
		n += len(g.Members)
	}
	return n
}
