package model

import (
	"encoding/json"
	"fmt"
)

// ProposalKind tags the FixProposal payload.
type ProposalKind string

const (
	KindPatch         ProposalKind = "patch"
	KindConfigChange  ProposalKind = "config_change"
	KindDataOperation ProposalKind = "data_operation"
)

// KindForCategory maps a report category onto the proposal kind.
func KindForCategory(c Category) ProposalKind {
	switch c {
	case CategoryConfig:
		return KindConfigChange
	case CategoryData:
		return KindDataOperation
	default:
		return KindPatch
	}
}

// Payload is one of *Patch, *ConfigChange or *DataOperation.
type Payload interface {
	Kind() ProposalKind
	payload()
}

// CodeChange is one edit inside a patch.
type CodeChange struct {
	File        string `json:"file"`
	LineStart   int    `json:"line_start,omitempty"`
	LineEnd     int    `json:"line_end,omitempty"`
	Original    string `json:"original,omitempty"`
	Replacement string `json:"replacement"`
	Explanation string `json:"explanation,omitempty"`
}

// Patch proposes a source change. It is never applied automatically.
type Patch struct {
	File        string       `json:"file"`
	Function    string       `json:"function"`
	Description string       `json:"description"`
	Changes     []CodeChange `json:"changes,omitempty"`
	Diff        string       `json:"diff,omitempty"`
}

// ConfigEntry is one key/value to set.
type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ConfigChange proposes configuration edits.
type ConfigChange struct {
	Target       string        `json:"target,omitempty"`
	Entries      []ConfigEntry `json:"entries"`
	Instructions string        `json:"instructions,omitempty"`
}

// DataOperation proposes statements against a data store.
type DataOperation struct {
	Store        string   `json:"store,omitempty"`
	Operations   []string `json:"operations"`
	Instructions string   `json:"instructions,omitempty"`
}

func (*Patch) Kind() ProposalKind         { return KindPatch }
func (*ConfigChange) Kind() ProposalKind  { return KindConfigChange }
func (*DataOperation) Kind() ProposalKind { return KindDataOperation }

func (*Patch) payload()         {}
func (*ConfigChange) payload()  {}
func (*DataOperation) payload() {}

// FixProposal is a suggested remediation for one classified group.
type FixProposal struct {
	Key            GroupKey `json:"key"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Risk           string   `json:"risk,omitempty"`
	Confidence     float64  `json:"confidence"`
	RequiresReview bool     `json:"requires_review"`
	Payload        Payload  `json:"-"`
}

// Kind returns the payload's tag.
func (p FixProposal) Kind() ProposalKind {
	if p.Payload == nil {
		return ""
	}
	return p.Payload.Kind()
}

// Patch returns the payload as a patch, if it is one.
func (p FixProposal) Patch() (*Patch, bool) {
	v, ok := p.Payload.(*Patch)
	return v, ok
}

type proposalJSON struct {
	Key            GroupKey        `json:"key"`
	Kind           ProposalKind    `json:"kind"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Risk           string          `json:"risk,omitempty"`
	Confidence     float64         `json:"confidence"`
	RequiresReview bool            `json:"requires_review"`
	Payload        json.RawMessage `json:"payload"`
}

// MarshalJSON writes the payload under "payload" tagged by "kind".
func (p FixProposal) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(proposalJSON{
		Key:            p.Key,
		Kind:           p.Kind(),
		Title:          p.Title,
		Description:    p.Description,
		Risk:           p.Risk,
		Confidence:     p.Confidence,
		RequiresReview: p.RequiresReview,
		Payload:        payload,
	})
}

// UnmarshalJSON decodes the payload variant named by "kind".
func (p *FixProposal) UnmarshalJSON(data []byte) error {
	var raw proposalJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var payload Payload
	switch raw.Kind {
	case KindPatch:
		payload = &Patch{}
	case KindConfigChange:
		payload = &ConfigChange{}
	case KindDataOperation:
		payload = &DataOperation{}
	default:
		return fmt.Errorf("unknown proposal kind %q", raw.Kind)
	}
	if err := json.Unmarshal(raw.Payload, payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", raw.Kind, err)
	}
	*p = FixProposal{
		Key:            raw.Key,
		Title:          raw.Title,
		Description:    raw.Description,
		Risk:           raw.Risk,
		Confidence:     raw.Confidence,
		RequiresReview: raw.RequiresReview,
		Payload:        payload,
	}
	return nil
}
