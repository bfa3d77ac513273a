// Package propose turns a classified error group into a fix proposal. The
// proposal kind follows the report category; the model only fills it in.
package propose

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/logmedic/internal/llm"
	"github.com/ppiankov/logmedic/internal/model"
	"github.com/ppiankov/logmedic/internal/patch"
	"github.com/ppiankov/logmedic/internal/redact"
	"github.com/ppiankov/logmedic/internal/sourcectx"
)

const maxTitle = 72

// Proposer produces one FixProposal per classified group.
type Proposer struct {
	provider        llm.Provider
	model           string
	temperature     float64
	source          *sourcectx.Loader
	redactor        *redact.Redactor
	autoApplyConfig bool
}

// Option configures a Proposer.
type Option func(*Proposer)

// WithModel sets the model name sent with each request.
func WithModel(m string) Option { return func(p *Proposer) { p.model = m } }

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option { return func(p *Proposer) { p.temperature = t } }

// WithSourceLoader enables source snippets and whole-file diffs.
func WithSourceLoader(l *sourcectx.Loader) Option { return func(p *Proposer) { p.source = l } }

// WithRedactor masks sensitive values in prompt text.
func WithRedactor(r *redact.Redactor) Option { return func(p *Proposer) { p.redactor = r } }

// WithAutoApplyConfig marks config changes as not needing review.
func WithAutoApplyConfig(v bool) Option { return func(p *Proposer) { p.autoApplyConfig = v } }

// New creates a Proposer backed by provider.
func New(provider llm.Provider, opts ...Option) *Proposer {
	p := &Proposer{provider: provider}
	for _, o := range opts {
		o(p)
	}
	return p
}

type change struct {
	FilePath     string `json:"file_path"`
	LineStart    int    `json:"line_start"`
	LineEnd      int    `json:"line_end"`
	OriginalCode string `json:"original_code"`
	NewCode      string `json:"new_code"`
	Explanation  string `json:"explanation"`
}

type response struct {
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	RiskLevel          string          `json:"risk_level"`
	Confidence         any             `json:"confidence"`
	CodeChanges        []change        `json:"code_changes"`
	ConfigTarget       string          `json:"config_target"`
	ConfigChanges      json.RawMessage `json:"config_changes"`
	DataStore          string          `json:"data_store"`
	DataOperations     []string        `json:"data_operations"`
	ManualInstructions string          `json:"manual_instructions"`
}

// Propose makes exactly one model call. Replies that cannot be turned into
// a proposal of the category's kind return an llm.ErrMalformed error.
func (p *Proposer) Propose(ctx context.Context, rep model.ErrorReport, g model.ErrorGroup) (model.FixProposal, error) {
	resp, err := p.provider.Chat(ctx, llm.ChatRequest{
		Model:       p.model,
		Temperature: p.temperature,
		JSON:        true,
		Messages: []llm.Message{
			llm.System(systemPrompt),
			llm.User(p.userPrompt(rep, g)),
		},
	})
	if err != nil {
		return model.FixProposal{}, err
	}

	var r response
	if err := llm.Decode(resp.Content, &r); err != nil {
		return model.FixProposal{}, llm.Malformed(p.provider.Name(), err)
	}

	kind := model.KindForCategory(rep.Category)
	var payload model.Payload
	switch kind {
	case model.KindPatch:
		payload, err = p.patch(r, rep, g)
	case model.KindConfigChange:
		payload, err = configChange(r)
	case model.KindDataOperation:
		payload, err = dataOperation(r)
	default:
		err = fmt.Errorf("unhandled proposal kind %q", kind)
	}
	if err != nil {
		return model.FixProposal{}, llm.Malformed(p.provider.Name(), err)
	}

	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = defaultTitle(rep)
	}
	description := strings.TrimSpace(r.Description)
	if description == "" {
		description = rep.SuggestedApproach
	}

	return model.FixProposal{
		Key:            rep.Key,
		Title:          truncate(title, maxTitle),
		Description:    description,
		Risk:           risk(r.RiskLevel),
		Confidence:     model.ClampConfidence(confidence(r.Confidence)),
		RequiresReview: p.requiresReview(kind),
		Payload:        payload,
	}, nil
}

func (p *Proposer) requiresReview(kind model.ProposalKind) bool {
	switch kind {
	case model.KindConfigChange:
		return !p.autoApplyConfig
	default:
		return true
	}
}

func (p *Proposer) patch(r response, rep model.ErrorReport, g model.ErrorGroup) (*model.Patch, error) {
	file := g.Key.File
	if rel, ok := p.source.Resolve(file); ok {
		file = rel
	}

	pt := &model.Patch{
		File:        file,
		Function:    g.Key.Function,
		Description: strings.TrimSpace(r.Description),
	}
	for _, c := range r.CodeChanges {
		if strings.TrimSpace(c.NewCode) == "" && strings.TrimSpace(c.OriginalCode) == "" {
			continue
		}
		path := c.FilePath
		if path == "" {
			path = file
		}
		pt.Changes = append(pt.Changes, model.CodeChange{
			File:        path,
			LineStart:   c.LineStart,
			LineEnd:     c.LineEnd,
			Original:    c.OriginalCode,
			Replacement: c.NewCode,
			Explanation: c.Explanation,
		})
	}
	if pt.Description == "" {
		pt.Description = strings.TrimSpace(rep.SuggestedApproach)
	}
	if pt.Description == "" && len(pt.Changes) == 0 {
		return nil, fmt.Errorf("patch has neither description nor changes")
	}
	pt.Diff = p.diff(pt.Changes)
	return pt, nil
}

// diff renders the changes against the real file when it can be found,
// otherwise fragment by fragment.
func (p *Proposer) diff(changes []model.CodeChange) string {
	if len(changes) == 0 {
		return ""
	}
	byFile := make(map[string][]model.CodeChange)
	var order []string
	for _, c := range changes {
		if _, seen := byFile[c.File]; !seen {
			order = append(order, c.File)
		}
		byFile[c.File] = append(byFile[c.File], c)
	}

	var b strings.Builder
	for _, f := range order {
		rel, ok := p.source.Resolve(f)
		if !ok {
			b.WriteString(patch.FragmentDiff(byFile[f]))
			continue
		}
		before, err := p.source.ReadFile(rel)
		if err != nil {
			b.WriteString(patch.FragmentDiff(byFile[f]))
			continue
		}
		after, _ := patch.ApplyAll(string(before), byFile[f])
		b.WriteString(patch.Diff(rel, string(before), after))
	}
	return b.String()
}

func (p *Proposer) snippet(g model.ErrorGroup) (sourcectx.Snippet, bool) {
	if p.source == nil || g.Key.File == "" || len(g.Members) == 0 {
		return sourcectx.Snippet{}, false
	}
	return p.source.Snippet(g.Key.File, g.First().Line)
}

func configChange(r response) (*model.ConfigChange, error) {
	entries, err := configEntries(r.ConfigChanges)
	if err != nil {
		return nil, err
	}
	cc := &model.ConfigChange{
		Target:       strings.TrimSpace(r.ConfigTarget),
		Entries:      entries,
		Instructions: strings.TrimSpace(r.ManualInstructions),
	}
	if len(cc.Entries) == 0 && cc.Instructions == "" {
		return nil, fmt.Errorf("config change has neither entries nor instructions")
	}
	return cc, nil
}

// configEntries accepts either {"key": value} or [{"key":..,"value":..}].
func configEntries(raw json.RawMessage) ([]model.ConfigEntry, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []model.ConfigEntry
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("config_changes: %w", err)
		}
		return list, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("config_changes: %w", err)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]model.ConfigEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, model.ConfigEntry{Key: k, Value: scalar(m[k])})
	}
	return entries, nil
}

func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		data, _ := json.Marshal(x)
		return string(data)
	}
}

func dataOperation(r response) (*model.DataOperation, error) {
	var ops []string
	for _, op := range r.DataOperations {
		if op = strings.TrimSpace(op); op != "" {
			ops = append(ops, op)
		}
	}
	d := &model.DataOperation{
		Store:        strings.TrimSpace(r.DataStore),
		Operations:   ops,
		Instructions: strings.TrimSpace(r.ManualInstructions),
	}
	if len(d.Operations) == 0 && d.Instructions == "" {
		return nil, fmt.Errorf("data operation has neither operations nor instructions")
	}
	return d, nil
}

func defaultTitle(rep model.ErrorReport) string {
	if rep.Key.Function != "" {
		return fmt.Sprintf("Fix %s in %s", strings.ReplaceAll(string(rep.Kind), "_", " "), rep.Key.Function)
	}
	return "Fix " + strings.ReplaceAll(string(rep.Kind), "_", " ")
}

func risk(s string) string {
	switch r := strings.ToLower(strings.TrimSpace(s)); r {
	case "low", "medium", "high":
		return r
	}
	return "medium"
}

func confidence(v any) float64 {
	switch c := v.(type) {
	case float64:
		return c
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(c), 64); err == nil {
			return f
		}
	}
	return 0.5
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
