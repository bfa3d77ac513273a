// Package classify asks the language model what kind of failure an error
// group is and where its fix belongs.
package classify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ppiankov/logmedic/internal/llm"
	"github.com/ppiankov/logmedic/internal/logtypes"
	"github.com/ppiankov/logmedic/internal/model"
	"github.com/ppiankov/logmedic/internal/redact"
	"github.com/ppiankov/logmedic/internal/sourcectx"
)

const (
	defaultMaxMembers = 5
	defaultMaxContext = 20
)

// Classifier produces one ErrorReport per group.
type Classifier struct {
	provider    llm.Provider
	model       string
	temperature float64
	maxMembers  int
	maxContext  int
	source      *sourcectx.Loader
	redactor    *redact.Redactor
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithModel sets the model name sent with each request.
func WithModel(m string) Option { return func(c *Classifier) { c.model = m } }

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option { return func(c *Classifier) { c.temperature = t } }

// WithMaxMembers caps the representative entries included in the prompt.
func WithMaxMembers(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.maxMembers = n
		}
	}
}

// WithMaxContext caps the surrounding entries included in the prompt.
func WithMaxContext(n int) Option {
	return func(c *Classifier) {
		if n >= 0 {
			c.maxContext = n
		}
	}
}

// WithSourceLoader adds a source snippet around the logged line.
func WithSourceLoader(l *sourcectx.Loader) Option { return func(c *Classifier) { c.source = l } }

// WithRedactor masks sensitive values before log text leaves the process.
func WithRedactor(r *redact.Redactor) Option { return func(c *Classifier) { c.redactor = r } }

// New creates a Classifier backed by p.
func New(p llm.Provider, opts ...Option) *Classifier {
	c := &Classifier{
		provider:   p,
		maxMembers: defaultMaxMembers,
		maxContext: defaultMaxContext,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Input is one group plus the log entries around it.
type Input struct {
	Group   model.ErrorGroup
	Context []logtypes.LogEntry
}

// response is the JSON object the model is asked for. Fields are loose
// because models drift from the requested shape.
type response struct {
	ErrorKind         string `json:"error_kind"`
	ErrorType         string `json:"error_type"`
	Category          string `json:"category"`
	IsCodeIssue       *bool  `json:"is_code_issue"`
	RootCause         string `json:"root_cause"`
	Explanation       string `json:"explanation"`
	SuggestedApproach string `json:"suggested_approach"`
	Confidence        any    `json:"confidence"`
}

// Classify makes exactly one model call for the group. A reply that cannot
// be interpreted returns an llm.ErrMalformed error.
func (c *Classifier) Classify(ctx context.Context, in Input) (model.ErrorReport, error) {
	if len(in.Group.Members) == 0 {
		return model.ErrorReport{}, fmt.Errorf("classify %s: empty group", in.Group.Key)
	}

	resp, err := c.provider.Chat(ctx, llm.ChatRequest{
		Model:       c.model,
		Temperature: c.temperature,
		JSON:        true,
		Messages: []llm.Message{
			llm.System(systemPrompt),
			llm.User(c.userPrompt(in)),
		},
	})
	if err != nil {
		return model.ErrorReport{}, err
	}

	var r response
	if err := llm.Decode(resp.Content, &r); err != nil {
		return model.ErrorReport{}, llm.Malformed(c.provider.Name(), err)
	}

	kindLabel := r.ErrorKind
	if kindLabel == "" {
		kindLabel = r.ErrorType
	}
	if strings.TrimSpace(kindLabel) == "" {
		return model.ErrorReport{}, llm.Malformed(c.provider.Name(), fmt.Errorf("response has no error_kind"))
	}
	kind := model.ParseKind(kindLabel)

	explanation := r.RootCause
	if explanation == "" {
		explanation = r.Explanation
	}

	return model.ErrorReport{
		Key:               in.Group.Key,
		Kind:              kind,
		Severity:          string(in.Group.Severity()),
		Confidence:        model.ClampConfidence(confidence(r.Confidence)),
		Explanation:       strings.TrimSpace(explanation),
		SuggestedApproach: strings.TrimSpace(r.SuggestedApproach),
		Category:          category(r, kind),
		Provider:          c.provider.Name(),
		Model:             c.model,
	}, nil
}

// category prefers the explicit field, then is_code_issue, then the kind.
func category(r response, kind model.ErrorKind) model.Category {
	if cat, ok := model.ParseCategory(r.Category); ok {
		return cat
	}
	if r.IsCodeIssue != nil {
		if *r.IsCodeIssue {
			return model.CategoryCode
		}
		if cat := model.CategoryFor(kind); cat != model.CategoryCode {
			return cat
		}
		return model.CategoryConfig
	}
	return model.CategoryFor(kind)
}

// confidence accepts a number or a numeric string; anything else is 0.5.
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
