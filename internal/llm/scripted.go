package llm

import (
	"context"
	"errors"
	"sync"
)

// Step is one scripted reply: content, an error, or (Block) waiting for
// the request context to end.
type Step struct {
	Content string
	Err     error
	Block   bool
}

// ScriptedProvider replays steps in order. Useful for testing retry and
// failure paths.
type ScriptedProvider struct {
	mu       sync.Mutex
	steps    []Step
	requests []ChatRequest
}

// NewScripted creates a provider replying with responses in order.
func NewScripted(responses ...string) *ScriptedProvider {
	s := &ScriptedProvider{}
	for _, r := range responses {
		s.steps = append(s.steps, Step{Content: r})
	}
	return s
}

// Then appends steps.
func (s *ScriptedProvider) Then(steps ...Step) *ScriptedProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, steps...)
	return s
}

func (s *ScriptedProvider) Name() string { return "scripted" }

// Chat pops the next step.
func (s *ScriptedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return nil, errors.New("scripted provider: no more responses available")
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	s.mu.Unlock()

	if step.Block {
		<-ctx.Done()
		return nil, classify(s.Name(), 0, ctx.Err())
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return &ChatResponse{Content: step.Content}, nil
}

// Calls returns how many requests were received.
func (s *ScriptedProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of the received requests.
func (s *ScriptedProvider) Requests() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatRequest(nil), s.requests...)
}

// FuncProvider adapts a function to Provider.
type FuncProvider func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

func (f FuncProvider) Name() string { return "func" }

// Chat calls f.
func (f FuncProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return f(ctx, req)
}
