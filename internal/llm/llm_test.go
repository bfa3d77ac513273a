package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no lang", "here:\n```\n{\"a\":2}\n```\nthanks", `{"a":2}`},
		{"prose", `The answer is {"a":{"b":"}"}} as requested.`, `{"a":{"b":"}"}}`},
		{"skips invalid", `{not json} then {"ok":true}`, `{"ok":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if err != nil {
				t.Fatalf("ExtractJSON: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExtractJSON_None(t *testing.T) {
	for _, in := range []string{"", "no json here", "{unclosed", "```json\n[1,2]\n```"} {
		if _, err := ExtractJSON(in); !errors.Is(err, ErrNoJSON) {
			t.Errorf("ExtractJSON(%q) err = %v, want ErrNoJSON", in, err)
		}
	}
}

func TestDecode(t *testing.T) {
	var v struct {
		Kind string `json:"error_kind"`
	}
	if err := Decode("```json\n{\"error_kind\":\"null_pointer\"}\n```", &v); err != nil {
		t.Fatal(err)
	}
	if v.Kind != "null_pointer" {
		t.Errorf("got %q", v.Kind)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		want   Kind
	}{
		{"unauthorized", 401, errors.New("bad key"), KindAuth},
		{"forbidden", 403, errors.New("nope"), KindAuth},
		{"payment", 402, errors.New("pay up"), KindAuth},
		{"rate limit", 429, errors.New("slow down"), KindTransient},
		{"quota", 429, errors.New("You exceeded your current quota"), KindAuth},
		{"server", 503, errors.New("overloaded"), KindTransient},
		{"bad request", 400, errors.New("prompt too long"), KindRejected},
		{"deadline", 0, fmt.Errorf("call: %w", context.DeadlineExceeded), KindTransient},
		{"api key text", 0, errors.New("API key not valid"), KindAuth},
		{"unknown", 0, errors.New("connection reset"), KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("test", tt.status, tt.err)
			kind, ok := KindOf(err)
			if !ok || kind != tt.want {
				t.Errorf("kind = %v (%v), want %v", kind, ok, tt.want)
			}
			if !errors.Is(err, tt.err) {
				t.Error("classified error should wrap the original")
			}
		})
	}
}

func TestErrorSentinels(t *testing.T) {
	err := fmt.Errorf("stage: %w", &Error{Kind: KindAuth, Provider: "groq", Status: 401})
	if !errors.Is(err, ErrAuth) || errors.Is(err, ErrTransient) {
		t.Error("auth error should match ErrAuth only")
	}
	if Retryable(err) {
		t.Error("auth errors are not retryable")
	}
	if !Retryable(Malformed("x", errors.New("bad"))) {
		t.Error("malformed errors are retryable")
	}
	if !strings.Contains(err.Error(), "groq: auth (status 401)") {
		t.Errorf("unexpected message %q", err.Error())
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("plain errors have no kind")
	}
}

func TestClassifyKeepsExisting(t *testing.T) {
	orig := Malformed("a", errors.New("x"))
	if got := classify("b", 500, orig); got != error(orig) {
		t.Error("already classified errors should pass through")
	}
}

func TestScriptedProvider(t *testing.T) {
	boom := &Error{Kind: KindTransient, Provider: "scripted"}
	p := NewScripted("first").Then(Step{Err: boom}, Step{Content: "third"})

	ctx := context.Background()
	r, err := p.Chat(ctx, ChatRequest{Model: "m"})
	if err != nil || r.Content != "first" {
		t.Fatalf("got %v %v", r, err)
	}
	if _, err := p.Chat(ctx, ChatRequest{}); !errors.Is(err, ErrTransient) {
		t.Fatalf("got %v, want transient", err)
	}
	if r, _ := p.Chat(ctx, ChatRequest{}); r.Content != "third" {
		t.Fatalf("got %q", r.Content)
	}
	if _, err := p.Chat(ctx, ChatRequest{}); err == nil {
		t.Fatal("expected exhaustion error")
	}
	if p.Calls() != 4 || p.Requests()[0].Model != "m" {
		t.Errorf("calls = %d", p.Calls())
	}
}

func TestScriptedProviderBlock(t *testing.T) {
	p := NewScripted().Then(Step{Block: true})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Chat(ctx, ChatRequest{})
	if !errors.Is(err, ErrTransient) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want transient deadline error", err)
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Config{Provider: "watson"}); err == nil {
		t.Error("expected unknown provider error")
	}
	if _, err := New(ctx, Config{Provider: "groq"}); !errors.Is(err, ErrMissingKey) {
		t.Errorf("got %v, want ErrMissingKey", err)
	}

	tests := []struct {
		provider string
		name     string
	}{
		{"groq", "groq"},
		{"OpenAI", "openai"},
		{"anthropic", "anthropic"},
		{"ollama", "ollama"},
	}
	for _, tt := range tests {
		p, err := New(ctx, Config{Provider: tt.provider, APIKey: "k"})
		if err != nil {
			t.Fatalf("New(%s): %v", tt.provider, err)
		}
		if p.Name() != tt.name {
			t.Errorf("Name() = %q, want %q", p.Name(), tt.name)
		}
	}
}

func TestOllamaProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Model != "llama3.1" || req.Format != "json" || req.Stream {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]string{"role": "assistant", "content": `{"ok":true}`},
			"eval_count":        3,
			"prompt_eval_count": 7,
		})
	}))
	defer srv.Close()

	p := NewOllama(srv.URL+"/", "llama3.1")
	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{User("hi")}, JSON: true})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != `{"ok":true}` || resp.Usage.TotalTokens != 10 {
		t.Errorf("got %+v", resp)
	}
}

func TestOllamaProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL, "m").Chat(context.Background(), ChatRequest{})
	if !errors.Is(err, ErrTransient) {
		t.Errorf("got %v, want transient", err)
	}
}

func TestOpenAIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer good" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":0,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"x\":1}"}}],
			"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`))
	}))
	defer srv.Close()

	p := NewOpenAI("groq", "good", srv.URL+"/", "m")
	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{System("s"), User("u")}, Temperature: 0.2})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != `{"x":1}` || resp.Usage.TotalTokens != 6 {
		t.Errorf("got %+v", resp)
	}

	bad := NewOpenAI("groq", "bad", srv.URL+"/", "m")
	if _, err := bad.Chat(context.Background(), ChatRequest{Messages: []Message{User("u")}}); !errors.Is(err, ErrAuth) {
		t.Errorf("got %v, want auth error", err)
	}
}

func TestAnthropicProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["system"]; !ok {
			http.Error(w, `{"type":"error","error":{"type":"invalid_request_error","message":"no system"}}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m1","type":"message","role":"assistant","model":"claude",
			"content":[{"type":"text","text":"{\"y\":2}"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":5,"output_tokens":3}}`))
	}))
	defer srv.Close()

	p := NewAnthropic("k", srv.URL+"/", "claude")
	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{System("s"), User("u")}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != `{"y":2}` || resp.Usage.TotalTokens != 8 {
		t.Errorf("got %+v", resp)
	}

	_, err = p.Chat(context.Background(), ChatRequest{Messages: []Message{User("u")}})
	if !errors.Is(err, ErrRejected) {
		t.Errorf("got %v, want rejected", err)
	}
}

func TestSplitSystem(t *testing.T) {
	sys, rest := splitSystem([]Message{System("a"), User("u"), System("b")})
	if sys != "a\n\nb" || len(rest) != 1 {
		t.Errorf("got %q %v", sys, rest)
	}
}
