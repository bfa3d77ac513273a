package propose

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/logmedic/internal/llm"
	"github.com/ppiankov/logmedic/internal/logtypes"
	"github.com/ppiankov/logmedic/internal/model"
	"github.com/ppiankov/logmedic/internal/sourcectx"
)

func group(file, fn string) model.ErrorGroup {
	return model.ErrorGroup{
		Key: model.GroupKey{File: file, Function: fn, Signature: "sig"},
		Members: []logtypes.LogEntry{{
			Severity:   logtypes.SeverityError,
			SourceFile: file,
			Line:       2,
			Function:   fn,
			Message:    "boom",
			Raw:        "ERROR boom",
		}},
	}
}

func report(cat model.Category, kind model.ErrorKind) model.ErrorReport {
	return model.ErrorReport{
		Key:               model.GroupKey{File: "Proc.cpp", Function: "processPayment", Signature: "sig"},
		Kind:              kind,
		Category:          cat,
		Explanation:       "merchant pointer is null",
		SuggestedApproach: "add a null check",
	}
}

func TestProposeKindFollowsCategory(t *testing.T) {
	// The model tries to answer with every payload shape at once; only the
	// category decides which one is used.
	body := `{"title":"t","description":"d","risk_level":"LOW","confidence":0.8,
		"code_changes":[{"original_code":"a","new_code":"b"}],
		"config_changes":{"routing.max_len":19},
		"data_operations":["INSERT INTO bins VALUES (1)"]}`

	tests := []struct {
		cat    model.Category
		want   model.ProposalKind
		review bool
	}{
		{model.CategoryCode, model.KindPatch, true},
		{model.CategoryConfig, model.KindConfigChange, true},
		{model.CategoryData, model.KindDataOperation, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.cat), func(t *testing.T) {
			p := New(llm.NewScripted(body))
			fp, err := p.Propose(context.Background(), report(tt.cat, model.KindCodeBug), group("Proc.cpp", "processPayment"))
			if err != nil {
				t.Fatal(err)
			}
			if fp.Kind() != tt.want {
				t.Errorf("kind = %s, want %s", fp.Kind(), tt.want)
			}
			if fp.RequiresReview != tt.review {
				t.Errorf("requires review = %v", fp.RequiresReview)
			}
			if fp.Risk != "low" || fp.Confidence != 0.8 {
				t.Errorf("risk/confidence = %q/%v", fp.Risk, fp.Confidence)
			}
		})
	}
}

func TestProposeAutoApplyConfig(t *testing.T) {
	body := `{"title":"Set max length","config_changes":{"b":"2","a":true}}`
	p := New(llm.NewScripted(body, body), WithAutoApplyConfig(true))

	fp, err := p.Propose(context.Background(), report(model.CategoryConfig, model.KindMissingConfig), group("Proc.cpp", "f"))
	if err != nil {
		t.Fatal(err)
	}
	if fp.RequiresReview {
		t.Error("auto-applied config change should not require review")
	}
	cc := fp.Payload.(*model.ConfigChange)
	want := []model.ConfigEntry{{Key: "a", Value: "true"}, {Key: "b", Value: "2"}}
	if diff := cmp.Diff(want, cc.Entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	fp, err = p.Propose(context.Background(), report(model.CategoryCode, model.KindCodeBug), group("Proc.cpp", "f"))
	if err != nil {
		t.Fatal(err)
	}
	if !fp.RequiresReview {
		t.Error("patches always require review")
	}
	if pt, _ := fp.Patch(); pt.Description != "add a null check" {
		t.Errorf("patch description = %q, want suggested approach", pt.Description)
	}
}

func TestProposeConfigEntryList(t *testing.T) {
	body := `{"config_changes":[{"key":"k","value":"v"}],"config_target":"switch.ini"}`
	fp, err := New(llm.NewScripted(body)).Propose(context.Background(), report(model.CategoryConfig, model.KindMissingConfig), group("", ""))
	if err != nil {
		t.Fatal(err)
	}
	cc := fp.Payload.(*model.ConfigChange)
	if cc.Target != "switch.ini" || len(cc.Entries) != 1 || cc.Entries[0].Key != "k" {
		t.Errorf("unexpected config change %+v", cc)
	}
	if fp.Title != "Fix missing config in processPayment" {
		t.Errorf("default title = %q", fp.Title)
	}
}

func TestProposePatchFallbacks(t *testing.T) {
	body := `{"code_changes":[{"line_start":2,"line_end":2,"original_code":"x","new_code":"if (m) x"}]}`
	fp, err := New(llm.NewScripted(body)).Propose(context.Background(), report(model.CategoryCode, model.KindNullPointer), group("Proc.cpp", "processPayment"))
	if err != nil {
		t.Fatal(err)
	}
	pt, ok := fp.Patch()
	if !ok {
		t.Fatal("expected patch payload")
	}
	if pt.File != "Proc.cpp" || pt.Function != "processPayment" {
		t.Errorf("file/function = %q/%q", pt.File, pt.Function)
	}
	if pt.Description != "add a null check" || fp.Description != "add a null check" {
		t.Errorf("description should fall back to suggested approach, got %q", pt.Description)
	}
	if pt.Changes[0].File != "Proc.cpp" {
		t.Errorf("change file = %q", pt.Changes[0].File)
	}
	if !strings.Contains(pt.Diff, "+if (m) x") {
		t.Errorf("fragment diff missing replacement:\n%s", pt.Diff)
	}
	if fp.Title != "Fix null pointer in processPayment" {
		t.Errorf("title = %q", fp.Title)
	}
}

func TestProposeDiffAgainstSource(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	src := "void processPayment() {\n  m->pay();\n}\n"
	if err := os.WriteFile(filepath.Join(root, "src", "Proc.cpp"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	body := `{"description":"guard m","code_changes":[{"file_path":"Proc.cpp","original_code":"m->pay();","new_code":"if (m) m->pay();"}]}`
	p := New(llm.NewScripted(body), WithSourceLoader(sourcectx.New(root, 5)))

	fp, err := p.Propose(context.Background(), report(model.CategoryCode, model.KindNullPointer), group("Proc.cpp", "processPayment"))
	if err != nil {
		t.Fatal(err)
	}
	pt, _ := fp.Patch()
	if pt.File != "src/Proc.cpp" {
		t.Errorf("file = %q, want resolved path", pt.File)
	}
	for _, want := range []string{"--- a/src/Proc.cpp", "-  m->pay();", "+  if (m) m->pay();"} {
		if !strings.Contains(pt.Diff, want) {
			t.Errorf("diff missing %q:\n%s", want, pt.Diff)
		}
	}
	prompt := llmPrompt(t, p)
	if !strings.Contains(prompt, "m->pay();") {
		t.Error("prompt should include the source snippet")
	}
}

func llmPrompt(t *testing.T, p *Proposer) string {
	t.Helper()
	s, ok := p.provider.(*llm.ScriptedProvider)
	if !ok || len(s.Requests()) == 0 {
		t.Fatal("no request recorded")
	}
	return s.Requests()[0].Messages[1].Content
}

func TestProposeMalformed(t *testing.T) {
	tests := []struct {
		name string
		cat  model.Category
		body string
	}{
		{"prose", model.CategoryCode, "Add a null check."},
		{"empty patch", model.CategoryCode, `{"title":"x","code_changes":[]}`},
		{"empty config", model.CategoryConfig, `{"title":"x"}`},
		{"bad config", model.CategoryConfig, `{"config_changes":"oops"}`},
		{"empty data", model.CategoryData, `{"data_operations":["  "]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// no suggested approach to fall back on
			rep := report(tt.cat, model.KindUnknown)
			rep.SuggestedApproach = ""
			_, err := New(llm.NewScripted(tt.body)).Propose(context.Background(), rep, group("Proc.cpp", "f"))
			if !errors.Is(err, llm.ErrMalformed) {
				t.Errorf("err = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestProposePromptVariant(t *testing.T) {
	for _, tt := range []struct {
		cat  model.Category
		want string
	}{
		{model.CategoryCode, `"code_changes"`},
		{model.CategoryConfig, `"config_changes"`},
		{model.CategoryData, `"data_operations"`},
	} {
		s := llm.NewScripted(`{"description":"d","manual_instructions":"m"}`)
		p := New(s)
		if _, err := p.Propose(context.Background(), report(tt.cat, model.KindUnknown), group("Proc.cpp", "f")); err != nil {
			t.Fatal(err)
		}
		prompt := s.Requests()[0].Messages[1].Content
		if !strings.Contains(prompt, tt.want) {
			t.Errorf("%s prompt missing %s", tt.cat, tt.want)
		}
		if !strings.Contains(prompt, "merchant pointer is null") {
			t.Errorf("%s prompt missing root cause", tt.cat)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate(strings.Repeat("x", 100), 10); got != "xxxxxxx..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
}
