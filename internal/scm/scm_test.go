package scm

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/logmedic/internal/logtypes"
	"github.com/ppiankov/logmedic/internal/model"
)

type call struct {
	name string
	args map[string]any
}

type fakeTools struct {
	mu      sync.Mutex
	calls   []call
	replies map[string]string
	errs    map[string]error
}

func (f *fakeTools) CallTool(_ context.Context, name string, args map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name, args})
	if err := f.errs[name]; err != nil {
		return "", err
	}
	return f.replies[name], nil
}

func (f *fakeTools) names() []string {
	var out []string
	for _, c := range f.calls {
		out = append(out, c.name)
	}
	return out
}

func (f *fakeTools) find(name string) map[string]any {
	for _, c := range f.calls {
		if c.name == name {
			return c.args
		}
	}
	return nil
}

func patchRequest() Request {
	return Request{
		RunID: "run-1",
		Group: model.ErrorGroup{
			Key:     model.GroupKey{File: "Proc.cpp", Function: "processPayment"},
			Members: []logtypes.LogEntry{{Raw: "ERROR null merchant"}},
		},
		Report: &model.ErrorReport{Kind: model.KindNullPointer, Severity: "ERROR", Explanation: "merchant is null"},
		Proposal: model.FixProposal{
			Title:       "Guard merchant pointer",
			Description: "Add a null check before paying.",
			Risk:        "low",
			Confidence:  0.8,
			Payload: &model.Patch{
				File:     "src/Proc.cpp",
				Function: "processPayment",
				Changes: []model.CodeChange{{
					File:        "./src/Proc.cpp",
					Original:    "m->pay();",
					Replacement: "if (m) m->pay();",
					Explanation: "skip when merchant is missing",
				}},
				Diff: "-m->pay();\n+if (m) m->pay();\n",
			},
		},
	}
}

func newTestGitHub(t *testing.T, tools Tools, root string) *GitHub {
	t.Helper()
	g, err := NewGitHub(tools, GitHubConfig{Repo: "acme/switch", RepoRoot: root}, nil)
	if err != nil {
		t.Fatal(err)
	}
	g.now = func() time.Time { return time.Date(2024, 1, 15, 10, 32, 1, 0, time.UTC) }
	return g
}

func TestSubmitFlow(t *testing.T) {
	remote := base64.StdEncoding.EncodeToString([]byte("void f() {\n  m->pay();\n}\n"))
	tools := &fakeTools{replies: map[string]string{
		"get_file_contents":   `{"content":"` + remote + `","encoding":"base64"}`,
		"create_pull_request": `{"number":7,"html_url":"https://github.com/acme/switch/pull/7"}`,
	}}
	g := newTestGitHub(t, tools, "")

	sub, err := g.Submit(context.Background(), patchRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	want := []string{"create_branch", "get_file_contents", "push_files", "create_pull_request"}
	if strings.Join(tools.names(), ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", tools.names(), want)
	}
	if sub.URL != "https://github.com/acme/switch/pull/7" {
		t.Errorf("url = %q", sub.URL)
	}
	if !strings.HasPrefix(sub.Branch, "fix/auto-20240115-103201-") || len(sub.Branch) != len("fix/auto-20240115-103201-")+8 {
		t.Errorf("branch = %q", sub.Branch)
	}
	if len(sub.Files) != 1 || sub.Files[0] != "src/Proc.cpp" {
		t.Errorf("files = %v", sub.Files)
	}

	branch := tools.find("create_branch")
	if branch["owner"] != "acme" || branch["repo"] != "switch" || branch["from_branch"] != "main" {
		t.Errorf("create_branch args = %v", branch)
	}
	push := tools.find("push_files")
	files := push["files"].([]any)
	content := files[0].(map[string]any)["content"].(string)
	if !strings.Contains(content, "if (m) m->pay();") {
		t.Errorf("pushed content not patched: %q", content)
	}
	if push["message"] != "fix: Guard merchant pointer" {
		t.Errorf("commit message = %v", push["message"])
	}
	pr := tools.find("create_pull_request")
	body := pr["body"].(string)
	for _, s := range []string{"Add a null check", "`null_pointer`", "merchant is null", "```diff", "run-1"} {
		if !strings.Contains(body, s) {
			t.Errorf("PR body missing %q", s)
		}
	}
}

func TestSubmitFallsBackToLocalCheckout(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "Proc.cpp"), []byte("m->pay();\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tools := &fakeTools{
		replies: map[string]string{"create_pull_request": "Created https://github.com/acme/switch/pull/9 ok"},
		errs:    map[string]error{"get_file_contents": errors.New("404 Not Found")},
	}
	sub, err := newTestGitHub(t, tools, root).Submit(context.Background(), patchRequest())
	if err != nil {
		t.Fatal(err)
	}
	if sub.URL != "https://github.com/acme/switch/pull/9" {
		t.Errorf("url = %q", sub.URL)
	}
	files := tools.find("push_files")["files"].([]any)
	if got := files[0].(map[string]any)["content"]; got != "if (m) m->pay();\n" {
		t.Errorf("content = %q", got)
	}
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		tool string
		err  error
		kind ErrorKind
	}{
		{"create_branch", errors.New("Reference already exists (422)"), KindConflict},
		{"create_branch", errors.New("401 Bad credentials"), KindAuth},
		{"push_files", errors.New("connection reset by peer"), KindNetwork},
		{"create_pull_request", errors.New("409 conflict"), KindConflict},
		{"get_file_contents", errors.New("403 Forbidden"), KindAuth},
		{"get_file_contents", errors.New("404 Not Found"), KindNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.tool+"/"+string(tt.kind), func(t *testing.T) {
			tools := &fakeTools{errs: map[string]error{tt.tool: tt.err}}
			_, err := newTestGitHub(t, tools, "").Submit(context.Background(), patchRequest())
			var se *Error
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *scm.Error", err)
			}
			if se.Kind != tt.kind || se.Op != tt.tool {
				t.Errorf("got %s/%s, want %s/%s", se.Op, se.Kind, tt.tool, tt.kind)
			}
		})
	}
}

func TestSubmitRejectsNonPatch(t *testing.T) {
	req := patchRequest()
	req.Proposal.Payload = &model.ConfigChange{Entries: []model.ConfigEntry{{Key: "k", Value: "v"}}}
	tools := &fakeTools{}
	if _, err := newTestGitHub(t, tools, "").Submit(context.Background(), req); !errors.Is(err, ErrNotPatch) {
		t.Errorf("err = %v, want ErrNotPatch", err)
	}
	if len(tools.calls) != 0 {
		t.Errorf("no tools should be called, got %v", tools.names())
	}
}

func TestNewGitHubValidatesRepo(t *testing.T) {
	for _, repo := range []string{"", "acme", "/switch", "acme/", "a/b/c"} {
		if _, err := NewGitHub(&fakeTools{}, GitHubConfig{Repo: repo}, nil); err == nil {
			t.Errorf("repo %q should be rejected", repo)
		}
	}
}

func TestDecodeFileContent(t *testing.T) {
	if got := decodeFileContent("plain text"); got != "plain text" {
		t.Errorf("got %q", got)
	}
	if got := decodeFileContent(`{"content":"raw","encoding":"utf-8"}`); got != "raw" {
		t.Errorf("got %q", got)
	}
}

func TestCleanPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"./src/a.cpp", "src/a.cpp"},
		{"/src/a.cpp", "src/a.cpp"},
		{`src\a.cpp`, "src/a.cpp"},
		{"src//b/../a.cpp", "src/a.cpp"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := cleanPath(tt.in); got != tt.want {
			t.Errorf("cleanPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
