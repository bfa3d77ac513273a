package scm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/logmedic/internal/model"
	"github.com/ppiankov/logmedic/internal/patch"
)

// GitHubConfig identifies the target repository.
type GitHubConfig struct {
	Repo       string // owner/name
	BaseBranch string
	// RepoRoot is a local checkout used when the remote file cannot be read.
	RepoRoot string
}

// GitHub submits patches through GitHub MCP tools.
type GitHub struct {
	tools  Tools
	owner  string
	repo   string
	base   string
	root   string
	logger *zap.Logger
	now    func() time.Time
}

// NewGitHub validates cfg and returns a submitter.
func NewGitHub(tools Tools, cfg GitHubConfig, logger *zap.Logger) (*GitHub, error) {
	owner, repo, ok := strings.Cut(cfg.Repo, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("invalid repository %q: expected owner/name", cfg.Repo)
	}
	base := cfg.BaseBranch
	if base == "" {
		base = "main"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitHub{
		tools:  tools,
		owner:  owner,
		repo:   repo,
		base:   base,
		root:   cfg.RepoRoot,
		logger: logger,
		now:    time.Now,
	}, nil
}

// BranchName returns fix/auto-<timestamp>-<id>.
func BranchName(now time.Time) string {
	return fmt.Sprintf("fix/auto-%s-%s", now.UTC().Format("20060102-150405"), uuid.NewString()[:8])
}

// Submit creates a branch, commits the patched files and opens a PR.
func (g *GitHub) Submit(ctx context.Context, req Request) (*Submission, error) {
	pt, ok := req.Proposal.Patch()
	if !ok {
		return nil, ErrNotPatch
	}

	changes := pt.Changes
	if len(changes) == 0 {
		// A description-only patch still gets a PR carrying the suggestion.
		changes = []model.CodeChange{{File: pt.File, Replacement: pt.Description}}
	}
	byFile := make(map[string][]model.CodeChange)
	for _, c := range changes {
		f := cleanPath(c.File)
		if f == "" {
			f = cleanPath(pt.File)
		}
		byFile[f] = append(byFile[f], c)
	}
	paths := make([]string, 0, len(byFile))
	for f := range byFile {
		paths = append(paths, f)
	}
	sort.Strings(paths)

	branch := BranchName(g.now())
	if _, err := g.tools.CallTool(ctx, "create_branch", map[string]any{
		"owner":       g.owner,
		"repo":        g.repo,
		"branch":      branch,
		"from_branch": g.base,
	}); err != nil {
		return nil, wrap("create_branch", err)
	}
	g.logger.Info("branch created", zap.String("branch", branch))

	files := make([]any, 0, len(paths))
	for _, f := range paths {
		content, err := g.fileContent(ctx, f)
		if err != nil {
			return nil, err
		}
		updated, methods := patch.ApplyAll(content, byFile[f])
		g.logger.Debug("patch applied", zap.String("file", f), zap.Any("methods", methods))
		files = append(files, map[string]any{"path": f, "content": updated})
	}

	if _, err := g.tools.CallTool(ctx, "push_files", map[string]any{
		"owner":   g.owner,
		"repo":    g.repo,
		"branch":  branch,
		"files":   files,
		"message": commitMessage(req.Proposal),
	}); err != nil {
		return nil, wrap("push_files", err)
	}

	out, err := g.tools.CallTool(ctx, "create_pull_request", map[string]any{
		"owner": g.owner,
		"repo":  g.repo,
		"title": req.Proposal.Title,
		"body":  PullRequestBody(req),
		"head":  branch,
		"base":  g.base,
	})
	if err != nil {
		return nil, wrap("create_pull_request", err)
	}
	url := pullRequestURL(out)
	g.logger.Info("pull request created", zap.String("branch", branch), zap.String("url", url))
	return &Submission{Branch: branch, URL: url, Files: paths}, nil
}

// fileContent reads f from the base branch, falling back to the local
// checkout.
func (g *GitHub) fileContent(ctx context.Context, f string) (string, error) {
	out, err := g.tools.CallTool(ctx, "get_file_contents", map[string]any{
		"owner":  g.owner,
		"repo":   g.repo,
		"path":   f,
		"branch": g.base,
	})
	if err == nil {
		return decodeFileContent(out), nil
	}
	remoteErr := wrap("get_file_contents", err)
	var se *Error
	if errors.As(remoteErr, &se) && se.Kind == KindAuth {
		return "", remoteErr
	}
	if g.root != "" {
		if data, lerr := os.ReadFile(filepath.Join(g.root, filepath.FromSlash(f))); lerr == nil {
			return string(data), nil
		}
	}
	return "", remoteErr
}

// decodeFileContent accepts the GitHub contents API object or raw text.
func decodeFileContent(out string) string {
	var obj struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	trimmed := strings.TrimSpace(out)
	if !strings.HasPrefix(trimmed, "{") || json.Unmarshal([]byte(trimmed), &obj) != nil || obj.Content == "" {
		return out
	}
	if obj.Encoding == "base64" {
		data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(obj.Content, "\n", ""))
		if err == nil {
			return string(data)
		}
	}
	return obj.Content
}

var prURL = regexp.MustCompile(`https://[^\s"']+/pull/\d+`)

func pullRequestURL(out string) string {
	var obj struct {
		HTMLURL string `json:"html_url"`
	}
	if json.Unmarshal([]byte(strings.TrimSpace(out)), &obj) == nil && obj.HTMLURL != "" {
		return obj.HTMLURL
	}
	if m := prURL.FindString(out); m != "" {
		return m
	}
	return strings.TrimSpace(out)
}

func cleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return ""
	}
	return path.Clean(p)
}
