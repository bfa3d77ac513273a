package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/ppiankov/logmedic/internal/classify"
	"github.com/ppiankov/logmedic/internal/cli"
	"github.com/ppiankov/logmedic/internal/cloud"
	"github.com/ppiankov/logmedic/internal/config"
	"github.com/ppiankov/logmedic/internal/export"
	"github.com/ppiankov/logmedic/internal/grouper"
	"github.com/ppiankov/logmedic/internal/llm"
	"github.com/ppiankov/logmedic/internal/logging"
	"github.com/ppiankov/logmedic/internal/metrics"
	"github.com/ppiankov/logmedic/internal/pipeline"
	"github.com/ppiankov/logmedic/internal/propose"
	"github.com/ppiankov/logmedic/internal/redact"
	"github.com/ppiankov/logmedic/internal/report"
	"github.com/ppiankov/logmedic/internal/scm"
	"github.com/ppiankov/logmedic/internal/selector"
	"github.com/ppiankov/logmedic/internal/signature"
	"github.com/ppiankov/logmedic/internal/source"
	"github.com/ppiankov/logmedic/internal/sourcectx"
	"github.com/ppiankov/logmedic/internal/tui"
)

// Seams replaced in tests.
var (
	newProvider  = llm.New
	newSubmitter = func(s config.Settings, logger *zap.Logger) (scm.Submitter, func() error, error) {
		command := scm.DefaultMCPCommand
		if s.MCPCommand != "" {
			command = strings.Fields(s.MCPCommand)
		}
		tools := scm.NewMCPTools(command, s.GitHubToken, s.SCMTimeout)
		gh, err := scm.NewGitHub(tools, scm.GitHubConfig{
			Repo:       s.GitHubRepo,
			BaseBranch: s.BaseBranch,
			RepoRoot:   s.RepoRoot,
		}, logger)
		if err != nil {
			_ = tools.Close()
			return nil, nil, err
		}
		return gh, tools.Close, nil
	}
	newBackend = cloud.NewBackend
)

type analyzeFlags struct {
	batch           bool
	dryRun          bool
	provider        string
	model           string
	sourceDir       string
	repoRoot        string
	concurrency     int
	retries         int
	timeout         time.Duration
	where           string
	follow          bool
	followIdle      time.Duration
	since           time.Duration
	previous        bool
	autoApplyConfig bool
	redact          string
	logLevel        string
	jsonOut         bool
	outDir          string
	exportPath      string
	exportFormat    string
	shareExpiry     time.Duration
	metricsFile     string
}

func newAnalyzeCmd() *cobra.Command {
	f := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze <log|->",
		Short: "Analyze a log and propose fixes for its errors",
		Long: `Parse a payment switch log, group its errors, classify each group and
propose a fix. By default every patch is shown for approval before a pull
request is opened. --batch stops after classification and --dry-run proposes
fixes without submitting anything.

The log may be a file (optionally .gz or .zst), - for stdin, or
k8s://namespace/pod[/container] for pod logs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args[0], f)
		},
	}

	fl := cmd.Flags()
	fl.BoolVar(&f.batch, "batch", false, "classify only; no proposals, no pull requests")
	fl.BoolVar(&f.dryRun, "dry-run", false, "propose fixes but never submit them")
	fl.StringVar(&f.provider, "provider", "", "LLM provider: gemini, groq, openai, anthropic, ollama")
	fl.StringVar(&f.model, "model", "", "model name (default depends on provider)")
	fl.StringVar(&f.sourceDir, "source", "", "source tree used for code context")
	fl.StringVar(&f.repoRoot, "repo-root", "", "repository root that pull request paths are relative to")
	fl.IntVar(&f.concurrency, "concurrency", 0, "groups analyzed in parallel")
	fl.IntVar(&f.retries, "retries", 0, "attempts per model call, including the first")
	fl.DurationVar(&f.timeout, "timeout", 0, "timeout per model call")
	fl.StringVar(&f.where, "where", "", "expression selecting the entries to analyze")
	fl.BoolVar(&f.follow, "follow", false, "follow the log until interrupted or idle")
	fl.DurationVar(&f.followIdle, "follow-idle", 0, "stop following after this long without new lines")
	fl.DurationVar(&f.since, "since", 0, "only pod logs newer than this (k8s:// sources)")
	fl.BoolVar(&f.previous, "previous", false, "read the previous container's logs (k8s:// sources)")
	fl.BoolVar(&f.autoApplyConfig, "auto-apply-config", false, "config changes need no review (ignored in interactive mode)")
	fl.StringVar(&f.redact, "redact", "", "redaction: default, all, off, or a comma list of patterns")
	fl.StringVar(&f.logLevel, "log-level", "", "diagnostic log level: debug, info, warn, error")
	fl.BoolVar(&f.jsonOut, "json", false, "print the result as JSON")
	fl.StringVar(&f.outDir, "out", "", "write summary.md and result.json to this directory")
	fl.StringVar(&f.exportPath, "export", "", "export group rows to a file, s3://bucket/key or gs://bucket/key")
	fl.StringVar(&f.exportFormat, "export-format", "", "export format: json, jsonl, csv, parquet (default from extension)")
	fl.DurationVar(&f.shareExpiry, "share-expiry", 0, "presign the exported object for this long (s3 only)")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write run metrics in Prometheus text format")
	cmd.MarkFlagsMutuallyExclusive("batch", "dry-run")

	return cmd
}

// overrides collects the flags set on the command line. Unset flags keep
// the configured values.
func (f *analyzeFlags) overrides(cmd *cobra.Command) config.Overrides {
	var o config.Overrides
	changed := cmd.Flags().Changed
	switch {
	case f.batch:
		m := pipeline.ModeBatch
		o.Mode = &m
	case f.dryRun:
		m := pipeline.ModeDryRun
		o.Mode = &m
	}
	if changed("provider") {
		o.Provider = &f.provider
	}
	if changed("model") {
		o.Model = &f.model
	}
	if changed("source") {
		o.SourceDir = &f.sourceDir
	}
	if changed("repo-root") {
		o.RepoRoot = &f.repoRoot
	}
	if changed("concurrency") {
		o.Concurrency = &f.concurrency
	}
	if changed("retries") {
		o.Retries = &f.retries
	}
	if changed("timeout") {
		o.Timeout = &f.timeout
	}
	if changed("where") {
		o.Where = &f.where
	}
	if changed("auto-apply-config") {
		o.AutoApplyConfig = &f.autoApplyConfig
	}
	if changed("redact") {
		o.Redact = &f.redact
	}
	if changed("log-level") {
		o.LogLevel = &f.logLevel
	}
	return o
}

func (f *analyzeFlags) validate() error {
	if f.concurrency < 0 {
		return cli.NewUsageError("--concurrency must not be negative")
	}
	if f.retries < 0 {
		return cli.NewUsageError("--retries must not be negative")
	}
	if f.timeout < 0 || f.followIdle < 0 || f.since < 0 || f.shareExpiry < 0 {
		return cli.NewUsageError("durations must not be negative")
	}
	if f.exportFormat != "" {
		if _, err := export.ParseFormat(f.exportFormat, ""); err != nil {
			return cli.NewUsageError(err.Error())
		}
	}
	if f.shareExpiry > 0 && !cloud.IsURL(f.exportPath) {
		return cli.NewUsageError("--share-expiry needs an s3:// or gs:// --export destination")
	}
	return nil
}

// loadConfig reads --config, or the home and working directory files.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Load(), nil
	}
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, configError(err)
	}
	return cfg, nil
}

func resolveSettings(o config.Overrides) (config.Settings, error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.Settings{}, err
	}
	s, err := config.Resolve(cfg, o)
	if err != nil {
		return config.Settings{}, configError(err)
	}
	return s, nil
}

func runAnalyze(cmd *cobra.Command, target string, f *analyzeFlags) error {
	if err := f.validate(); err != nil {
		return err
	}
	s, err := resolveSettings(f.overrides(cmd))
	if err != nil {
		return err
	}
	if missing := s.Validate(s.Mode); len(missing) > 0 {
		return cli.NewConfigError("missing configuration: " + strings.Join(missing, "; ")).WithHint(setupHint)
	}
	if stdin, ok := cmd.InOrStdin().(*os.File); target == source.Stdin && s.Mode == pipeline.ModeInteractive && (!ok || !isTerminal(stdin)) {
		return cli.NewUsageError("interactive mode reads approvals from stdin; use --batch or --dry-run when piping the log")
	}

	logger, err := logging.New(s.LoggingConfig())
	if err != nil {
		return configError(err)
	}
	defer func() { _ = logger.Sync() }()
	m := metrics.New()

	redactor, err := newRedactor(s, m)
	if err != nil {
		return err
	}
	sel, err := selector.Compile(s.Where)
	if err != nil {
		return cli.NewUsageError(err.Error()).Wrap(err)
	}
	norm, err := signature.WithRules(signature.Default, s.NormalizeRules)
	if err != nil {
		return configError(err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	open, err := source.Open(ctx, target, source.Options{
		Follow:     f.follow,
		FollowIdle: f.followIdle,
		Since:      f.since,
		Previous:   f.previous,
		Stdin:      cmd.InOrStdin(),
	})
	if err != nil {
		return sourceError(err)
	}
	in, err := pipeline.Prepare(open, pipeline.PrepareConfig{
		Source:   target,
		Selector: sel,
		Grouper:  grouper.New(grouper.WithNormalizer(norm)),
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		return sourceError(err)
	}
	provider, err := newProvider(ctx, s.LLMConfig())
	if err != nil {
		return configError(err)
	}
	loader := sourcectx.New(s.SourceDir, 0)
	opts := pipeline.Options{
		Classifier: classify.New(provider,
			classify.WithModel(s.Model),
			classify.WithTemperature(s.Temperature),
			classify.WithMaxMembers(s.MaxMembers),
			classify.WithSourceLoader(loader),
			classify.WithRedactor(redactor)),
		Mode:            s.Mode,
		Concurrency:     s.Concurrency,
		Retry:           s.RetryPolicy(),
		AutoApplyConfig: s.AutoApplyConfig,
		Logger:          logger,
		Metrics:         m,
	}
	if s.Mode != pipeline.ModeBatch {
		opts.Proposer = propose.New(provider,
			propose.WithModel(s.Model),
			propose.WithTemperature(s.Temperature),
			propose.WithSourceLoader(loader),
			propose.WithRedactor(redactor),
			propose.WithAutoApplyConfig(s.AutoApplyConfig && s.Mode != pipeline.ModeInteractive))
	}
	if s.Mode == pipeline.ModeInteractive {
		sub, closeFn, err := newSubmitter(s, logger)
		if err != nil {
			return configError(err)
		}
		defer func() { _ = closeFn() }()
		opts.Submitter = sub
		opts.Confirmer = newConfirmer(cmd, cancel)
	}

	orch, err := pipeline.New(opts)
	if err != nil {
		return cli.NewInternalError(err.Error()).Wrap(err)
	}
	res, runErr := orch.Run(ctx, in)
	if res != nil {
		// An aborted run still reports what it got through.
		if err := writeResult(cmd, f, s, res); err != nil && runErr == nil {
			runErr = err
		}
	}
	if f.metricsFile != "" {
		if err := m.WriteTextfile(f.metricsFile); err != nil {
			logger.Warn("write metrics", zap.String("path", f.metricsFile), zap.Error(err))
		}
	}
	if runErr == nil {
		return nil
	}
	var ce *cli.CLIError
	if errors.As(runErr, &ce) {
		return runErr
	}
	return runError(runErr)
}

func newRedactor(s config.Settings, m *metrics.Metrics) (*redact.Redactor, error) {
	enabled, names := redact.ParseFlag(s.Redact)
	if !enabled {
		return nil, nil
	}
	r, err := redact.New(names)
	if err != nil {
		return nil, cli.NewUsageError(err.Error()).Wrap(err)
	}
	if s.RedactFile != "" {
		if err := r.LoadCustomPatterns(s.RedactFile); err != nil {
			return nil, configError(err)
		}
	}
	r.SetOnRedact(m.Redaction)
	return r, nil
}

// newConfirmer shows proposals full screen on a terminal and falls back to
// a line prompt otherwise. Quitting the prompt cancels the run.
func newConfirmer(cmd *cobra.Command, cancel context.CancelFunc) pipeline.Confirmer {
	in, ok := cmd.InOrStdin().(*os.File)
	if ok && isTerminal(in) {
		width := report.DefaultWidth
		if w, _, err := term.GetSize(int(in.Fd())); err == nil && w > 0 {
			width = w
		}
		return &tui.Confirmer{In: in, Out: cmd.OutOrStdout(), Width: width, OnAbort: cancel}
	}
	lc := tui.NewLineConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr())
	return pipeline.ConfirmFunc(func(ctx context.Context, p pipeline.Prompt) (bool, error) {
		ok, err := lc.Confirm(ctx, p)
		if errors.Is(err, tui.ErrAborted) {
			cancel()
		}
		return ok, err
	})
}

func isTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

func writeResult(cmd *cobra.Command, f *analyzeFlags, s config.Settings, res *pipeline.Result) error {
	out := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	if f.outDir != "" {
		if err := report.WriteDir(f.outDir, res); err != nil {
			return cli.Classify(err)
		}
		fmt.Fprintf(stderr, "wrote %s and %s to %s\n", report.SummaryFile, report.ResultFile, f.outDir)
	}

	var err error
	switch {
	case f.jsonOut:
		err = report.WriteJSON(out, res)
	case s.Mode == pipeline.ModeBatch:
		_, err = fmt.Fprintln(out, report.Table(res))
	default:
		err = printSummary(out, res)
	}
	if err != nil {
		return cli.NewInternalError(err.Error()).Wrap(err)
	}

	if f.exportPath != "" {
		return exportResult(cmd.Context(), stderr, f, res)
	}
	return nil
}

// printSummary renders the markdown summary on a terminal and writes it
// as plain markdown when stdout is redirected.
func printSummary(w io.Writer, res *pipeline.Result) error {
	var b strings.Builder
	if err := report.WriteSummary(&b, res); err != nil {
		return err
	}
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		width := report.DefaultWidth
		if tw, _, err := term.GetSize(int(f.Fd())); err == nil && tw > 0 {
			width = tw
		}
		_, err := io.WriteString(w, report.Render(b.String(), width))
		return err
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func exportResult(ctx context.Context, stderr io.Writer, f *analyzeFlags, res *pipeline.Result) error {
	if !cloud.IsURL(f.exportPath) {
		format, err := export.ParseFormat(f.exportFormat, f.exportPath)
		if err != nil {
			return cli.NewUsageError(err.Error())
		}
		n, err := export.Write(res, f.exportPath, format)
		if err != nil {
			return cli.Classify(err)
		}
		fmt.Fprintf(stderr, "exported %d groups to %s (%s)\n", n, f.exportPath, format)
		return nil
	}

	dest, err := cloud.ParseURL(f.exportPath)
	if err != nil {
		return cli.NewUsageError(err.Error())
	}
	format, err := export.ParseFormat(f.exportFormat, dest.Key)
	if err != nil {
		return cli.NewUsageError(err.Error())
	}
	key := dest.Object("logmedic-" + res.RunID + format.Ext())

	tmp, err := os.CreateTemp("", "logmedic-export-*"+format.Ext())
	if err != nil {
		return cli.NewInternalError(err.Error()).Wrap(err)
	}
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := export.Write(res, tmp.Name(), format)
	if err != nil {
		return cli.NewInternalError(err.Error()).Wrap(err)
	}
	backend, err := newBackend(ctx, dest.Scheme, dest.Bucket)
	if err != nil {
		return cli.NewNetworkError(err.Error()).Wrap(err)
	}
	if err := cloud.UploadFile(ctx, backend, key, tmp.Name()); err != nil {
		return cli.NewNetworkError("upload export: " + err.Error()).Wrap(err)
	}
	fmt.Fprintf(stderr, "exported %d groups to %s (%s)\n", n, dest.URL(key), format)

	if f.shareExpiry > 0 {
		sharer, ok := backend.(cloud.Sharer)
		if !ok {
			fmt.Fprintf(stderr, "share links are not supported for %s://\n", dest.Scheme)
			return nil
		}
		link, err := sharer.ShareURL(ctx, key, f.shareExpiry)
		if err != nil {
			return cli.NewNetworkError("presign export: " + err.Error()).Wrap(err)
		}
		fmt.Fprintf(stderr, "share link (valid %s): %s\n", f.shareExpiry, link)
	}
	return nil
}
