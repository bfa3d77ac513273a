package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/logmedic/internal/llm"
	"github.com/ppiankov/logmedic/internal/logging"
	"github.com/ppiankov/logmedic/internal/pipeline"
	"github.com/ppiankov/logmedic/internal/retry"
	"github.com/ppiankov/logmedic/internal/signature"
)

// Defaults applied by Resolve when nothing else sets a value.
const (
	DefaultProvider    = llm.ProviderGroq
	DefaultTemperature = 0.2
	DefaultBaseBranch  = "main"
	DefaultSourceDir   = "src"
	DefaultConcurrency = 4
	DefaultRetries     = 3
	DefaultTimeout     = 60 * time.Second
	DefaultSCMTimeout  = 30 * time.Second
	DefaultMaxMembers  = 5
)

// Config holds persistent defaults loaded from config files.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	GitHub   GitHubConfig   `yaml:"github"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Source   SourceConfig   `yaml:"source"`
	Redact   RedactConfig   `yaml:"redact"`
	Log      LogConfig      `yaml:"log"`
}

// LLMConfig selects the language model provider.
type LLMConfig struct {
	Provider    string   `yaml:"provider,omitempty"`
	Model       string   `yaml:"model,omitempty"`
	APIKey      string   `yaml:"api_key,omitempty"`
	BaseURL     string   `yaml:"base_url,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// GitHubConfig holds pull request settings.
type GitHubConfig struct {
	Token      string `yaml:"token,omitempty"`
	Repo       string `yaml:"repo,omitempty"`
	BaseBranch string `yaml:"base_branch,omitempty"`
	MCPCommand string `yaml:"mcp_command,omitempty"`
	Timeout    string `yaml:"timeout,omitempty"`
}

// PipelineConfig holds run defaults.
type PipelineConfig struct {
	Mode            string `yaml:"mode,omitempty"`
	Concurrency     int    `yaml:"concurrency,omitempty"`
	Retries         int    `yaml:"retries,omitempty"`
	Timeout         string `yaml:"timeout,omitempty"`
	AutoApplyConfig *bool  `yaml:"auto_apply_config,omitempty"`
	Where           string `yaml:"where,omitempty"`
	MaxMembers      int    `yaml:"max_members,omitempty"`

	// Normalize rules run before the built-in signature normalizer.
	Normalize []signature.Rule `yaml:"normalize,omitempty"`
}

// SourceConfig locates the switch source tree.
type SourceConfig struct {
	Dir      string `yaml:"dir,omitempty"`
	RepoRoot string `yaml:"repo_root,omitempty"`
}

// RedactConfig selects redaction patterns.
type RedactConfig struct {
	Patterns string `yaml:"patterns,omitempty"`
	File     string `yaml:"file,omitempty"`
}

// LogConfig configures diagnostic logging.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
	File   string `yaml:"file,omitempty"`
}

// HomePath returns ~/.logmedic/config.yaml.
func HomePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".logmedic", "config.yaml"), nil
}

// Load reads config from ~/.logmedic/config.yaml then CWD .logmedic.yaml.
// CWD config values override home config. Missing files are not errors.
// Environment variables (LOGMEDIC_* and the provider key variables)
// override config file values.
func Load() *Config {
	cfg := &Config{}

	if path, err := HomePath(); err == nil {
		_ = loadFile(path, cfg)
	}

	_ = loadFile(".logmedic.yaml", cfg)

	applyEnv(cfg)

	return cfg
}

// LoadFrom reads config from a specific path instead of the default
// locations. Environment overrides still apply.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Save writes cfg as YAML, readable only by the owner since it may hold
// API keys.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString := func(dst *string, names ...string) {
		for _, n := range names {
			if v := os.Getenv(n); v != "" {
				*dst = v
				return
			}
		}
	}
	setInt := func(dst *int, name string) {
		if v, err := strconv.Atoi(os.Getenv(name)); err == nil {
			*dst = v
		}
	}

	setString(&cfg.LLM.Provider, "LOGMEDIC_LLM_PROVIDER", "LLM_PROVIDER")
	setString(&cfg.LLM.Model, "LOGMEDIC_LLM_MODEL")
	setString(&cfg.LLM.APIKey, "LOGMEDIC_LLM_API_KEY")
	setString(&cfg.LLM.BaseURL, "LOGMEDIC_LLM_BASE_URL")
	if v := firstEnv("LOGMEDIC_LLM_TEMPERATURE", "TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLM.Temperature = &f
		}
	}

	setString(&cfg.GitHub.Token, "LOGMEDIC_GITHUB_TOKEN", "GITHUB_TOKEN")
	setString(&cfg.GitHub.Repo, "LOGMEDIC_GITHUB_REPO", "GITHUB_REPO")
	setString(&cfg.GitHub.BaseBranch, "LOGMEDIC_GITHUB_BASE_BRANCH", "GITHUB_TARGET_BRANCH")
	setString(&cfg.GitHub.MCPCommand, "LOGMEDIC_GITHUB_MCP_COMMAND")
	setString(&cfg.GitHub.Timeout, "LOGMEDIC_GITHUB_TIMEOUT")

	setString(&cfg.Pipeline.Mode, "LOGMEDIC_MODE")
	setInt(&cfg.Pipeline.Concurrency, "LOGMEDIC_CONCURRENCY")
	setInt(&cfg.Pipeline.Retries, "LOGMEDIC_RETRIES")
	setString(&cfg.Pipeline.Timeout, "LOGMEDIC_TIMEOUT")
	setString(&cfg.Pipeline.Where, "LOGMEDIC_WHERE")
	if v := os.Getenv("LOGMEDIC_AUTO_APPLY_CONFIG"); v != "" {
		b := strings.EqualFold(v, "true") || v == "1"
		cfg.Pipeline.AutoApplyConfig = &b
	}

	setString(&cfg.Source.Dir, "LOGMEDIC_SOURCE_DIR", "SOURCE_PATH")
	setString(&cfg.Source.RepoRoot, "LOGMEDIC_REPO_ROOT")

	setString(&cfg.Redact.Patterns, "LOGMEDIC_REDACT")

	setString(&cfg.Log.Level, "LOGMEDIC_LOG_LEVEL")
	setString(&cfg.Log.Format, "LOGMEDIC_LOG_FORMAT")
	setString(&cfg.Log.File, "LOGMEDIC_LOG_FILE")
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// providerKeyEnv lists the variables each provider reads its key from
// when none is configured.
var providerKeyEnv = map[string][]string{
	llm.ProviderGemini:    {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	llm.ProviderGroq:      {"GROQ_API_KEY"},
	llm.ProviderOpenAI:    {"OPENAI_API_KEY"},
	llm.ProviderAnthropic: {"ANTHROPIC_API_KEY"},
}

var providerModelEnv = map[string]string{
	llm.ProviderGemini: "GEMINI_MODEL",
	llm.ProviderGroq:   "GROQ_MODEL",
}

// Overrides carries command-line values. Nil fields leave the configured
// value in place.
type Overrides struct {
	Provider        *string
	Model           *string
	Mode            *pipeline.Mode
	Concurrency     *int
	Retries         *int
	Timeout         *time.Duration
	AutoApplyConfig *bool
	Where           *string
	SourceDir       *string
	RepoRoot        *string
	Redact          *string
	LogLevel        *string
}

// Settings is the effective configuration for one invocation. It is built
// once and passed by value.
type Settings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64

	GitHubToken string
	GitHubRepo  string
	BaseBranch  string
	MCPCommand  string
	SCMTimeout  time.Duration

	Mode            pipeline.Mode
	Concurrency     int
	Retries         int
	Timeout         time.Duration
	AutoApplyConfig bool
	Where           string
	MaxMembers      int
	NormalizeRules  []signature.Rule

	SourceDir string
	RepoRoot  string

	Redact     string
	RedactFile string

	LogLevel  string
	LogFormat string
	LogFile   string
}

// Resolve applies defaults and overrides to cfg.
func Resolve(cfg *Config, o Overrides) (Settings, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	s := Settings{
		Provider:    strings.ToLower(strings.TrimSpace(cfg.LLM.Provider)),
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: DefaultTemperature,

		GitHubToken: cfg.GitHub.Token,
		GitHubRepo:  cfg.GitHub.Repo,
		BaseBranch:  cfg.GitHub.BaseBranch,
		MCPCommand:  cfg.GitHub.MCPCommand,

		Concurrency:    cfg.Pipeline.Concurrency,
		Retries:        cfg.Pipeline.Retries,
		Where:          cfg.Pipeline.Where,
		MaxMembers:     cfg.Pipeline.MaxMembers,
		NormalizeRules: cfg.Pipeline.Normalize,

		SourceDir: cfg.Source.Dir,
		RepoRoot:  cfg.Source.RepoRoot,

		Redact:     cfg.Redact.Patterns,
		RedactFile: cfg.Redact.File,

		LogLevel:  cfg.Log.Level,
		LogFormat: cfg.Log.Format,
		LogFile:   cfg.Log.File,
	}
	if cfg.LLM.Temperature != nil {
		s.Temperature = *cfg.LLM.Temperature
	}
	if cfg.Pipeline.AutoApplyConfig != nil {
		s.AutoApplyConfig = *cfg.Pipeline.AutoApplyConfig
	}

	mode, err := pipeline.ParseMode(cfg.Pipeline.Mode)
	if err != nil {
		return Settings{}, err
	}
	s.Mode = mode

	if cfg.Pipeline.Timeout != "" {
		d, err := time.ParseDuration(cfg.Pipeline.Timeout)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid pipeline.timeout %q: %w", cfg.Pipeline.Timeout, err)
		}
		s.Timeout = d
	}
	if cfg.GitHub.Timeout != "" {
		d, err := time.ParseDuration(cfg.GitHub.Timeout)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid github.timeout %q: %w", cfg.GitHub.Timeout, err)
		}
		s.SCMTimeout = d
	}

	if o.Provider != nil {
		s.Provider = strings.ToLower(strings.TrimSpace(*o.Provider))
	}
	if o.Model != nil {
		s.Model = *o.Model
	}
	if o.Mode != nil {
		s.Mode = *o.Mode
	}
	if o.Concurrency != nil {
		s.Concurrency = *o.Concurrency
	}
	if o.Retries != nil {
		s.Retries = *o.Retries
	}
	if o.Timeout != nil {
		s.Timeout = *o.Timeout
	}
	if o.AutoApplyConfig != nil {
		s.AutoApplyConfig = *o.AutoApplyConfig
	}
	if o.Where != nil {
		s.Where = *o.Where
	}
	if o.SourceDir != nil {
		s.SourceDir = *o.SourceDir
	}
	if o.RepoRoot != nil {
		s.RepoRoot = *o.RepoRoot
	}
	if o.Redact != nil {
		s.Redact = *o.Redact
	}
	if o.LogLevel != nil {
		s.LogLevel = *o.LogLevel
	}

	if s.Provider == "" {
		s.Provider = DefaultProvider
	}
	if _, ok := llm.DefaultModels[s.Provider]; !ok {
		return Settings{}, fmt.Errorf("unknown LLM provider %q", s.Provider)
	}
	if s.APIKey == "" {
		s.APIKey = firstEnv(providerKeyEnv[s.Provider]...)
	}
	if s.Model == "" {
		if name, ok := providerModelEnv[s.Provider]; ok {
			s.Model = os.Getenv(name)
		}
	}
	if s.Model == "" {
		s.Model = llm.DefaultModels[s.Provider]
	}
	if s.BaseBranch == "" {
		s.BaseBranch = DefaultBaseBranch
	}
	if s.SourceDir == "" {
		s.SourceDir = DefaultSourceDir
	}
	if s.RepoRoot == "" {
		s.RepoRoot = "."
	}
	if s.Concurrency <= 0 {
		s.Concurrency = DefaultConcurrency
	}
	if s.Retries <= 0 {
		s.Retries = DefaultRetries
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.SCMTimeout <= 0 {
		s.SCMTimeout = DefaultSCMTimeout
	}
	if s.MaxMembers <= 0 {
		s.MaxMembers = DefaultMaxMembers
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.LogFormat == "" {
		s.LogFormat = "console"
	}
	return s, nil
}

// Validate lists the settings a run in mode cannot do without. An empty
// result means the run may start.
func (s Settings) Validate(mode pipeline.Mode) []string {
	var missing []string
	if llm.NeedsKey(s.Provider) && s.APIKey == "" {
		vars := append([]string{"llm.api_key"}, providerKeyEnv[s.Provider]...)
		missing = append(missing, fmt.Sprintf("%s API key (%s)", s.Provider, strings.Join(vars, " or ")))
	}
	if mode == pipeline.ModeInteractive {
		if s.GitHubToken == "" {
			missing = append(missing, "GitHub token (github.token or GITHUB_TOKEN)")
		}
		if s.GitHubRepo == "" {
			missing = append(missing, "GitHub repository (github.repo or GITHUB_REPO)")
		} else if !validRepo(s.GitHubRepo) {
			missing = append(missing, fmt.Sprintf("GitHub repository in owner/name form (got %q)", s.GitHubRepo))
		}
	}
	return missing
}

func validRepo(repo string) bool {
	owner, name, ok := strings.Cut(repo, "/")
	return ok && owner != "" && name != "" && !strings.Contains(name, "/")
}

// LLMConfig returns the provider configuration.
func (s Settings) LLMConfig() llm.Config {
	return llm.Config{Provider: s.Provider, Model: s.Model, APIKey: s.APIKey, BaseURL: s.BaseURL}
}

// RetryPolicy returns the collaborator retry bounds.
func (s Settings) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = s.Retries
	p.CallTimeout = s.Timeout
	return p
}

// LoggingConfig returns the diagnostic logger configuration.
func (s Settings) LoggingConfig() logging.Config {
	return logging.Config{Level: s.LogLevel, Format: s.LogFormat, File: s.LogFile}
}

// Mask hides all but the last four characters of a secret.
func Mask(secret string) string {
	switch {
	case secret == "":
		return "(not set)"
	case len(secret) <= 8:
		return "****"
	default:
		return strings.Repeat("*", 8) + secret[len(secret)-4:]
	}
}

// Entries returns the settings as ordered key/value pairs with secrets
// masked, for display.
func (s Settings) Entries() [][2]string {
	or := func(v, fallback string) string {
		if v == "" {
			return fallback
		}
		return v
	}
	return [][2]string{
		{"llm.provider", s.Provider},
		{"llm.model", s.Model},
		{"llm.api_key", Mask(s.APIKey)},
		{"llm.base_url", or(s.BaseURL, "(provider default)")},
		{"llm.temperature", strconv.FormatFloat(s.Temperature, 'f', -1, 64)},
		{"github.token", Mask(s.GitHubToken)},
		{"github.repo", or(s.GitHubRepo, "(not set)")},
		{"github.base_branch", s.BaseBranch},
		{"github.mcp_command", or(s.MCPCommand, "(default)")},
		{"github.timeout", s.SCMTimeout.String()},
		{"pipeline.mode", string(s.Mode)},
		{"pipeline.concurrency", strconv.Itoa(s.Concurrency)},
		{"pipeline.retries", strconv.Itoa(s.Retries)},
		{"pipeline.timeout", s.Timeout.String()},
		{"pipeline.auto_apply_config", strconv.FormatBool(s.AutoApplyConfig)},
		{"pipeline.where", or(s.Where, "(default)")},
		{"pipeline.max_members", strconv.Itoa(s.MaxMembers)},
		{"source.dir", s.SourceDir},
		{"source.repo_root", s.RepoRoot},
		{"redact.patterns", or(s.Redact, "default")},
		{"log.level", s.LogLevel},
		{"log.format", s.LogFormat},
		{"log.file", or(s.LogFile, "(stderr only)")},
	}
}
