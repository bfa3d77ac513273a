package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/logmedic/internal/config"
	"github.com/ppiankov/logmedic/internal/llm"
)

var (
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	doneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))
)

type field struct {
	label    string
	help     string
	secret   bool
	validate func(string) error
	get      func(*config.Config) string
	set      func(*config.Config, string)
}

func providerNames() []string {
	return []string{llm.ProviderGroq, llm.ProviderGemini, llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderOllama}
}

var wizardFields = []field{
	{
		label: "LLM provider",
		help:  strings.Join(providerNames(), ", "),
		validate: func(v string) error {
			if _, ok := llm.DefaultModels[strings.ToLower(v)]; !ok && v != "" {
				return fmt.Errorf("unknown provider %q", v)
			}
			return nil
		},
		get: func(c *config.Config) string { return c.LLM.Provider },
		set: func(c *config.Config, v string) { c.LLM.Provider = strings.ToLower(v) },
	},
	{
		label:  "API key",
		help:   "leave empty to read it from the provider's environment variable",
		secret: true,
		get:    func(c *config.Config) string { return c.LLM.APIKey },
		set:    func(c *config.Config, v string) { c.LLM.APIKey = v },
	},
	{
		label: "Model",
		help:  "leave empty for the provider default",
		get:   func(c *config.Config) string { return c.LLM.Model },
		set:   func(c *config.Config, v string) { c.LLM.Model = v },
	},
	{
		label:  "GitHub token",
		help:   "needed to open pull requests",
		secret: true,
		get:    func(c *config.Config) string { return c.GitHub.Token },
		set:    func(c *config.Config, v string) { c.GitHub.Token = v },
	},
	{
		label: "GitHub repository",
		help:  "owner/name",
		validate: func(v string) error {
			owner, name, ok := strings.Cut(v, "/")
			if v != "" && (!ok || owner == "" || name == "" || strings.Contains(name, "/")) {
				return fmt.Errorf("want owner/name, got %q", v)
			}
			return nil
		},
		get: func(c *config.Config) string { return c.GitHub.Repo },
		set: func(c *config.Config, v string) { c.GitHub.Repo = v },
	},
	{
		label: "Base branch",
		help:  "pull request target, default " + config.DefaultBaseBranch,
		get:   func(c *config.Config) string { return c.GitHub.BaseBranch },
		set:   func(c *config.Config, v string) { c.GitHub.BaseBranch = v },
	},
	{
		label: "Source directory",
		help:  "switch source tree used for prompt context, default " + config.DefaultSourceDir,
		get:   func(c *config.Config) string { return c.Source.Dir },
		set:   func(c *config.Config, v string) { c.Source.Dir = v },
	},
}

// WizardModel collects the persistent settings one field at a time.
type WizardModel struct {
	cfg      config.Config
	inputs   []textinput.Model
	focus    int
	err      error
	done     bool
	canceled bool
}

// NewWizardModel starts from existing values in cfg, if any.
func NewWizardModel(cfg *config.Config) WizardModel {
	m := WizardModel{}
	if cfg != nil {
		m.cfg = *cfg
	}
	m.inputs = make([]textinput.Model, len(wizardFields))
	for i, f := range wizardFields {
		ti := textinput.New()
		ti.Prompt = "│ "
		ti.CharLimit = 256
		ti.Width = 60
		ti.Placeholder = f.help
		ti.SetValue(f.get(&m.cfg))
		if f.secret {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '•'
		}
		if i == 0 {
			ti.ShowSuggestions = true
			ti.SetSuggestions(providerNames())
		}
		m.inputs[i] = ti
	}
	m.inputs[0].Focus()
	return m
}

// Init implements tea.Model.
func (m WizardModel) Init() tea.Cmd { return textinput.Blink }

// Update moves between fields and validates on enter.
func (m WizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.canceled = true
			return m, tea.Quit
		case "shift+tab", "up":
			if m.focus > 0 {
				return m.move(-1), nil
			}
			return m, nil
		case "enter", "down":
			f := wizardFields[m.focus]
			v := strings.TrimSpace(m.inputs[m.focus].Value())
			if f.validate != nil {
				if err := f.validate(v); err != nil {
					m.err = err
					return m, nil
				}
			}
			m.err = nil
			f.set(&m.cfg, v)
			if m.focus == len(m.inputs)-1 {
				if key.String() != "enter" {
					return m, nil
				}
				m.done = true
				return m, tea.Quit
			}
			return m.move(1), nil
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m WizardModel) move(delta int) WizardModel {
	m.inputs[m.focus].Blur()
	m.focus += delta
	m.inputs[m.focus].Focus()
	return m
}

// View renders every field, the focused one with its help text.
func (m WizardModel) View() string {
	if m.done || m.canceled {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("logmedic setup"))
	b.WriteString(labelStyle.Render("  enter next · up back · tab completes · esc cancel"))
	b.WriteString("\n\n")
	for i, f := range wizardFields {
		marker := "  "
		if i == m.focus {
			marker = "> "
		} else if i < m.focus {
			marker = doneStyle.Render("✓ ")
		}
		b.WriteString(marker + titleStyle.Render(f.label) + "\n")
		b.WriteString(m.inputs[i].View() + "\n")
		if i == m.focus {
			b.WriteString(labelStyle.Render("  "+f.help) + "\n")
		}
	}
	if m.err != nil {
		b.WriteString("\n" + errStyle.Render(m.err.Error()) + "\n")
	}
	return b.String()
}

// Config returns the collected settings.
func (m WizardModel) Config() *config.Config {
	c := m.cfg
	return &c
}

// Done reports whether every field was confirmed.
func (m WizardModel) Done() bool { return m.done }

// RunWizard runs the wizard on a terminal and returns the collected
// config, or ErrAborted if the operator cancelled.
func RunWizard(ctx context.Context, in io.Reader, out io.Writer, existing *config.Config) (*config.Config, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if in != nil {
		opts = append(opts, tea.WithInput(in))
	}
	if out != nil {
		opts = append(opts, tea.WithOutput(out))
	}
	final, err := tea.NewProgram(NewWizardModel(existing), opts...).Run()
	if err != nil {
		return nil, err
	}
	m, ok := final.(WizardModel)
	if !ok || !m.Done() {
		return nil, ErrAborted
	}
	return m.Config(), nil
}
