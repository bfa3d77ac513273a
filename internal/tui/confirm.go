// Package tui holds the interactive terminal screens: the pull request
// confirmation and the setup wizard.
package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/logmedic/internal/pipeline"
	"github.com/ppiankov/logmedic/internal/report"
)

// ErrAborted is returned when the operator quits instead of answering.
var ErrAborted = errors.New("aborted by operator")

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	labelStyle  = lipgloss.NewStyle().Faint(true)
	sepStyle    = lipgloss.NewStyle().Faint(true)
	promptBadge = lipgloss.NewStyle().Background(lipgloss.Color("33")).Foreground(lipgloss.Color("15")).Padding(0, 1)
	yesBadge    = lipgloss.NewStyle().Background(lipgloss.Color("34")).Foreground(lipgloss.Color("15")).Padding(0, 1)
	noBadge     = lipgloss.NewStyle().Background(lipgloss.Color("208")).Foreground(lipgloss.Color("0")).Padding(0, 1)
)

// PromptMarkdown describes what the operator is asked to approve.
func PromptMarkdown(p pipeline.Prompt) string {
	var b strings.Builder
	key := p.Group.Key
	loc := key.Signature
	if !key.CatchAll() {
		loc = key.File + " " + key.Function
	}
	fmt.Fprintf(&b, "## Group %d of %d: %s\n\n", p.Index, p.Total, loc)
	fmt.Fprintf(&b, "- Signature: `%s`\n", key.Signature)
	fmt.Fprintf(&b, "- Occurrences: %d, highest severity %s\n", len(p.Group.Members), p.Group.Severity())
	if p.Report != nil {
		fmt.Fprintf(&b, "- Kind: %s (confidence %.2f)\n", p.Report.Kind, p.Report.Confidence)
		if p.Report.Explanation != "" {
			fmt.Fprintf(&b, "\n%s\n", p.Report.Explanation)
		}
	}
	b.WriteString("\n")
	report.WriteProposal(&b, p.Proposal)
	return b.String()
}

// ConfirmModel shows one proposal and waits for a yes or no.
type ConfirmModel struct {
	prompt   pipeline.Prompt
	body     string
	vp       viewport.Model
	ready    bool
	answered bool
	approved bool
	aborted  bool
}

// NewConfirmModel renders p for a terminal of the given width.
func NewConfirmModel(p pipeline.Prompt, width int) ConfirmModel {
	if width <= 0 {
		width = report.DefaultWidth
	}
	vp := viewport.New(width, 20)
	body := report.Render(PromptMarkdown(p), width-2)
	vp.SetContent(body)
	return ConfirmModel{prompt: p, body: body, vp: vp}
}

// Init implements tea.Model.
func (m ConfirmModel) Init() tea.Cmd { return nil }

// Update handles keys and resizes.
func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.vp.Width = msg.Width
		m.vp.Height = max(msg.Height-4, 3)
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "y", "Y":
			m.answered, m.approved = true, true
			return m, tea.Quit
		case "n", "N", "esc":
			m.answered = true
			return m, tea.Quit
		case "q", "ctrl+c":
			m.aborted = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

// View renders the proposal and the question.
func (m ConfirmModel) View() string {
	if m.answered || m.aborted {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("logmedic | proposal %d/%d", m.prompt.Index, m.prompt.Total)))
	b.WriteByte('\n')
	b.WriteString(sepStyle.Render(strings.Repeat("─", max(m.vp.Width, 10))))
	b.WriteByte('\n')
	b.WriteString(m.vp.View())
	b.WriteByte('\n')
	b.WriteString(promptBadge.Render("Create pull request?"))
	b.WriteByte(' ')
	b.WriteString(yesBadge.Render("y"))
	b.WriteByte(' ')
	b.WriteString(noBadge.Render("n"))
	b.WriteString(labelStyle.Render("  ↑/↓ scroll  q quit"))
	return b.String()
}

// Approved reports the answer.
func (m ConfirmModel) Approved() bool { return m.approved }

// Aborted reports whether the operator quit.
func (m ConfirmModel) Aborted() bool { return m.aborted }

// Confirmer asks on a terminal with a full-screen prompt.
type Confirmer struct {
	In    io.Reader
	Out   io.Writer
	Width int
	// OnAbort is called when the operator quits, typically cancelling the
	// run so remaining groups are skipped.
	OnAbort func()

	run func(ctx context.Context, m tea.Model) (tea.Model, error)
}

// Confirm implements pipeline.Confirmer.
func (c *Confirmer) Confirm(ctx context.Context, p pipeline.Prompt) (bool, error) {
	run := c.run
	if run == nil {
		run = c.runProgram
	}
	final, err := run(ctx, NewConfirmModel(p, c.Width))
	if err != nil {
		return false, err
	}
	m, ok := final.(ConfirmModel)
	if !ok {
		return false, fmt.Errorf("unexpected model %T", final)
	}
	if m.Aborted() {
		if c.OnAbort != nil {
			c.OnAbort()
		}
		return false, ErrAborted
	}
	return m.Approved(), nil
}

func (c *Confirmer) runProgram(ctx context.Context, m tea.Model) (tea.Model, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if c.In != nil {
		opts = append(opts, tea.WithInput(c.In))
	}
	if c.Out != nil {
		opts = append(opts, tea.WithOutput(c.Out))
	}
	return tea.NewProgram(m, opts...).Run()
}

// LineConfirmer asks with a plain y/N question, for terminals without
// full-screen support.
type LineConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLineConfirmer reads answers from in and writes prompts to out.
func NewLineConfirmer(in io.Reader, out io.Writer) *LineConfirmer {
	return &LineConfirmer{in: bufio.NewReader(in), out: out}
}

// Confirm implements pipeline.Confirmer. Anything but y or yes declines.
func (c *LineConfirmer) Confirm(ctx context.Context, p pipeline.Prompt) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := fmt.Fprint(c.out, report.RenderPlain(PromptMarkdown(p), report.DefaultWidth)); err != nil {
		return false, err
	}
	if _, err := fmt.Fprint(c.out, "Create pull request? [y/N]: "); err != nil {
		return false, err
	}
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return false, ErrAborted
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
