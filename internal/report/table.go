package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/logmedic/internal/pipeline"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	sepStyle    = lipgloss.NewStyle().Faint(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))
	skipStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
)

// maxCell truncates wide cells so the table fits a terminal.
const maxCell = 48

var tableHeader = []string{"#", "LOCATION", "SIGNATURE", "COUNT", "SEVERITY", "KIND", "CONF", "STATE"}

// Table renders one line per group: where it happened, what it is and
// how far it got.
func Table(res *pipeline.Result) string {
	rows := make([][]string, 0, len(res.Groups))
	for i, g := range res.Groups {
		loc := "*"
		if !g.Group.Key.CatchAll() {
			loc = g.Group.Key.File + " " + g.Group.Key.Function
		}
		kind, conf := "-", "-"
		if g.Report != nil {
			kind = string(g.Report.Kind)
			conf = fmt.Sprintf("%.2f", g.Report.Confidence)
		}
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			truncate(loc, maxCell),
			truncate(g.Group.Key.Signature, maxCell),
			fmt.Sprint(len(g.Group.Members)),
			string(g.Group.Severity()),
			kind,
			conf,
			string(g.State),
		})
	}

	widths := make([]int, len(tableHeader))
	for i, h := range tableHeader {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range rows {
		for i, c := range r {
			widths[i] = max(widths[i], lipgloss.Width(c))
		}
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(formatRow(tableHeader, widths)))
	b.WriteByte('\n')
	total := 2 * (len(widths) - 1)
	for _, w := range widths {
		total += w
	}
	b.WriteString(sepStyle.Render(strings.Repeat("─", total)))
	b.WriteByte('\n')
	for _, r := range rows {
		line := formatRow(r, widths)
		b.WriteString(stateStyle(pipeline.State(r[len(r)-1])).Render(line))
		b.WriteByte('\n')
	}
	return b.String()
}

func formatRow(cells []string, widths []int) string {
	var b strings.Builder
	for i, c := range cells {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(c)
		if i < len(cells)-1 {
			b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(c)))
		}
	}
	return b.String()
}

func stateStyle(s pipeline.State) lipgloss.Style {
	switch s {
	case pipeline.StateFailed:
		return failStyle
	case pipeline.StateSubmitted, pipeline.StateClassified, pipeline.StateProposed:
		return okStyle
	case pipeline.StateSkipped:
		return skipStyle
	}
	return lipgloss.NewStyle()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
