package report

import (
	"github.com/charmbracelet/glamour"
)

// DefaultWidth is the wrap width used when the terminal size is unknown.
const DefaultWidth = 100

// Render formats markdown for a terminal. When styling fails the markdown
// is returned unchanged.
func Render(markdown string, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}

// RenderPlain formats markdown without colors, for non-terminal output.
func RenderPlain(markdown string, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("notty"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}
