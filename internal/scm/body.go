package scm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/logmedic/internal/model"
)

// PullRequestBody renders the markdown description of a patch PR.
func PullRequestBody(req Request) string {
	p := req.Proposal
	var b strings.Builder

	b.WriteString("## Summary\n\n")
	b.WriteString(p.Description)
	b.WriteString("\n\n")

	if r := req.Report; r != nil {
		b.WriteString("## Error analysis\n\n")
		fmt.Fprintf(&b, "- **Kind:** `%s`\n", r.Kind)
		fmt.Fprintf(&b, "- **Severity:** %s\n", r.Severity)
		fmt.Fprintf(&b, "- **Occurrences:** %d\n", len(req.Group.Members))
		if r.Explanation != "" {
			fmt.Fprintf(&b, "- **Root cause:** %s\n", r.Explanation)
		}
		b.WriteString("\n")
	}

	if pt, ok := p.Patch(); ok {
		b.WriteString("## Changes\n\n")
		fmt.Fprintf(&b, "Function `%s` in `%s`.\n\n", pt.Function, pt.File)
		for _, c := range pt.Changes {
			if c.Explanation == "" {
				continue
			}
			if c.LineStart > 0 {
				fmt.Fprintf(&b, "- `%s` lines %d-%d: %s\n", c.File, c.LineStart, c.LineEnd, c.Explanation)
			} else {
				fmt.Fprintf(&b, "- `%s`: %s\n", c.File, c.Explanation)
			}
		}
		if pt.Diff != "" {
			b.WriteString("\n```diff\n")
			b.WriteString(pt.Diff)
			if !strings.HasSuffix(pt.Diff, "\n") {
				b.WriteString("\n")
			}
			b.WriteString("```\n")
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Risk: **%s** · Confidence: **%.0f%%**\n\n", orDefault(p.Risk, "medium"), p.Confidence*100)
	if len(req.Group.Members) > 0 {
		b.WriteString("<details><summary>Example log entry</summary>\n\n```\n")
		b.WriteString(req.Group.First().Text())
		b.WriteString("\n```\n</details>\n\n")
	}
	fmt.Fprintf(&b, "_Generated by logmedic run %s. Review before merging._\n", req.RunID)
	return b.String()
}

func commitMessage(p model.FixProposal) string {
	return "fix: " + p.Title
}

func orDefault(s, d string) string {
	if s == "" {
		return d
	}
	return s
}
