package propose

import (
	"fmt"
	"strings"

	"github.com/ppiankov/logmedic/internal/model"
)

const systemPrompt = `You are a senior C++ engineer on a payment switch team. Given the analysis of
an error you write the smallest safe fix:
- code problems get exact source edits with line numbers,
- configuration problems get the keys and values to set,
- data problems get SQL or cache commands that insert or repair the missing records.
Keep changes minimal, match the surrounding style and explain each change.
Answer with JSON only.`

const patchShape = `Respond with a single JSON object:
{
  "title": "short title, at most 60 characters",
  "description": "what the change does and why it fixes the error",
  "risk_level": "low | medium | high",
  "confidence": 0.0,
  "code_changes": [
    {
      "file_path": "%s",
      "line_start": 0,
      "line_end": 0,
      "original_code": "exact text to replace, copied from the source",
      "new_code": "replacement text",
      "explanation": "why this change fixes the error"
    }
  ]
}`

const configShape = `Respond with a single JSON object:
{
  "title": "short title, at most 60 characters",
  "description": "what has to change and why",
  "risk_level": "low | medium | high",
  "confidence": 0.0,
  "config_target": "file or section the keys belong to",
  "config_changes": {"key": "value"},
  "manual_instructions": "how to apply and verify the change"
}`

const dataShape = `Respond with a single JSON object:
{
  "title": "short title, at most 60 characters",
  "description": "which records are missing or wrong",
  "risk_level": "low | medium | high",
  "confidence": 0.0,
  "data_store": "database or cache the commands run against",
  "data_operations": ["complete SQL or cache command"],
  "manual_instructions": "how to apply and verify the change"
}`

func (p *Proposer) userPrompt(rep model.ErrorReport, g model.ErrorGroup) string {
	var b strings.Builder
	b.WriteString("## Error analysis\n")
	fmt.Fprintf(&b, "kind: %s\ncategory: %s\n", rep.Kind, rep.Category)
	fmt.Fprintf(&b, "root cause: %s\n", orUnknown(p.redactor.Redact(rep.Explanation)))
	fmt.Fprintf(&b, "suggested approach: %s\n", orUnknown(p.redactor.Redact(rep.SuggestedApproach)))
	fmt.Fprintf(&b, "file: %s\nfunction: %s\n", orUnknown(g.Key.File), orUnknown(g.Key.Function))

	if len(g.Members) > 0 {
		b.WriteString("\n## Example entry\n```\n")
		b.WriteString(p.redactor.Redact(g.First().Text()))
		b.WriteString("\n```\n")
	}

	switch model.KindForCategory(rep.Category) {
	case model.KindPatch:
		path := g.Key.File
		if s, ok := p.snippet(g); ok {
			path = s.Path
			fmt.Fprintf(&b, "\n## Source file: %s (lines %d-%d)\n```cpp\n%s```\n", s.Path, s.Start, s.End, s.Text)
		} else {
			b.WriteString("\nSource code is not available; base line numbers on the log.\n")
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, patchShape, path)
	case model.KindConfigChange:
		b.WriteString("\n")
		b.WriteString(configShape)
	case model.KindDataOperation:
		b.WriteString("\n")
		b.WriteString(dataShape)
	}
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
