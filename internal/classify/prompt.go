package classify

import (
	"fmt"
	"strings"

	"github.com/ppiankov/logmedic/internal/logtypes"
	"github.com/ppiankov/logmedic/internal/model"
	"github.com/ppiankov/logmedic/internal/sourcectx"
)

const systemPrompt = `You are an experienced C++ engineer reading error logs from a payment switch.
For each group of related log lines decide:

1. error_kind, exactly one of:
   code_bug          logic error in the source
   string_handling   string operation failed (substr, empty string access)
   null_pointer      missing null or empty check
   missing_config    configuration parameter absent or left at a zero default
   missing_data      database or cache record not found
   database_error    database operation failed (constraint, connection)
   cache_error       cache operation failed
   external_service  external service or library failed
   unknown           the cause cannot be determined

2. category: where the fix belongs.
   code    the fix edits C++ sources: new checks, logging, changed control flow
   config  the fix only adds or changes a configuration key
   data    the fix only inserts or updates a database row or cache entry

Heuristics:
- "max length = 0" or "maximum length [0]" means the limit was never configured: missing_config.
- "value not found" naming a key is missing_config or missing_data, depending on where the key lives.
- A sane value failing against a zero or empty threshold is a config problem.
- A nonsensical value (negative length) failing validation is a code bug.
- substr on an empty string is code when the caller should have checked, data when upstream never filled the field.
- An unmatched condition with no obvious cause is code: more logging is the fix.

Reference files, functions and line numbers from the log. Answer with JSON only.`

const responseShape = `Respond with a single JSON object:
{
  "error_kind": "<one of the kinds above>",
  "category": "code | config | data",
  "is_code_issue": true,
  "root_cause": "what causes the error",
  "suggested_approach": "how to fix it",
  "affected_function": "function to change, if code",
  "confidence": 0.0
}`

func (c *Classifier) userPrompt(in Input) string {
	g := in.Group
	var b strings.Builder

	b.WriteString("## Error group\n")
	fmt.Fprintf(&b, "file: %s\nfunction: %s\nsignature: %s\n", orNone(g.Key.File), orNone(g.Key.Function), c.redact(g.Key.Signature))
	fmt.Fprintf(&b, "occurrences: %d\nhighest severity: %s\n\n", len(g.Members), g.Severity())

	reps := g.Representatives(c.maxMembers)
	fmt.Fprintf(&b, "## Representative entries (%d of %d)\n```\n", len(reps), len(g.Members))
	for _, e := range reps {
		c.writeEntry(&b, e)
	}
	b.WriteString("```\n")

	if n := min(len(in.Context), c.maxContext); n > 0 {
		b.WriteString("\n## Surrounding entries on the same thread\n```\n")
		for _, e := range in.Context[:n] {
			c.writeEntry(&b, e)
		}
		b.WriteString("```\n")
	}

	if s, ok := c.snippet(g); ok {
		fmt.Fprintf(&b, "\n## Source: %s (lines %d-%d)\n```cpp\n%s```\n", s.Path, s.Start, s.End, s.Text)
	}

	b.WriteString("\n")
	b.WriteString(responseShape)
	return b.String()
}

func (c *Classifier) writeEntry(b *strings.Builder, e logtypes.LogEntry) {
	b.WriteString(c.redact(e.Raw))
	b.WriteByte('\n')
	for _, line := range e.Context {
		b.WriteString(c.redact(line))
		b.WriteByte('\n')
	}
}

func (c *Classifier) snippet(g model.ErrorGroup) (sourcectx.Snippet, bool) {
	if c.source == nil || g.Key.File == "" {
		return sourcectx.Snippet{}, false
	}
	return c.source.Snippet(g.Key.File, g.First().Line)
}

func (c *Classifier) redact(s string) string {
	if c.redactor == nil {
		return s
	}
	return c.redactor.Redact(s)
}

func orNone(s string) string {
	if s == "" {
		return "(unknown)"
	}
	return s
}
