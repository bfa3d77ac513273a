// Package patch applies proposed code changes to file content as text and
// renders unified diffs of the result.
package patch

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/ppiankov/logmedic/internal/model"
)

// Method records how a change was applied.
type Method string

const (
	MethodExact     Method = "exact"
	MethodLineRange Method = "line_range"
	MethodComment   Method = "comment"
)

// Apply returns content with ch applied. It replaces the first exact
// occurrence of the original text, else the logged line range, else it
// appends the replacement as a suggested-fix comment.
func Apply(content string, ch model.CodeChange) (string, Method) {
	if orig := strings.TrimSpace(ch.Original); orig != "" && strings.Contains(content, orig) {
		return strings.Replace(content, orig, ch.Replacement, 1), MethodExact
	}

	lines := strings.Split(content, "\n")
	if ch.LineStart > 0 && ch.LineEnd >= ch.LineStart && ch.LineStart <= len(lines) {
		end := min(ch.LineEnd, len(lines))
		out := make([]string, 0, len(lines))
		out = append(out, lines[:ch.LineStart-1]...)
		out = append(out, strings.Split(ch.Replacement, "\n")...)
		out = append(out, lines[end:]...)
		return strings.Join(out, "\n"), MethodLineRange
	}

	return content + "\n\n/* SUGGESTED FIX:\n" + ch.Replacement + "\n*/\n", MethodComment
}

// ApplyAll applies the changes in order and returns the methods used.
func ApplyAll(content string, changes []model.CodeChange) (string, []Method) {
	methods := make([]Method, 0, len(changes))
	for _, ch := range changes {
		var m Method
		content, m = Apply(content, ch)
		methods = append(methods, m)
	}
	return content, methods
}

// Diff renders a unified diff between before and after for path. Equal
// inputs produce an empty string.
func Diff(path, before, after string) string {
	if before == after {
		return ""
	}
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return out
}

// FragmentDiff renders a diff of each change's original against its
// replacement, for use when the file itself is not available.
func FragmentDiff(changes []model.CodeChange) string {
	var b strings.Builder
	for _, ch := range changes {
		before := ch.Original
		if before != "" && !strings.HasSuffix(before, "\n") {
			before += "\n"
		}
		after := ch.Replacement
		if after != "" && !strings.HasSuffix(after, "\n") {
			after += "\n"
		}
		b.WriteString(Diff(ch.File, before, after))
	}
	return b.String()
}
