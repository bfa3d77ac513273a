package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var fence = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ErrNoJSON is returned when a response contains no JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// ExtractJSON pulls the first JSON object out of a model response,
// tolerating markdown code fences and surrounding prose.
func ExtractJSON(text string) ([]byte, error) {
	candidates := []string{strings.TrimSpace(text)}
	for _, m := range fence.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	for _, c := range candidates {
		if obj := firstObject(c); obj != "" && json.Valid([]byte(obj)) {
			return []byte(obj), nil
		}
	}
	return nil, ErrNoJSON
}

// Decode extracts the first JSON object from text into v.
func Decode(text string, v any) error {
	data, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// firstObject returns the first balanced {...} span that is valid JSON.
func firstObject(s string) string {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := closingBrace(s, start); end > 0 {
			if obj := s[start : end+1]; json.Valid([]byte(obj)) {
				return obj
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			return ""
		}
		start += next + 1
	}
	return ""
}

// closingBrace returns the index of the brace closing s[start], skipping
// braces inside strings, or -1.
func closingBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
