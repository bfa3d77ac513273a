// Package redact masks cardholder data and other secrets in log text
// before it leaves the process.
package redact

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/logmedic/internal/luhn"
)

// Pattern is a named secret pattern with its replacement marker.
type Pattern struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	re          *regexp.Regexp
	validate    func(string) bool
}

// Redactor applies its patterns in order. It is safe for concurrent use
// once configured.
type Redactor struct {
	patterns []Pattern
	onRedact func(pattern string)
}

var builtinPatterns = []Pattern{
	{
		// track 2 equivalent data: ;PAN=YYMM...?
		Name:        "track2",
		Pattern:     `;?\d{13,19}=\d{4}\d*\??`,
		Replacement: "[REDACTED:track2]",
	},
	{
		Name:        "pan",
		Pattern:     `\b(\d[ -]*?){13,19}\b`,
		Replacement: "[REDACTED:pan]",
	},
	{
		Name:        "cvv",
		Pattern:     `(?i)\b(?:cvv2?|cvc2?|cid)\s*[=:]\s*\d{3,4}\b`,
		Replacement: "[REDACTED:cvv]",
	},
	{
		Name:        "email",
		Pattern:     `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`,
		Replacement: "[REDACTED:email]",
	},
	{
		Name:        "jwt",
		Pattern:     `eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`,
		Replacement: "[REDACTED:jwt]",
	},
	{
		Name:        "bearer",
		Pattern:     `(?i)(?:Bearer\s+|Authorization:\s*Bearer\s+)[A-Za-z0-9_\-.]+`,
		Replacement: "[REDACTED:bearer]",
	},
	{
		Name:        "ip_v4",
		Pattern:     `\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]\d|\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]\d|\d)\b`,
		Replacement: "[REDACTED:ip]",
	},
	{
		Name:        "phone",
		Pattern:     `(?:\+\d{1,3}[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`,
		Replacement: "[REDACTED:phone]",
	},
}

// DefaultNames are the patterns enabled when none are configured.
// Addresses and phone numbers are left in since they rarely identify a
// cardholder in switch logs and often explain the failure.
var DefaultNames = []string{"track2", "pan", "cvv", "email", "jwt", "bearer"}

// New creates a Redactor with the named built-in patterns enabled.
// If names is empty, DefaultNames are used.
func New(names []string) (*Redactor, error) {
	if len(names) == 0 {
		names = DefaultNames
	}
	byName := make(map[string]Pattern, len(builtinPatterns))
	for _, p := range builtinPatterns {
		byName[p.Name] = p
	}
	selected := make([]Pattern, 0, len(names))
	for _, n := range names {
		p, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown redaction pattern: %s", n)
		}
		selected = append(selected, p)
	}
	return compile(selected)
}

// Names lists every built-in pattern name.
func Names() []string {
	names := make([]string, len(builtinPatterns))
	for i, p := range builtinPatterns {
		names[i] = p.Name
	}
	return names
}

// LoadCustomPatterns appends patterns from a YAML list file.
func (r *Redactor) LoadCustomPatterns(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read patterns file: %w", err)
	}
	var customs []Pattern
	if err := yaml.Unmarshal(data, &customs); err != nil {
		return fmt.Errorf("parse patterns file: %w", err)
	}
	compiled, err := compile(customs)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, compiled.patterns...)
	return nil
}

// SetOnRedact sets a callback invoked for each redaction hit.
func (r *Redactor) SetOnRedact(fn func(pattern string)) {
	r.onRedact = fn
}

// Redact replaces every match with its marker. A nil Redactor returns
// msg unchanged.
func (r *Redactor) Redact(msg string) string {
	if r == nil {
		return msg
	}
	for _, p := range r.patterns {
		name := p.Name
		msg = p.re.ReplaceAllStringFunc(msg, func(match string) string {
			if p.validate != nil && !p.validate(match) {
				return match
			}
			if r.onRedact != nil {
				r.onRedact(name)
			}
			return p.Replacement
		})
	}
	return msg
}

// PatternNames returns the names of active patterns.
func (r *Redactor) PatternNames() []string {
	names := make([]string, len(r.patterns))
	for i, p := range r.patterns {
		names[i] = p.Name
	}
	return names
}

// ParseFlag parses a --redact value: "" or "default" selects DefaultNames,
// "all" every built-in, "off" disables, otherwise a comma list.
func ParseFlag(val string) (enabled bool, names []string) {
	switch strings.TrimSpace(val) {
	case "", "default", "true":
		return true, nil
	case "off", "false", "none":
		return false, nil
	case "all":
		return true, Names()
	}
	parts := strings.Split(val, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return true, parts
}

func compile(patterns []Pattern) (*Redactor, error) {
	compiled := make([]Pattern, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %s: %w", p.Name, err)
		}
		compiled[i] = p
		compiled[i].re = re
		if p.Name == "pan" {
			compiled[i].validate = luhnValid
		}
		if compiled[i].Replacement == "" {
			compiled[i].Replacement = "[REDACTED:" + p.Name + "]"
		}
	}
	return &Redactor{patterns: compiled}, nil
}

// luhnValid reports whether the digits in s (ignoring spaces and dashes)
// form a 13-19 digit card number with a valid check digit.
func luhnValid(s string) bool {
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits = append(digits, c)
		case c == ' ' || c == '-':
		default:
			return false
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	return luhn.Validate(string(digits))
}
