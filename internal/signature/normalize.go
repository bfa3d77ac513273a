// Package signature derives stable error signatures from log messages.
package signature

import (
	"fmt"
	"regexp"
	"strings"
)

// Normalizer maps a raw message to its signature. Implementations must be
// deterministic and idempotent.
type Normalizer func(string) string

// normalizers replace variable tokens in log messages, in order.
var normalizers = []struct {
	re   *regexp.Regexp
	repl string
}{
	// UUIDs: 8-4-4-4-12 hex
	{regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`), "<UUID>"},
	// ISO timestamps: 2024-01-15T10:32:01, 2024-01-15 10:32:01.123+02:00
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?`), "<TS>"},
	// clock times: 10:32:01.123
	{regexp.MustCompile(`\b\d{2}:\d{2}:\d{2}(?:\.\d+)?\b`), "<TIME>"},
	// IPv4 addresses
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "<IP>"},
	// Hex strings: 0x1a2b3c
	{regexp.MustCompile(`0x[0-9a-fA-F]+`), "<HEX>"},
	// quoted identifiers: 'MERCHANT_42', key="routing.max_len". A quote
	// opens only at a token boundary and spans no whitespace, so
	// contractions such as can't and won't are left alone.
	{regexp.MustCompile(`(^|[\s=:(,])'[^'\s]*'`), "${1}'<Q>'"},
	{regexp.MustCompile(`(^|[\s=:(,])"[^"\s]*"`), `${1}"<Q>"`},
	// bracketed values: [MERCH_A]
	{regexp.MustCompile(`\[[^\]\n]*\]`), "[<Q>]"},
	// Durations: 230ms, 1.5s, 30m, 2h
	{regexp.MustCompile(`\b\d+\.?\d*(?:ms|us|µs|ns|s|m|h)\b`), "<DUR>"},
}

// hexToken matches long hex-looking tokens such as hashes and card tokens.
var hexToken = regexp.MustCompile(`\b[0-9a-fA-F]{8,}\b`)

var (
	digits     = regexp.MustCompile(`\d+`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Normalize is the default Normalizer. It replaces UUIDs, timestamps, IPs,
// hex values, quoted identifiers, durations and every remaining digit run
// with placeholders, then collapses whitespace.
func Normalize(msg string) string {
	for _, n := range normalizers {
		msg = n.re.ReplaceAllString(msg, n.repl)
	}
	msg = hexToken.ReplaceAllStringFunc(msg, func(tok string) string {
		if strings.ContainsAny(tok, "0123456789") && strings.ContainsAny(tok, "abcdefABCDEF") {
			return "<HEX>"
		}
		return tok
	})
	msg = digits.ReplaceAllString(msg, "<N>")
	return strings.TrimSpace(whitespace.ReplaceAllString(msg, " "))
}

// Default is the normalizer used when none is configured.
var Default Normalizer = Normalize

// Chain applies normalizers left to right.
func Chain(ns ...Normalizer) Normalizer {
	return func(s string) string {
		for _, n := range ns {
			s = n(s)
		}
		return s
	}
}

// Rule is a user-supplied replacement applied before the default rules.
type Rule struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// WithRules returns a normalizer that applies rules, then base.
func WithRules(base Normalizer, rules []Rule) (Normalizer, error) {
	if len(rules) == 0 {
		return base, nil
	}
	steps := make([]Normalizer, 0, len(rules)+1)
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("normalize rule %q: %w", r.Pattern, err)
		}
		repl := r.Replacement
		steps = append(steps, func(s string) string { return re.ReplaceAllString(s, repl) })
	}
	return Chain(append(steps, base)...), nil
}

// errorKeywords are checked case-insensitively against log messages.
var errorKeywords = []string{
	"error",
	"panic",
	"fatal",
	"exception",
	"fail",
	"refused",
	"timeout",
	"null pointer",
	"segfault",
	"deadlock",
	"not found",
	"deadline exceeded",
}

// LooksLikeError reports whether msg contains common error-indicating
// keywords. Used for lines whose level could not be read.
func LooksLikeError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, kw := range errorKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
