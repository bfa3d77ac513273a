package redact

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestPANRedaction(t *testing.T) {
	r, err := New([]string{"pan"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"visa", "auth for 4111111111111111 declined", "auth for [REDACTED:pan] declined"},
		{"mastercard", "pan=5500000000000004", "pan=[REDACTED:pan]"},
		{"amex", "amex 378282246310005", "amex [REDACTED:pan]"},
		{"with spaces", "card 4111 1111 1111 1111 end", "card [REDACTED:pan] end"},
		{"with dashes", "card 4111-1111-1111-1111 end", "card [REDACTED:pan] end"},
		{"stan not luhn", "stan 1234567890123456 failed", "stan 1234567890123456 failed"},
		{"too short", "txn 12345678", "txn 12345678"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Redact(tt.input); got != tt.expect {
				t.Errorf("got %q, want %q", got, tt.expect)
			}
		})
	}
}

func TestTrack2AndCVV(t *testing.T) {
	r, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		input  string
		expect string
	}{
		{"track2 ;4111111111111111=25121010000012300000? bad", "track2 [REDACTED:track2] bad"},
		{"verify CVV2=123 failed", "verify [REDACTED:cvv] failed"},
		{"cvc: 9876 mismatch", "[REDACTED:cvv] mismatch"},
	}
	for _, tt := range tests {
		if got := r.Redact(tt.input); got != tt.expect {
			t.Errorf("Redact(%q) = %q, want %q", tt.input, got, tt.expect)
		}
	}
}

func TestDefaultsKeepIPs(t *testing.T) {
	r, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	in := "connect to 10.1.2.3 refused for user ops@bank.example"
	want := "connect to 10.1.2.3 refused for user [REDACTED:email]"
	if got := r.Redact(in); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestUnknownPattern(t *testing.T) {
	if _, err := New([]string{"nope"}); err == nil {
		t.Fatal("expected error for unknown pattern")
	}
}

func TestOnRedactCallback(t *testing.T) {
	r, err := New([]string{"pan", "email"})
	if err != nil {
		t.Fatal(err)
	}
	var mu sync.Mutex
	hits := map[string]int{}
	r.SetOnRedact(func(name string) {
		mu.Lock()
		hits[name]++
		mu.Unlock()
	})
	r.Redact("4111111111111111 and 5500000000000004 from a@b.io, not 1234567890123456")
	if hits["pan"] != 2 || hits["email"] != 1 {
		t.Errorf("hits = %v", hits)
	}
}

func TestCustomPatterns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	data := "- name: merchant_id\n  pattern: 'MID[0-9]{6}'\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := New([]string{"email"})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.LoadCustomPatterns(path); err != nil {
		t.Fatal(err)
	}
	if got := r.Redact("merchant MID123456 suspended"); got != "merchant [REDACTED:merchant_id] suspended" {
		t.Errorf("got %q", got)
	}
	names := r.PatternNames()
	if len(names) != 2 || names[1] != "merchant_id" {
		t.Errorf("names = %v", names)
	}
}

func TestCustomPatternsErrors(t *testing.T) {
	r, _ := New(nil)
	if err := r.LoadCustomPatterns(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected read error")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("- name: x\n  pattern: '('\n"), 0o644)
	if err := r.LoadCustomPatterns(path); err == nil {
		t.Error("expected compile error")
	}
}

func TestNilRedactor(t *testing.T) {
	var r *Redactor
	if got := r.Redact("4111111111111111"); got != "4111111111111111" {
		t.Errorf("nil redactor changed input: %q", got)
	}
}

func TestParseFlag(t *testing.T) {
	tests := []struct {
		in      string
		enabled bool
		n       int
	}{
		{"", true, 0},
		{"default", true, 0},
		{"off", false, 0},
		{"all", true, len(Names())},
		{"pan, email", true, 2},
	}
	for _, tt := range tests {
		enabled, names := ParseFlag(tt.in)
		if enabled != tt.enabled || len(names) != tt.n {
			t.Errorf("ParseFlag(%q) = %v %v", tt.in, enabled, names)
		}
	}
}

func TestLuhn(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"4111111111111111", true},
		{"4111 1111 1111 1111", true},
		{"4111111111111112", false},
		{"411111111111", false},
		{"4111a11111111111", false},
	}
	for _, tt := range tests {
		if got := luhnValid(tt.in); got != tt.want {
			t.Errorf("luhnValid(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
