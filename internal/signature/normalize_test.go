package signature

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"uuid", "request id=a1b2c3d4-e5f6-7890-abcd-ef1234567890 failed", "request id=<UUID> failed"},
		{"ip", "connection refused to 10.0.1.42:8080", "connection refused to <IP>:<N>"},
		{"iso", "event at 2024-01-15T10:32:01Z processed", "event at <TS> processed"},
		{"iso space", "event at 2024-01-15 10:32:01.123 processed", "event at <TS> processed"},
		{"clock", "cutoff 23:59:59.999 reached", "cutoff <TIME> reached"},
		{"hex prefix", "memory at 0x7ffeefbff4a0 corrupted", "memory at <HEX> corrupted"},
		{"hex token", "token 9f86d081884c7d65 rejected", "token <HEX> rejected"},
		{"single quoted", "merchant 'ACME_42' not configured", "merchant '<Q>' not configured"},
		{"double quoted", `key "routing.max_len" missing`, `key "<Q>" missing`},
		{"quoted after equals", `lookup key='BIN_4111' failed`, `lookup key='<Q>' failed`},
		{"quoted in parens", `open('routes.ini') failed`, `open('<Q>') failed`},
		{"contractions", "can't load card, won't retry", "can't load card, won't retry"},
		{"possessive", "merchant's terminal isn't active", "merchant's terminal isn't active"},
		{"bracketed", "merchant [MERCH_A] not loaded", "merchant [<Q>] not loaded"},
		{"duration", "took 230ms", "took <DUR>"},
		{"digits", "txn 88213 failed after 3 attempts", "txn <N> failed after <N> attempts"},
		{"short codes", "status 500", "status <N>"},
		{"whitespace", "  too   many\tspaces ", "too many spaces"},
		{"plain", "no variable tokens here", "no variable tokens here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"null pointer for txn 88213 at 0xdeadbeef",
		"merchant 'ACME_42' not configured since 2024-01-15T10:32:01Z",
		"cache miss key=user:9f86d081884c7d65 after 1.5s",
		"merchant [MERCH_A] can't load key='BIN_4111'",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestNormalizeCollapsesIDs(t *testing.T) {
	a := Normalize("null pointer dereference for txn TXN-88213")
	b := Normalize("null pointer dereference for txn TXN-11907")
	if a != b {
		t.Errorf("expected equal signatures, got %q and %q", a, b)
	}
}

func TestNormalizeCollapsesBracketedValues(t *testing.T) {
	a := Normalize("merchant [MERCH_A] not loaded")
	b := Normalize("merchant [MERCH_B] not loaded")
	if a != b {
		t.Errorf("expected equal signatures, got %q and %q", a, b)
	}
	if Normalize("can't load card") == Normalize("won't retry card") {
		t.Error("contractions must not merge unrelated messages")
	}
}

func TestChain(t *testing.T) {
	upper := func(s string) string { return s + "!" }
	n := Chain(Normalize, upper)
	if got := n("id 42"); got != "id <N>!" {
		t.Errorf("got %q", got)
	}
}

func TestWithRules(t *testing.T) {
	n, err := WithRules(Normalize, []Rule{{Pattern: `MID[A-Z0-9]+`, Replacement: "<MID>"}})
	if err != nil {
		t.Fatal(err)
	}
	if got := n("merchant MIDX77 blocked"); got != "merchant <MID> blocked" {
		t.Errorf("got %q", got)
	}

	if _, err := WithRules(Normalize, []Rule{{Pattern: "("}}); err == nil {
		t.Error("expected error for invalid rule")
	}

	same, err := WithRules(Normalize, nil)
	if err != nil || same("a 1") != "a <N>" {
		t.Errorf("nil rules should return base normalizer")
	}
}

func TestLooksLikeError(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"Null Pointer dereference", true},
		{"connection refused", true},
		{"deadlock detected", true},
		{"request completed", false},
	}
	for _, tt := range tests {
		if got := LooksLikeError(tt.msg); got != tt.want {
			t.Errorf("LooksLikeError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}
