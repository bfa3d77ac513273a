package patch

import (
	"strings"
	"testing"

	"github.com/ppiankov/logmedic/internal/model"
)

const src = "int a = 1;\nint b = 2;\nint c = 3;\nint d = 4;\n"

func TestApply(t *testing.T) {
	tests := []struct {
		name   string
		ch     model.CodeChange
		want   string
		method Method
	}{
		{
			name:   "exact",
			ch:     model.CodeChange{Original: "  int b = 2;  ", Replacement: "int b = 20;"},
			want:   "int a = 1;\nint b = 20;\nint c = 3;\nint d = 4;\n",
			method: MethodExact,
		},
		{
			name:   "line range",
			ch:     model.CodeChange{Original: "no such text", LineStart: 2, LineEnd: 3, Replacement: "int bc = 23;"},
			want:   "int a = 1;\nint bc = 23;\nint d = 4;\n",
			method: MethodLineRange,
		},
		{
			name:   "line range clipped",
			ch:     model.CodeChange{LineStart: 4, LineEnd: 99, Replacement: "int d = 40;"},
			want:   "int a = 1;\nint b = 2;\nint c = 3;\nint d = 40;",
			method: MethodLineRange,
		},
		{
			name:   "comment fallback",
			ch:     model.CodeChange{Replacement: "check(x);"},
			want:   src + "\n\n/* SUGGESTED FIX:\ncheck(x);\n*/\n",
			method: MethodComment,
		},
		{
			name:   "range past end falls back",
			ch:     model.CodeChange{LineStart: 50, LineEnd: 60, Replacement: "x"},
			want:   src + "\n\n/* SUGGESTED FIX:\nx\n*/\n",
			method: MethodComment,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, m := Apply(src, tt.ch)
			if got != tt.want || m != tt.method {
				t.Errorf("Apply = %q (%s), want %q (%s)", got, m, tt.want, tt.method)
			}
		})
	}
}

func TestApplyAll(t *testing.T) {
	got, methods := ApplyAll(src, []model.CodeChange{
		{Original: "int a = 1;", Replacement: "int a = 10;"},
		{Original: "int d = 4;", Replacement: "int d = 40;"},
	})
	if !strings.Contains(got, "int a = 10;") || !strings.Contains(got, "int d = 40;") {
		t.Errorf("changes not applied: %q", got)
	}
	if len(methods) != 2 || methods[0] != MethodExact || methods[1] != MethodExact {
		t.Errorf("methods = %v", methods)
	}
}

func TestDiff(t *testing.T) {
	after, _ := Apply(src, model.CodeChange{Original: "int b = 2;", Replacement: "int b = 20;"})
	d := Diff("src/x.cpp", src, after)
	for _, want := range []string{"--- a/src/x.cpp", "+++ b/src/x.cpp", "-int b = 2;", "+int b = 20;"} {
		if !strings.Contains(d, want) {
			t.Errorf("diff missing %q:\n%s", want, d)
		}
	}
	if Diff("x", src, src) != "" {
		t.Error("equal content should produce no diff")
	}
}

func TestFragmentDiff(t *testing.T) {
	d := FragmentDiff([]model.CodeChange{{File: "a.cpp", Original: "f();", Replacement: "if (p) f();"}})
	if !strings.Contains(d, "-f();") || !strings.Contains(d, "+if (p) f();") {
		t.Errorf("unexpected fragment diff:\n%s", d)
	}
}
