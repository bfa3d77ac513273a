package parser

import (
	"bufio"
	"errors"
	"io"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/ppiankov/logmedic/internal/logtypes"
	"github.com/ppiankov/logmedic/internal/source"
)

const switchLog = `10:32:01.123	INFO	Main.cpp	0010	main	1000 switch started
10:32:02.456	ERROR	PaymentProcessor.cpp	0412	processPayment	7781 null pointer dereference for txn 88213
    at PaymentProcessor::processPayment(PaymentProcessor.cpp:412)
    at Dispatcher::run(Dispatcher.cpp:90)
10:32:03.789	CRITICAL	Routing.cpp	0088	loadRoutingTable	7782 routing table max length = 0
`

func TestParseSwitchFormat(t *testing.T) {
	got := New().ParseString(switchLog)
	if len(got.Entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(got.Entries))
	}
	if got.Lines != 5 {
		t.Errorf("lines = %d, want 5", got.Lines)
	}

	e := got.Entries[1]
	if e.Severity != logtypes.SeverityError {
		t.Errorf("severity = %q, want ERROR", e.Severity)
	}
	if e.SourceFile != "PaymentProcessor.cpp" || e.Line != 412 || e.Function != "processPayment" {
		t.Errorf("location = %s %d %s", e.SourceFile, e.Line, e.Function)
	}
	if e.Thread != "7781" {
		t.Errorf("thread = %q, want 7781", e.Thread)
	}
	if e.Message != "null pointer dereference for txn 88213" {
		t.Errorf("message = %q", e.Message)
	}
	if e.Timestamp != "10:32:02.456" || e.Time.IsZero() {
		t.Errorf("timestamp = %q time=%v", e.Timestamp, e.Time)
	}
	if len(e.Context) != 2 {
		t.Fatalf("context lines = %d, want 2", len(e.Context))
	}
	if e.Lines.First != 2 || e.Lines.Last != 4 {
		t.Errorf("lines = %+v, want 2..4", e.Lines)
	}
	if got.Entries[2].Severity != logtypes.SeverityCritical {
		t.Errorf("severity = %q, want CRITICAL", got.Entries[2].Severity)
	}
}

func TestParseOtherFormats(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		file     string
		line2    int
		function string
		msg      string
	}{
		{
			"iso located",
			"2024-01-15 10:32:01.123 ERROR [7781] Routing.cpp:88 loadRoutingTable - table empty",
			"Routing.cpp", 88, "loadRoutingTable", "table empty",
		},
		{
			"iso T located",
			"2024-01-15T10:32:01Z ERROR Cache.cpp:12 CacheClient::get(): redis timeout",
			"Cache.cpp", 12, "CacheClient::get", "redis timeout",
		},
		{
			"level led",
			"ERROR Db.cpp:301 execQuery: deadlock detected",
			"Db.cpp", 301, "execQuery", "deadlock detected",
		},
		{
			"iso plain",
			"2024-01-15T10:32:01Z ERROR upstream refused connection",
			"", 0, "", "upstream refused connection",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New().ParseString(tt.line + "\n")
			if len(got.Entries) != 1 {
				t.Fatalf("got %d entries, warnings %v", len(got.Entries), got.Warnings)
			}
			e := got.Entries[0]
			if e.SourceFile != tt.file || e.Line != tt.line2 || e.Function != tt.function || e.Message != tt.msg {
				t.Errorf("got file=%q line=%d func=%q msg=%q", e.SourceFile, e.Line, e.Function, e.Message)
			}
			if e.Severity != logtypes.SeverityError {
				t.Errorf("severity = %q", e.Severity)
			}
		})
	}
}

func TestParseWarnings(t *testing.T) {
	input := "    at orphan.frame()\n" +
		"complete garbage line\n" +
		"\n" +
		"10:32:02.456	ERROR	A.cpp	0001	f	1 boom\n"

	var seen []Warning
	got := New(WithWarningHandler(func(w Warning) { seen = append(seen, w) })).ParseString(input)

	if len(got.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(got.Entries))
	}
	if len(got.Warnings) != 2 || len(seen) != 2 {
		t.Fatalf("warnings = %v, handler saw %d", got.Warnings, len(seen))
	}
	if got.Warnings[0].Reason != ReasonOrphan || got.Warnings[0].Line != 1 {
		t.Errorf("first warning = %+v", got.Warnings[0])
	}
	if got.Warnings[1].Reason != ReasonUnrecognized || got.Warnings[1].Line != 2 {
		t.Errorf("second warning = %+v", got.Warnings[1])
	}
}

func TestParseEmpty(t *testing.T) {
	got := New().ParseString("")
	if len(got.Entries) != 0 || len(got.Warnings) != 0 || got.Lines != 0 {
		t.Errorf("expected empty result, got %+v", got)
	}
}

func TestParseNoTrailingNewline(t *testing.T) {
	got := New().ParseString("10:32:02.456\tERROR\tA.cpp\t0001\tf\t1 boom")
	if len(got.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(got.Entries))
	}
}

func TestParseCRLF(t *testing.T) {
	got := New().ParseString("10:32:02.456\tERROR\tA.cpp\t0001\tf\t1 boom\r\n")
	if len(got.Entries) != 1 || got.Entries[0].Message != "boom" {
		t.Fatalf("unexpected entries %+v", got.Entries)
	}
}

// Arbitrary input never fails and never yields more entries than lines.
func TestParseNeverFailsOnMalformedInput(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	alphabet := []byte("\t \n:.0123456789ABCDEFERRORINFOxyz#[]()-_/\x00\xff")
	for i := 0; i < 200; i++ {
		buf := make([]byte, rng.IntN(2000))
		for j := range buf {
			buf[j] = alphabet[rng.IntN(len(alphabet))]
		}
		got, err := New().ParseAll(source.FromBytes(buf))
		if err != nil {
			t.Fatalf("iteration %d: unexpected error %v", i, err)
		}
		if len(got.Entries) > got.Lines {
			t.Fatalf("iteration %d: %d entries > %d lines", i, len(got.Entries), got.Lines)
		}
	}
}

func TestEntriesRestartable(t *testing.T) {
	p := New()
	seq := p.Entries(source.FromString(switchLog))

	count := func() int {
		n := 0
		for _, err := range seq {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			n++
		}
		return n
	}
	first, second := count(), count()
	if first != 3 || second != 3 {
		t.Errorf("passes yielded %d and %d entries, want 3 and 3", first, second)
	}
}

func TestEntriesEarlyBreak(t *testing.T) {
	n := 0
	for range New().Entries(source.FromString(switchLog)) {
		n++
		break
	}
	if n != 1 {
		t.Errorf("got %d iterations, want 1", n)
	}
}

func TestEntriesOpenError(t *testing.T) {
	boom := errors.New("disk gone")
	open := func() (io.ReadCloser, error) { return nil, boom }

	var gotErr error
	for _, err := range New().Entries(open) {
		gotErr = err
	}
	if !errors.Is(gotErr, boom) {
		t.Errorf("got %v, want %v", gotErr, boom)
	}
}

type failingReader struct{ n int }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.n == 0 {
		f.n++
		return copy(p, "10:32:02.456\tERROR\tA.cpp\t0001\tf\t1 boom\n"), nil
	}
	return 0, errors.New("read failed")
}

func TestEntriesReadError(t *testing.T) {
	open := func() (io.ReadCloser, error) { return io.NopCloser(&failingReader{}), nil }
	_, err := New().ParseAll(open)
	if err == nil || !strings.Contains(err.Error(), "read failed") {
		t.Errorf("expected read error, got %v", err)
	}
}

// repeatReader yields the same byte forever.
type repeatReader byte

func (r repeatReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}

func TestParseOversizedLine(t *testing.T) {
	open := func() (io.ReadCloser, error) {
		return io.NopCloser(io.MultiReader(
			strings.NewReader("10:32:02.456\tERROR\tA.cpp\t0001\tf\t1 "),
			io.LimitReader(repeatReader('x'), 5*maxLineBytes),
			strings.NewReader("\n10:32:03.000\tERROR\tB.cpp\t0002\tg\t2 next\n"),
		)), nil
	}
	got, err := New().ParseAll(open)
	if err != nil {
		t.Fatal(err)
	}
	if got.Lines != 2 || len(got.Entries) != 2 {
		t.Fatalf("lines = %d, entries = %d", got.Lines, len(got.Entries))
	}
	if n := len(got.Entries[0].Raw); n != maxLineBytes {
		t.Errorf("kept %d bytes of the long line, want %d", n, maxLineBytes)
	}
	if got.Entries[1].Message != "next" || got.Entries[1].Lines.First != 2 {
		t.Errorf("line after the long one = %+v", got.Entries[1])
	}
	if len(got.Warnings) != 1 || got.Warnings[0].Reason != ReasonTruncated || got.Warnings[0].Line != 1 {
		t.Fatalf("warnings = %+v", got.Warnings)
	}
	if len(got.Warnings[0].Text) > warnTextBytes {
		t.Errorf("warning carries %d bytes of text", len(got.Warnings[0].Text))
	}
}

func TestReadLineExactCap(t *testing.T) {
	line := strings.Repeat("y", maxLineBytes)
	r := bufio.NewReaderSize(strings.NewReader(line+"\r\nz"), 4096)
	got, truncated, ok, err := readLine(r)
	if err != nil || !ok || truncated || got != line {
		t.Fatalf("first line: len %d, truncated %v, ok %v, err %v", len(got), truncated, ok, err)
	}
	got, truncated, ok, err = readLine(r)
	if got != "z" || truncated || !ok || !errors.Is(err, io.EOF) {
		t.Errorf("last line = %q, %v, %v, %v", got, truncated, ok, err)
	}
	if _, _, ok, _ := readLine(r); ok {
		t.Error("read past end")
	}
}

func TestCustomPattern(t *testing.T) {
	pat, err := CompilePattern("pipe", `^(?P<level>\w+)\|(?P<file>[^|]+)\|(?P<func>[^|]+)\|(?P<msg>.*)$`)
	if err != nil {
		t.Fatal(err)
	}
	got := New(WithPatterns(pat)).ParseString("ERROR|Cache.cpp|get|miss storm\n")
	if len(got.Entries) != 1 || got.Entries[0].Function != "get" {
		t.Fatalf("unexpected entries %+v", got.Entries)
	}
}

func TestCompilePatternRequiresMsg(t *testing.T) {
	if _, err := CompilePattern("bad", `^(?P<level>\w+)$`); err == nil {
		t.Error("expected error for pattern without msg group")
	}
	if _, err := CompilePattern("bad", `(`); err == nil {
		t.Error("expected compile error")
	}
}
