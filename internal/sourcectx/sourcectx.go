// Package sourcectx finds the source file named in a log line and returns
// the lines around the logged position. Files are treated as plain text.
package sourcectx

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// sourceExts are tried when the logged file name has no exact match.
var sourceExts = []string{".cpp", ".cc", ".cxx", ".c", ".hpp", ".h", ".go", ".java", ".py", ".rs"}

// skipDirs are never indexed.
var skipDirs = map[string]bool{".git": true, "node_modules": true, "vendor": true, "build": true}

// Loader resolves logged file names under a source root.
type Loader struct {
	root   string
	window int

	once  sync.Once
	files []string // slash-separated, relative to root
	err   error
}

// New creates a Loader returning window lines either side of the target.
func New(root string, window int) *Loader {
	if window <= 0 {
		window = 15
	}
	return &Loader{root: root, window: window}
}

// Snippet is a numbered excerpt of a source file.
type Snippet struct {
	Path  string `json:"path"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

func (l *Loader) index() ([]string, error) {
	l.once.Do(func() {
		l.err = filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != l.root && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(l.root, path)
			if err != nil {
				return err
			}
			l.files = append(l.files, filepath.ToSlash(rel))
			return nil
		})
		sort.Strings(l.files)
	})
	return l.files, l.err
}

// Resolve maps a logged file name to a path relative to the root.
// Matching tries, in order: the exact relative path, the base name, the
// same stem with a source extension, then a base name starting with the
// logged name (loggers often truncate long names).
func (l *Loader) Resolve(name string) (string, bool) {
	if l == nil || name == "" {
		return "", false
	}
	files, err := l.index()
	if err != nil || len(files) == 0 {
		return "", false
	}
	name = filepath.ToSlash(name)
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	for _, f := range files {
		if f == name || strings.HasSuffix(f, "/"+name) {
			return f, true
		}
	}
	for _, f := range files {
		if strings.EqualFold(filepath.Base(f), base) {
			return f, true
		}
	}
	for _, ext := range sourceExts {
		for _, f := range files {
			if strings.EqualFold(filepath.Base(f), stem+ext) {
				return f, true
			}
		}
	}
	if len(stem) >= 4 {
		lower := strings.ToLower(stem)
		for _, f := range files {
			if strings.HasPrefix(strings.ToLower(filepath.Base(f)), lower) {
				return f, true
			}
		}
	}
	return "", false
}

// Snippet returns the lines around line in the file the log names. With
// line <= 0 the head of the file is returned.
func (l *Loader) Snippet(name string, line int) (Snippet, bool) {
	rel, ok := l.Resolve(name)
	if !ok {
		return Snippet{}, false
	}
	lines, err := readLines(filepath.Join(l.root, filepath.FromSlash(rel)))
	if err != nil || len(lines) == 0 {
		return Snippet{}, false
	}

	start, end := 1, min(len(lines), 2*l.window+1)
	if line > 0 {
		if line > len(lines) {
			line = len(lines)
		}
		start = max(1, line-l.window)
		end = min(len(lines), line+l.window)
	}

	var b strings.Builder
	for n := start; n <= end; n++ {
		marker := " "
		if n == line {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s%5d | %s\n", marker, n, lines[n-1])
	}
	return Snippet{Path: rel, Start: start, End: end, Text: b.String()}, true
}

// ReadFile returns the content of a root-relative path.
func (l *Loader) ReadFile(rel string) ([]byte, error) {
	return os.ReadFile(filepath.Join(l.root, filepath.FromSlash(rel)))
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
