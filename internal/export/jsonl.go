package export

import (
	"bufio"
	"encoding/json"
	"os"
)

// jsonlWriter writes one JSON object per group, newline terminated.
type jsonlWriter struct {
	file *os.File
	bw   *bufio.Writer
	enc  *json.Encoder
}

func newJSONLWriter(path string) (*jsonlWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	// diffs and log lines carry < > & verbatim
	enc.SetEscapeHTML(false)
	return &jsonlWriter{file: f, bw: bw, enc: enc}, nil
}

func (j *jsonlWriter) Write(r Row) error { return j.enc.Encode(r) }

func (j *jsonlWriter) Close() error {
	err := j.bw.Flush()
	if cerr := j.file.Close(); err == nil {
		err = cerr
	}
	return err
}
