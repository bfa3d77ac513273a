package export

import (
	"os"
	"sort"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// parquetWriter buffers rows and writes them as one zstd row group. Run
// details go in the footer's key/value metadata.
type parquetWriter struct {
	file *os.File
	w    *parquet.GenericWriter[Row]
	rows []Row
}

func newParquetWriter(path string, meta map[string]string) (*parquetWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	opts := []parquet.WriterOption{parquet.Compression(&zstd.Codec{})}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		opts = append(opts, parquet.KeyValueMetadata(k, meta[k]))
	}
	return &parquetWriter{file: f, w: parquet.NewGenericWriter[Row](f, opts...)}, nil
}

func (p *parquetWriter) Write(r Row) error {
	p.rows = append(p.rows, r)
	return nil
}

func (p *parquetWriter) Close() error {
	var err error
	if len(p.rows) > 0 {
		_, err = p.w.Write(p.rows)
	}
	if cerr := p.w.Close(); err == nil {
		err = cerr
	}
	if cerr := p.file.Close(); err == nil {
		err = cerr
	}
	return err
}
