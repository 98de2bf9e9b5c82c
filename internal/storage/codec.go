package storage

import (
	"io"
	"strings"
)

// TableCodec is the abstraction for the table file stored inside each
// partition archive. The orchestrator injects the implementation; the
// encoder only depends on this interface.
type TableCodec interface {
	Encode(w io.Writer, rows []Row) error
	Decode(data []byte) ([]Row, error)
	Extension() string
}

// RowScanner is implemented by codecs that can stream rows without
// materializing the whole table. fn returns false to stop early.
type RowScanner interface {
	Scan(r io.Reader, fn func(Row) bool) error
}

// NewTableCodec creates implementation by format (csv, parquet, json).
// Returns nil if format not supported.
func NewTableCodec(format string) TableCodec {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "csv":
		return CSVCodec{}
	case "parquet":
		return ParquetCodec{}
	case "json":
		return JSONCodec{}
	default:
		return nil
	}
}
