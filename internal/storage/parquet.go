package storage

import (
	"bytes"
	"io"

	"github.com/parquet-go/parquet-go"
)

// ParquetCodec stores the table as a Parquet file.
type ParquetCodec struct{}

func (ParquetCodec) Extension() string { return "parquet" }

func (ParquetCodec) Encode(w io.Writer, rows []Row) error {
	return parquet.Write(w, rows)
}

func (ParquetCodec) Decode(data []byte) ([]Row, error) {
	return parquet.Read[Row](bytes.NewReader(data), int64(len(data)))
}
