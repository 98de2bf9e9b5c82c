package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zip"

	"market-data/internal/model"
)

// Reader decodes partitions written by Writer.
type Reader struct {
	layout  Layout
	formats Formats
	codec   TableCodec
}

func NewReader(layout Layout, formats Formats, codec TableCodec) *Reader {
	if codec == nil {
		codec = CSVCodec{}
	}
	layout.TableExt = codec.Extension()
	return &Reader{layout: layout, formats: formats, codec: codec}
}

func (r *Reader) Layout() Layout { return r.layout }

// Format returns the encoding of an asset class.
func (r *Reader) Format(ac model.AssetClass) (Format, error) { return r.formats.lookup(ac) }

// ScanRows streams the table rows of the archive at path. fn returns false
// to stop early. A missing file returns an error matching os.ErrNotExist.
func (r *Reader) ScanRows(path string, fn func(Row) bool) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()

	var entry *zip.File
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			entry = f
			break
		}
	}
	if entry == nil {
		return fmt.Errorf("%s: archive has no table", path)
	}
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	if s, ok := r.codec.(RowScanner); ok {
		return s.Scan(rc, fn)
	}
	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	rows, err := r.codec.Decode(data)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if !fn(row) {
			break
		}
	}
	return nil
}

// ReadRows returns every row of the archive at path.
func (r *Reader) ReadRows(path string) ([]Row, error) {
	var rows []Row
	err := r.ScanRows(path, func(row Row) bool {
		rows = append(rows, row)
		return true
	})
	return rows, err
}

// ReadBars decodes the partition for k back into bars.
func (r *Reader) ReadBars(k Key) ([]model.Bar, error) {
	f, err := r.formats.lookup(k.AssetClass)
	if err != nil {
		return nil, err
	}
	rows, err := r.ReadRows(r.layout.PartitionPath(k))
	if err != nil {
		return nil, err
	}
	bars := make([]model.Bar, 0, len(rows))
	for i, row := range rows {
		b, err := f.decodeRow(row, k.Resolution, k.Date)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", k, i+1, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// Decode reads archive bytes produced by Encoder.Encode for k.
func (r *Reader) Decode(k Key, data []byte) ([]model.Bar, error) {
	f, err := r.formats.lookup(k.AssetClass)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	if len(zr.File) == 0 {
		return nil, errors.New("archive has no table")
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		return nil, err
	}
	table, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}
	rows, err := r.codec.Decode(table)
	if err != nil {
		return nil, err
	}
	bars := make([]model.Bar, 0, len(rows))
	for _, row := range rows {
		b, err := f.decodeRow(row, k.Resolution, k.Date)
		if err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// Exists reports whether a file exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
