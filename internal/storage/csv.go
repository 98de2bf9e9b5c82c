package storage

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// CSVCodec writes headerless rows: time,open,high,low,close,volume.
type CSVCodec struct{}

func (CSVCodec) Extension() string { return "csv" }

func (CSVCodec) Encode(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	for _, r := range rows {
		if err := cw.Write([]string{
			r.Time,
			floatStr(r.Open),
			floatStr(r.High),
			floatStr(r.Low),
			floatStr(r.Close),
			floatStr(r.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (c CSVCodec) Decode(data []byte) ([]Row, error) {
	var rows []Row
	err := c.Scan(bytes.NewReader(data), func(r Row) bool {
		rows = append(rows, r)
		return true
	})
	return rows, err
}

func (CSVCodec) Scan(r io.Reader, fn func(Row) bool) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 6
	cr.ReuseRecord = true
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		row, err := parseRecord(rec)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if !fn(row) {
			return nil
		}
	}
}

func parseRecord(rec []string) (Row, error) {
	row := Row{Time: rec[0]}
	for i, dst := range []*float64{&row.Open, &row.High, &row.Low, &row.Close, &row.Volume} {
		v, err := strconv.ParseFloat(rec[i+1], 64)
		if err != nil {
			return Row{}, err
		}
		*dst = v
	}
	return row, nil
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
