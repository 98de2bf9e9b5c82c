package storage

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/klauspost/compress/zip"

	"market-data/internal/model"
)

// Partition is the normalized bar set stored in one archive.
type Partition struct {
	Key  Key
	Bars []model.Bar
}

// Encoder turns bar series into deterministic partition archives.
type Encoder struct {
	layout  Layout
	formats Formats
	codec   TableCodec
}

// NewEncoder builds an encoder. codec nil means CSV.
func NewEncoder(layout Layout, formats Formats, codec TableCodec) *Encoder {
	if codec == nil {
		codec = CSVCodec{}
	}
	layout.TableExt = codec.Extension()
	return &Encoder{layout: layout, formats: formats, codec: codec}
}

// Layout returns the path layout used for table names.
func (e *Encoder) Layout() Layout { return e.layout }

// Normalize returns bars sorted by time with duplicate timestamps collapsed;
// the bar appearing later in the input wins. The input is not modified.
func Normalize(bars []model.Bar) []model.Bar {
	sorted := append([]model.Bar(nil), bars...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
	out := sorted[:0]
	for i, b := range sorted {
		if i+1 < len(sorted) && sorted[i+1].Time.Equal(b.Time) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Partitions normalizes bars and splits them the way they are stored:
// one partition per local calendar day for per-day resolutions, a single
// range partition otherwise.
func (e *Encoder) Partitions(ac model.AssetClass, res model.Resolution, symbol string, bars []model.Bar) ([]Partition, error) {
	f, err := e.formats.lookup(ac)
	if err != nil {
		return nil, err
	}
	bars = Normalize(bars)
	if len(bars) == 0 {
		return nil, nil
	}
	if !res.PerDay() {
		return []Partition{{Key: Key{AssetClass: ac, Resolution: res, Symbol: symbol}, Bars: bars}}, nil
	}

	var parts []Partition
	for _, b := range bars {
		l := b.Time.In(f.Location)
		day := time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, f.Location)
		if n := len(parts); n > 0 && parts[n-1].Key.Date.Equal(day) {
			parts[n-1].Bars = append(parts[n-1].Bars, b)
			continue
		}
		parts = append(parts, Partition{
			Key:  Key{AssetClass: ac, Resolution: res, Symbol: symbol, Date: day},
			Bars: []model.Bar{b},
		})
	}
	return parts, nil
}

// Rows renders the partition's table rows. Per-day partitions reject bars
// that fall outside the partition date.
func (e *Encoder) Rows(p Partition) ([]Row, error) {
	f, err := e.formats.lookup(p.Key.AssetClass)
	if err != nil {
		return nil, &EncodingError{Key: p.Key, Err: err}
	}
	bars := Normalize(p.Bars)
	if len(bars) == 0 {
		return nil, ErrEmptySeries
	}
	rows := make([]Row, 0, len(bars))
	for _, b := range bars {
		if p.Key.Resolution.PerDay() {
			l := b.Time.In(f.Location)
			d := p.Key.Date.In(f.Location)
			if l.Year() != d.Year() || l.YearDay() != d.YearDay() {
				return nil, &EncodingError{Key: p.Key, Err: fmt.Errorf("bar %s outside partition day", b.Time.Format(time.RFC3339))}
			}
		}
		row, err := f.encodeRow(b, p.Key.Resolution)
		if err != nil {
			return nil, &EncodingError{Key: p.Key, Err: err}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Encode returns the compressed archive bytes for p. The same partition
// always produces the same bytes.
func (e *Encoder) Encode(p Partition) ([]byte, error) {
	rows, err := e.Rows(p)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	// zero Modified keeps archive bytes independent of wall-clock time
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: e.layout.TableName(p.Key), Method: zip.Deflate})
	if err != nil {
		return nil, &EncodingError{Key: p.Key, Err: err}
	}
	if err := e.codec.Encode(fw, rows); err != nil {
		return nil, &EncodingError{Key: p.Key, Err: err}
	}
	if err := zw.Close(); err != nil {
		return nil, &EncodingError{Key: p.Key, Err: err}
	}
	return buf.Bytes(), nil
}
