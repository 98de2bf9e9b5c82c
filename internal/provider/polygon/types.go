package polygon

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"market-data/internal/model"
)

// BarRaw is a raw aggregate with FlexibleFloat for Volume (Polygon sometimes
// sends volume in scientific notation or as a string).
type BarRaw struct {
	Timestamp int64         `json:"t"` // Unix timestamp in milliseconds
	Open      float64       `json:"o"`
	High      float64       `json:"h"`
	Low       float64       `json:"l"`
	Close     float64       `json:"c"`
	Volume    FlexibleFloat `json:"v"`
}

// ToBar converts BarRaw to model.Bar
func (br BarRaw) ToBar() model.Bar {
	return model.Bar{
		Time:   time.UnixMilli(br.Timestamp).UTC(),
		Open:   br.Open,
		High:   br.High,
		Low:    br.Low,
		Close:  br.Close,
		Volume: br.Volume.Float64(),
	}
}

// AggregatesResponse is Polygon API response with next_url
type AggregatesResponse struct {
	Ticker       string   `json:"ticker"`
	QueryCount   int      `json:"queryCount"`
	ResultsCount int      `json:"resultsCount"`
	Adjusted     bool     `json:"adjusted"`
	Results      []BarRaw `json:"results"`
	Status       string   `json:"status"`
	RequestID    string   `json:"request_id"`
	Count        int      `json:"count"`
	NextURL      string   `json:"next_url,omitempty"`
}

// FlexibleFloat parses a JSON number or numeric string.
type FlexibleFloat float64

// UnmarshalJSON parses number or string
func (f *FlexibleFloat) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		val, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return err
		}
		*f = FlexibleFloat(val)
		return nil
	}

	var floatVal float64
	if err := json.Unmarshal(data, &floatVal); err == nil {
		*f = FlexibleFloat(floatVal)
		return nil
	}

	return fmt.Errorf("cannot parse as number: %s", string(data))
}

// Float64 returns the parsed value
func (f FlexibleFloat) Float64() float64 {
	return float64(f)
}
