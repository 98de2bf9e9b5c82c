package alpaca

import (
	"time"

	"market-data/internal/model"
)

// barRaw is one element of the bars array in /v2/stocks/{symbol}/bars.
type barRaw struct {
	Timestamp  time.Time `json:"t"`
	Open       float64   `json:"o"`
	High       float64   `json:"h"`
	Low        float64   `json:"l"`
	Close      float64   `json:"c"`
	Volume     float64   `json:"v"`
	TradeCount int64     `json:"n"`
	VWAP       float64   `json:"vw"`
}

func (br barRaw) toBar() model.Bar {
	return model.Bar{
		Time:   br.Timestamp.UTC(),
		Open:   br.Open,
		High:   br.High,
		Low:    br.Low,
		Close:  br.Close,
		Volume: br.Volume,
	}
}

type barsResponse struct {
	Bars          []barRaw `json:"bars"`
	Symbol        string   `json:"symbol"`
	NextPageToken *string  `json:"next_page_token"`
}
