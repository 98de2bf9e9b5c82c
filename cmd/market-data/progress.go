package main

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"market-data/internal/ingest"
)

// barObserver renders run progress on a terminal bar.
type barObserver struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newBarObserver(w io.Writer) *barObserver { return &barObserver{w: w} }

func (o *barObserver) Planned(total int) {
	o.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(o.w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Downloading"),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(o.w) }),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

func (o *barObserver) UnitDone(u ingest.Unit) {
	if o.bar == nil {
		return
	}
	o.bar.Describe(fmt.Sprintf("%s %s %s", u.Symbol, u.Resolution, u.DateRange()))
	_ = o.bar.Add(1)
}
