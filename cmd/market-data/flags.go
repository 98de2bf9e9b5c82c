package main

import (
	"fmt"
	"strings"
	"time"

	"market-data/internal/app"
	"market-data/internal/model"
)

const dateLayout = "2006-01-02"

// symbolFlags selects symbols from a list or a file.
type symbolFlags struct {
	list string
	file string
}

func (s *symbolFlags) resolve() ([]string, error) {
	var out []string
	if s.file != "" {
		fromFile, err := app.LoadSymbolsFromFile(s.file)
		if err != nil {
			return nil, err
		}
		out = append(out, fromFile...)
	}
	out = app.UniqueSymbols(append(out, strings.Split(s.list, ",")...))
	if len(out) == 0 {
		return nil, fmt.Errorf("no symbols given (use -symbols or -symbols-file)")
	}
	return out, nil
}

func parseResolutions(s string) ([]model.Resolution, error) {
	if strings.TrimSpace(s) == "" {
		return model.Resolutions, nil
	}
	var out []model.Resolution
	for _, part := range strings.Split(s, ",") {
		res, err := model.ParseResolution(part)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// parseDate returns local midnight of a YYYY-MM-DD date in loc.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be YYYY-MM-DD", s)
	}
	return d, nil
}
