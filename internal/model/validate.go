package model

// CleanResult holds the bars that passed validation and how many were dropped.
type CleanResult struct {
	Bars    []Bar
	Dropped int
}

// Clean removes every bar that fails Valid. The input slice is not modified;
// order of the surviving bars is preserved.
func Clean(bars []Bar) CleanResult {
	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if b.Valid() {
			out = append(out, b)
		}
	}
	return CleanResult{Bars: out, Dropped: len(bars) - len(out)}
}
