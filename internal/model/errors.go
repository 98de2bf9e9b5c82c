package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRange is matched by every *InvalidRangeError.
var ErrInvalidRange = errors.New("invalid date range")

// InvalidRangeError reports a request whose start is not before its end.
type InvalidRangeError struct {
	Start, End time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid date range: start %s is not before end %s",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

func (e *InvalidRangeError) Is(target error) bool { return target == ErrInvalidRange }

// CheckRange returns an *InvalidRangeError unless start < end.
func CheckRange(start, end time.Time) error {
	if !start.Before(end) {
		return &InvalidRangeError{Start: start, End: end}
	}
	return nil
}
