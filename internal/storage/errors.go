package storage

import (
	"errors"
	"fmt"
)

// ErrEmptySeries is returned when there is nothing to persist.
var ErrEmptySeries = errors.New("empty series")

// EncodingError reports a partition that could not be serialized or written.
type EncodingError struct {
	Key Key
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Key, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }
