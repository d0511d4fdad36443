package dbf

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when Decode is called without table bytes.
var ErrEmptyInput = errors.New("empty table data")

// errMemoOutOfRange is the cause recorded when a memo pointer addresses a
// block past the end of the memo store.
var errMemoOutOfRange = errors.New("memo pointer out of range")

// DecodeError reports malformed, truncated or empty table input.
// Offset is the byte position where decoding stopped (-1 when not applicable).
type DecodeError struct {
	Offset int
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "dbf decode error: " + e.Reason
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" (offset %d)", e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func truncated(offset int, what string) *DecodeError {
	return &DecodeError{Offset: offset, Reason: "truncated input reading " + what}
}

// MemoResolutionError reports a memo cell whose block pointer could not be
// resolved. It never aborts a decode; the cell becomes nil.
type MemoResolutionError struct {
	Field   string
	Record  int // 0-based record index
	Pointer int64
	Err     error
}

func (e *MemoResolutionError) Error() string {
	return fmt.Sprintf("memo resolution failed for field %s record %d pointer %d: %v",
		e.Field, e.Record, e.Pointer, e.Err)
}

func (e *MemoResolutionError) Unwrap() error {
	return e.Err
}
