package leads

import "errors"

var (
	ErrNotFound = errors.New("leads: not found")
	ErrConflict = errors.New("leads: conditional update conflict")
)

// ConflictError reports a failed expectation together with the row as it is stored now,
// so callers can decide what went wrong without a second read.
type ConflictError struct {
	Current Lead
}

func (e *ConflictError) Error() string {
	return "leads: conditional update conflict on " + e.Current.ID
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
