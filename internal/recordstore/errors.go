package recordstore

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection is returned when the backing service or target resource
	// cannot be reached.
	ErrConnection = errors.New("record store unreachable")

	// ErrNotFound is returned when the named spreadsheet, worksheet or table
	// does not exist.
	ErrNotFound = errors.New("record store resource not found")
)

// AppendError is returned once every append attempt has failed. The write is
// definitively failed from the caller's side even though an ambiguous attempt
// may have landed server-side.
type AppendError struct {
	Attempts int
	Err      error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("append failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *AppendError) Unwrap() error {
	return e.Err
}
