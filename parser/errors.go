package parser

import (
	"errors"
	"fmt"
)

// ErrNoTable is returned when a listing has no metadata table.
var ErrNoTable = errors.New("parser: listing has no table")

// ListingError reports a failure scoped to one listing.
type ListingError struct {
	Index int
	ID    string
	Err   error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("listing %d (%s): %v", e.Index, e.ID, e.Err)
}

func (e *ListingError) Unwrap() error {
	return e.Err
}
