package loader

import (
	"errors"
	"fmt"
)

// ErrCircularReference marks a warning for a file that references itself,
// directly or through other files. The reference is skipped.
var ErrCircularReference = errors.New("circular reference")

// SubResourceFetchError reports a referenced file that could not be
// fetched. It is not fatal: the load continues without that file.
type SubResourceFetchError struct {
	Name string // Reference as written in the model
	URL  string // Location tried first
	Err  error
}

func (e *SubResourceFetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.Name, e.URL, e.Err)
}

func (e *SubResourceFetchError) Unwrap() error {
	return e.Err
}

// InvalidParseResultError reports that a backend produced something that
// is not a usable scene graph.
type InvalidParseResultError struct {
	Reason string
	Err    error
}

func (e *InvalidParseResultError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid parse result: %s: %v", e.Reason, e.Err)
	}
	return "invalid parse result: " + e.Reason
}

func (e *InvalidParseResultError) Unwrap() error {
	return e.Err
}
