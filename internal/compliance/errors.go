// Package compliance checks generated text against the structural contract of
// its output format. Violations are reported, never thrown.
package compliance

import (
	"errors"
	"fmt"
)

// ErrUnknownFormat is returned for a format tag with no contract
var ErrUnknownFormat = errors.New("unknown output format")

// RenderError represents a failure converting markdown for inspection
type RenderError struct {
	Message string
	Cause   error
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("render error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("render error: %s", e.Message)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}
