package adapter

import (
	"fmt"
	"strings"
)

// AdaptationError is returned when no candidate could be produced.
// Retryable failures (provider timeouts, rate limits) may succeed later;
// the rest will fail the same way on every attempt.
type AdaptationError struct {
	Message   string
	Retryable bool
	Cause     error
}

func (e *AdaptationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("adaptation failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("adaptation failed: %s", e.Message)
}

func (e *AdaptationError) Unwrap() error {
	return e.Cause
}

// FactualDriftError lists the checklist facts a candidate lost or altered
type FactualDriftError struct {
	Drift []Drift
}

func (e *FactualDriftError) Error() string {
	parts := make([]string, 0, len(e.Drift))
	for _, d := range e.Drift {
		parts = append(parts, d.String())
	}
	return fmt.Sprintf("factual drift: %s", strings.Join(parts, "; "))
}
