package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/openai/openai-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ProviderError is returned by every Client implementation when the provider
// call fails. Transient marks failures worth retrying later: timeouts, rate
// limits and server-side unavailability.
type ProviderError struct {
	Provider   Provider
	Message    string
	StatusCode int
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsTransient reports whether err is a provider failure worth retrying
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return pErr.Transient
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func transientCode(c codes.Code) bool {
	switch c {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
		return true
	}
	return false
}

// classify wraps a raw SDK error into a ProviderError
func classify(p Provider, op string, err error) error {
	pErr := &ProviderError{Provider: p, Message: op + " failed", Cause: err}

	var gErr *googleapi.Error
	var oErr *openai.Error
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		pErr.Transient = true
	case errors.Is(err, context.Canceled):
		pErr.Transient = false
	case errors.As(err, &gErr):
		pErr.StatusCode = gErr.Code
		pErr.Transient = transientStatus(gErr.Code)
	case errors.As(err, &oErr):
		pErr.StatusCode = oErr.StatusCode
		pErr.Transient = transientStatus(oErr.StatusCode)
	case errors.As(err, &netErr):
		pErr.Transient = netErr.Timeout()
	default:
		if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
			pErr.Transient = transientCode(s.Code())
		}
	}
	return pErr
}
