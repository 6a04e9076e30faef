package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ModelError is a non-2xx answer from the model backend.
type ModelError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e ModelError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// ModelTimeoutError is a completion that exceeded its deadline.
type ModelTimeoutError struct {
	Provider string
}

func (e ModelTimeoutError) Error() string {
	return e.Provider + " request timed out"
}

// ModelUnavailableError is a backend that could not be reached at all.
type ModelUnavailableError struct {
	Provider string
	Err      error
}

func (e ModelUnavailableError) Error() string {
	return e.Provider + " unavailable: " + e.Err.Error()
}

func (e ModelUnavailableError) Unwrap() error {
	return e.Err
}

// WrapTransportError classifies an http.Client error into the taxonomy
// above. Providers call this on every transport failure so callers never see
// raw net errors.
func WrapTransportError(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ModelTimeoutError{Provider: provider}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ModelTimeoutError{Provider: provider}
	}
	return ModelUnavailableError{Provider: provider, Err: err}
}
