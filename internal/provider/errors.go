package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrDuplicateProvider is returned by Register when a provider with the
	// same (capability, name) pair already exists.
	ErrDuplicateProvider = errors.New("duplicate provider")

	// ErrUnknownCapability is returned when no provider is registered for
	// the requested capability.
	ErrUnknownCapability = errors.New("unknown capability")
)

// ErrorKind classifies a single backend call failure.
type ErrorKind string

const (
	ErrorKindTimeout     ErrorKind = "timeout"
	ErrorKindConnection  ErrorKind = "connection"
	ErrorKindApplication ErrorKind = "application"
)

// BackendError wraps a single failed call or probe against one backend.
type BackendError struct {
	Provider ID
	Kind     ErrorKind
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// WrapBackendError classifies err and wraps it with the provider identity.
// Already-classified errors pass through unchanged.
func WrapBackendError(id ID, err error) *BackendError {
	var be *BackendError
	if errors.As(err, &be) {
		return be
	}

	return &BackendError{Provider: id, Kind: classify(err), Err: err}
}

func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorKindTimeout
		}
		return ErrorKindConnection
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrorKindConnection
	}

	return ErrorKindApplication
}
