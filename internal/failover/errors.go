package failover

import (
	"fmt"
	"strings"
	"time"

	"github.com/codescope/relay/internal/provider"
)

// Attempt is one entry of a request's attempt log.
type Attempt struct {
	Provider provider.ID
	Err      error
	Duration time.Duration
}

// AllProvidersFailedError aggregates every attempt of an exhausted request.
// Skipped lists candidates rejected pre-dispatch by an open circuit; they
// never reached a backend and do not count as attempts.
type AllProvidersFailedError struct {
	Capability provider.Capability
	Attempts   []Attempt
	Skipped    []provider.ID
}

func (e *AllProvidersFailedError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "all providers failed for capability %q", e.Capability)

	for _, attempt := range e.Attempts {
		fmt.Fprintf(&sb, "; %s: %v", attempt.Provider, attempt.Err)
	}
	if len(e.Skipped) > 0 {
		fmt.Fprintf(&sb, "; skipped (circuit open):")
		for _, id := range e.Skipped {
			fmt.Fprintf(&sb, " %s", id)
		}
	}

	return sb.String()
}

// CancelledError is returned when the caller's context ends while a request
// is in flight. The attempt log covers everything tried up to and including
// the aborted attempt.
type CancelledError struct {
	Attempts []Attempt
	Cause    error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("request cancelled after %d attempt(s): %v", len(e.Attempts), e.Cause)
}

func (e *CancelledError) Unwrap() error {
	return e.Cause
}
