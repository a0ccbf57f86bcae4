// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureKind distinguishes the typed failures a fetch can surface.
type FailureKind string

const (
	FailureConnectivity      FailureKind = "connectivity"
	FailureTimeout           FailureKind = "timeout"
	FailureMalformedResponse FailureKind = "malformed_response"
	FailureUpstreamRateLimit FailureKind = "upstream_rate_limit"
)

// FetchError wraps an upstream failure with its kind. It is raised on
// the specific advance call that discovered it, never deferred.
type FetchError struct {
	Kind FailureKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("search fetch failed (%s): %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// newFetchError classifies err into a FetchError. Context deadline and
// net timeouts map to FailureTimeout; other transport errors to
// FailureConnectivity. An error that already is a FetchError passes
// through unchanged; anything merely wrapping one is re-wrapped so the
// outer chain survives.
func newFetchError(err error) *FetchError {
	if fe, ok := err.(*FetchError); ok {
		return fe
	}

	kind := FailureConnectivity
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = FailureTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = FailureTimeout
	}
	return &FetchError{Kind: kind, Err: err}
}
