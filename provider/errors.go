package provider

import (
	"errors"
	"fmt"
)

// ErrForbidden signals an ownership or authorization failure from the
// provider. It is fatal to the flow that hit it; callers must not retry.
var ErrForbidden = errors.New("provider: forbidden")

// ErrRateLimited signals an HTTP 429 from the provider. The quote engine owns
// the local cool-down that follows.
var ErrRateLimited = errors.New("provider: rate limited")

// UpstreamError is a non-success provider response: either an HTTP error
// status or a result:false envelope. The raw payload is preserved for
// diagnostics while Message carries the normalized text shown to callers.
type UpstreamError struct {
	Status  int
	Message string
	Payload []byte
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider: %s", e.Message)
	}
	return fmt.Sprintf("provider: upstream failure (status %d)", e.Status)
}
