package authclient

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport wraps network level failures talking to the API.
	ErrTransport = errors.New("authclient: transport failure")
	// ErrUnsupported is returned when a role has no endpoint for an operation.
	ErrUnsupported = errors.New("authclient: operation not supported for role")
	// ErrMalformedResponse is returned when a 2xx body cannot be understood.
	ErrMalformedResponse = errors.New("authclient: malformed response")
)

// RejectedError carries a server refusal with its normalized reason.
type RejectedError struct {
	Status int
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("authclient: rejected (%d): %s", e.Status, e.Reason)
}

// ReasonOf extracts a user facing reason from err, or fallback.
func ReasonOf(err error, fallback string) string {
	var rejected *RejectedError
	if errors.As(err, &rejected) && rejected.Reason != "" {
		return rejected.Reason
	}
	return fallback
}
