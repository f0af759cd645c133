package core

import (
	"errors"
	"fmt"
)

var (
	ErrChannelUnavailable  = errors.New("signaling channel unavailable")
	ErrChannelTimeout      = errors.New("signaling request timed out")
	ErrCapabilityLoad      = errors.New("router capabilities could not be loaded")
	ErrTransportNotReady   = errors.New("transport not ready")
	ErrNegotiationRejected = errors.New("negotiation rejected")
	ErrMediaAcquisition    = errors.New("local media unavailable")
)

// OpError attaches the failing operation to an error.
type OpError struct {
	Op      string
	Err     error
	Details string
}

func (e *OpError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func NewOpError(op string, err error, details string) *OpError {
	return &OpError{Op: op, Err: err, Details: details}
}

// RemoteError is an error value returned by the server for a request.
type RemoteError struct {
	Method string
	Reason string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s rejected by server: %s", e.Method, e.Reason)
}
