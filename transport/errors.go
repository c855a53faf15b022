package transport

import (
	"errors"
	"fmt"

	"github.com/opd-ai/securesocket/frame"
)

var (
	// ErrConfiguration indicates options that cannot produce a working actor.
	ErrConfiguration = frame.ErrConfiguration

	// ErrHandshake indicates the peer's key material never arrived or was invalid.
	ErrHandshake = errors.New("handshake failed")

	// ErrRateLimited marks a chunk dropped for arriving too quickly.
	ErrRateLimited = errors.New("chunk rate limit exceeded")

	// ErrTransport indicates a socket failure that ends the connection.
	ErrTransport = errors.New("transport failure")

	// ErrClosed is returned by operations on a closed actor.
	ErrClosed = errors.New("actor closed")

	// ErrInvalidState is returned when Startup is called twice.
	ErrInvalidState = errors.New("invalid actor state")
)

// OpError describes a failed socket operation with its address.
type OpError struct {
	Op   string // operation that caused the error
	Addr string // address if relevant
	Err  error  // underlying error
}

func (e *OpError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("securesocket %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("securesocket %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// newOpError wraps cause so that errors.Is matches both kind and cause.
func newOpError(op, addr string, kind, cause error) *OpError {
	return &OpError{
		Op:   op,
		Addr: addr,
		Err:  fmt.Errorf("%w: %w", kind, cause),
	}
}
