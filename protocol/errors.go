package protocol

import "errors"

var (
	// ErrConfiguration indicates a malformed or ambiguous configuration.
	ErrConfiguration = errors.New("invalid protocol configuration")

	// ErrMalformedToken indicates a candidate lacks the start or end marker.
	ErrMalformedToken = errors.New("token does not start and end with required markers")

	// ErrInvalidKey indicates the embedded secret does not match the comm code.
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidControlCode indicates the wire token is not in the control table.
	ErrInvalidControlCode = errors.New("invalid control code")

	// ErrUnknownEvent is returned when encoding an event the table does not define.
	ErrUnknownEvent = errors.New("unknown control event")

	// ErrInvalidArgument is returned when an argument would terminate the token early.
	ErrInvalidArgument = errors.New("invalid control argument")
)
