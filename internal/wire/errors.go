package wire

import "errors"

// Domain errors for the wire codec.
var (
	// ErrInvalidMode is returned when a StartMode command names a mode the
	// device does not understand.
	ErrInvalidMode = errors.New("wire: invalid lighting mode")

	// ErrEmptyLine is returned when a RawLine command carries no content.
	ErrEmptyLine = errors.New("wire: empty raw line")
)
