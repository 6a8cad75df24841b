package sessionbus

import "errors"

var (
	// ErrChannelUnavailable indicates the pub/sub channel capability is
	// missing. Init degrades to single-context operation instead of
	// returning this; it is surfaced only by operations that require an
	// open channel.
	ErrChannelUnavailable = errors.New("sessionbus: channel unavailable")

	// ErrNotInitialized indicates an operation was attempted before Init
	// or after Destroy.
	ErrNotInitialized = errors.New("sessionbus: not initialized")

	// ErrInvalidRole indicates an unrecognized participant role.
	ErrInvalidRole = errors.New("sessionbus: invalid role")

	// ErrNotController indicates a controller-only intent method was
	// called on a display participant.
	ErrNotController = errors.New("sessionbus: operation requires controller role")
)
