package devicelink

import "errors"

var (
	// ErrNotSupported indicates the host lacks serial capability. Fatal
	// to the device feature, not the application.
	ErrNotSupported = errors.New("devicelink: serial capability not available")

	// ErrNotConnected indicates an operation requiring an open link.
	// Recoverable by connecting.
	ErrNotConnected = errors.New("devicelink: not connected")

	// ErrAlreadyConnected indicates Connect was called while a connection
	// attempt or open link already exists.
	ErrAlreadyConnected = errors.New("devicelink: link already active")

	// ErrPortBusy indicates another Link in this process already owns
	// the port.
	ErrPortBusy = errors.New("devicelink: port owned by another link")

	// ErrOpenFailed wraps serial open failures.
	ErrOpenFailed = errors.New("devicelink: open failed")

	// ErrWriteFailed wraps serial write faults. A write fault forces the
	// link to disconnect before the error is returned.
	ErrWriteFailed = errors.New("devicelink: write failed")
)
