package devicelink

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/kryonlabs/kryon-core/internal/identity"
)

// Port is an open serial device. go.bug.st/serial ports satisfy this
// directly; tests substitute fakes.
type Port interface {
	io.ReadWriteCloser

	// SetReadTimeout makes Read return (0, nil) after the given duration
	// with no data, so the read loop can poll its cancellation channel.
	SetReadTimeout(t time.Duration) error
}

// PortInfo describes one candidate serial device.
type PortInfo struct {
	// Name is the device node (e.g. "/dev/ttyUSB0").
	Name string

	// Identity is the USB vendor/product pair, zero for non-USB ports.
	Identity identity.DeviceIdentity

	// IsUSB reports whether the port is USB-backed.
	IsUSB bool
}

// Opener opens serial ports at the fixed device line configuration.
type Opener interface {
	Open(name string) (Port, error)
}

// Enumerator lists the serial ports present on the host.
type Enumerator interface {
	List() ([]PortInfo, error)
}

// PortChooser selects one port from the allowlist-filtered candidates.
// Returning ok=false declines the connection, which is a normal outcome,
// not an error.
type PortChooser func(candidates []PortInfo) (choice PortInfo, ok bool)

// DefaultVendorAllowlist covers the USB serial adapter chipsets commonly
// found on lighting controller hardware: CH340, FTDI, CP210x, Prolific,
// and Arduino-branded boards.
var DefaultVendorAllowlist = []uint16{0x1a86, 0x0403, 0x10c4, 0x067b, 0x2341}

// deviceMode is the fixed line configuration the controller firmware
// expects: 115200 baud, 8 data bits, 1 stop bit, no parity, no flow
// control.
var deviceMode = &serial.Mode{
	BaudRate: 115200,
	DataBits: 8,
	Parity:   serial.NoParity,
	StopBits: serial.OneStopBit,
}

// serialSystem is the production Opener and Enumerator backed by
// go.bug.st/serial.
type serialSystem struct{}

func (serialSystem) Open(name string) (Port, error) {
	port, err := serial.Open(name, deviceMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, name, err)
	}
	return port, nil
}

func (serialSystem) List() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotSupported, err)
	}

	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		info := PortInfo{Name: d.Name, IsUSB: d.IsUSB}
		if d.IsUSB {
			vid, verr := identity.ParseUSBID(d.VID)
			pid, perr := identity.ParseUSBID(d.PID)
			if verr == nil && perr == nil {
				info.Identity = identity.DeviceIdentity{VendorID: vid, ProductID: pid}
			}
		}
		out = append(out, info)
	}
	return out, nil
}
