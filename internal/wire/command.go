package wire

import (
	"fmt"
	"strings"
)

// Delimiter terminates every outbound line.
const Delimiter = "\n"

// Intensity bounds accepted by the device.
const (
	MinIntensity = 0
	MaxIntensity = 100
)

// NoIntensity omits the optional intensity argument from a StartMode command.
const NoIntensity = -1

// Mode identifies a lighting mode understood by the controller.
type Mode string

// Lighting modes accepted by the device firmware.
const (
	ModeGeneral      Mode = "general"
	ModeRojo         Mode = "rojo"
	ModeVerde        Mode = "verde"
	ModeAzul         Mode = "azul"
	ModeBlanco       Mode = "blanco"
	ModeIntermitente Mode = "intermitente"
	ModePausado      Mode = "pausado"
	ModeCascada      Mode = "cascada"
	ModeCascRev      Mode = "cascrev"
)

// knownModes is the closed set of modes the firmware accepts.
var knownModes = map[Mode]struct{}{
	ModeGeneral:      {},
	ModeRojo:         {},
	ModeVerde:        {},
	ModeAzul:         {},
	ModeBlanco:       {},
	ModeIntermitente: {},
	ModePausado:      {},
	ModeCascada:      {},
	ModeCascRev:      {},
}

// Valid reports whether the mode is one the device understands.
func (m Mode) Valid() bool {
	_, ok := knownModes[m]
	return ok
}

// Command is an outbound intent. Each implementation encodes to exactly one
// wire line, including the trailing delimiter.
type Command interface {
	// Encode returns the complete wire line for this command.
	Encode() (string, error)

	isCommand()
}

// StartMode begins a lighting mode, optionally with an initial intensity.
// Set Intensity to NoIntensity to omit the argument.
type StartMode struct {
	Mode      Mode
	Intensity int
}

func (StartMode) isCommand() {}

// Encode renders `inicio:<mode>` or `inicio:<mode>,<intensity>`.
// The intensity, when present, is clamped to [0,100].
func (c StartMode) Encode() (string, error) {
	if !c.Mode.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, c.Mode)
	}
	if c.Intensity == NoIntensity {
		return "inicio:" + string(c.Mode) + Delimiter, nil
	}
	return fmt.Sprintf("inicio:%s,%d%s", c.Mode, ClampIntensity(c.Intensity), Delimiter), nil
}

// SetIntensity adjusts the brightness of the running mode.
type SetIntensity struct {
	Value int
}

func (SetIntensity) isCommand() {}

// Encode renders `intensidad:<0-100>` with the value clamped.
func (c SetIntensity) Encode() (string, error) {
	return fmt.Sprintf("intensidad:%d%s", ClampIntensity(c.Value), Delimiter), nil
}

// Stop halts the current lighting mode.
type Stop struct{}

func (Stop) isCommand() {}

func (Stop) Encode() (string, error) {
	return "stop" + Delimiter, nil
}

// Complete signals normal session completion. The device treats it as a
// stop, but it is a semantically distinct event on the wire.
type Complete struct{}

func (Complete) isCommand() {}

func (Complete) Encode() (string, error) {
	return "completado" + Delimiter, nil
}

// SelfTestStart runs the device's ~10 second self-test sequence.
type SelfTestStart struct{}

func (SelfTestStart) isCommand() {}

func (SelfTestStart) Encode() (string, error) {
	return "test" + Delimiter, nil
}

// SelfTestCancel aborts a running self-test.
type SelfTestCancel struct{}

func (SelfTestCancel) isCommand() {}

func (SelfTestCancel) Encode() (string, error) {
	return "test:off" + Delimiter, nil
}

// RawLine is an escape hatch for lines the typed commands do not cover.
// The encoded output is always delimiter-terminated exactly once.
type RawLine struct {
	Line string
}

func (RawLine) isCommand() {}

func (c RawLine) Encode() (string, error) {
	line := strings.TrimRight(c.Line, "\r\n")
	if line == "" {
		return "", ErrEmptyLine
	}
	return line + Delimiter, nil
}

// ClampIntensity restricts a value to the [MinIntensity, MaxIntensity] range.
func ClampIntensity(value int) int {
	if value < MinIntensity {
		return MinIntensity
	}
	if value > MaxIntensity {
		return MaxIntensity
	}
	return value
}

// IsBoundaryIntensity reports whether a clamped value sits on a range
// boundary. Boundary values bypass debouncing so off/full-on always reach
// the device.
func IsBoundaryIntensity(value int) bool {
	clamped := ClampIntensity(value)
	return clamped == MinIntensity || clamped == MaxIntensity
}
