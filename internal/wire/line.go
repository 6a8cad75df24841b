package wire

import "strings"

// StatusPrefix marks an inbound line as a structured status report.
const StatusPrefix = ">>"

// LineKind classifies an inbound line.
type LineKind int

const (
	// LineData is unstructured device telemetry.
	LineData LineKind = iota

	// LineStatus is a status report (prefixed with StatusPrefix).
	LineStatus
)

// String returns a human-readable kind name.
func (k LineKind) String() string {
	if k == LineStatus {
		return "status"
	}
	return "data"
}

// Line is one decoded inbound line from the device.
type Line struct {
	// Kind classifies the line.
	Kind LineKind

	// Text is the full trimmed line as received.
	Text string

	// Message is the status text with the marker stripped.
	// Only populated for LineStatus.
	Message string
}

// DecodeLine trims and classifies one complete inbound line.
// Empty input decodes to an empty data line; callers typically skip those.
func DecodeLine(raw string) Line {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, StatusPrefix) {
		return Line{
			Kind:    LineStatus,
			Text:    text,
			Message: strings.TrimSpace(strings.TrimPrefix(text, StatusPrefix)),
		}
	}

	return Line{
		Kind: LineData,
		Text: text,
	}
}
