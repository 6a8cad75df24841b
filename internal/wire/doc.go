// Package wire implements the line-oriented ASCII protocol spoken by the
// Kryon lighting controller.
//
// Outbound commands map 1:1 to single `\n`-terminated lines:
//
//	inicio:<mode>               start a lighting mode
//	inicio:<mode>,<intensity>   start a mode with an initial intensity
//	intensidad:<0-100>          set intensity
//	stop                        stop the current mode
//	completado                  session completed (alias of stop on the device)
//	test                        start the ~10s self-test
//	test:off                    cancel the self-test
//
// Inbound lines prefixed ">>" are status reports; everything else is raw
// telemetry. The codec is pure: it holds no connection state.
package wire
