// Package session orchestrates the device link and the session bus.
//
// The Controller is the single entry point for session intents: starting a
// therapy drives the lighting controller (mode, intensity) and broadcasts
// the matching bus event in one call. The device is optional; intents
// still update and broadcast session state when no hardware is attached.
package session
