package sessionbus

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies a bus participant's function, fixed for its lifetime.
type Role string

const (
	// RoleController owns the authoritative session snapshot and drives
	// playback decisions. Exactly one controller per channel is expected.
	RoleController Role = "controller"

	// RoleDisplay mirrors state pushed by the controller and never
	// authors snapshot mutations locally.
	RoleDisplay Role = "display"
)

// ParseRole validates and converts a role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleController, RoleDisplay:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Message types recognized on the channel.
const (
	TypeHello     = "HELLO"
	TypeGoodbye   = "GOODBYE"
	TypePing      = "PING"
	TypePong      = "PONG"
	TypeFullState = "FULL_STATE"

	TypeSessionStart   = "SESSION_START"
	TypeSessionEnd     = "SESSION_END"
	TypeTherapyChange  = "THERAPY_CHANGE"
	TypePlay           = "PLAY"
	TypePause          = "PAUSE"
	TypeStop           = "STOP"
	TypeTimerSync      = "TIMER_SYNC"
	TypeVolumeChange   = "VOLUME_CHANGE"
	TypeColorChange    = "COLOR_CHANGE"
	TypePlaylistUpdate = "PLAYLIST_UPDATE"
)

// Envelope is the wire schema shared by all bus participants.
//
// Ordering is per-sender only; receivers discard envelopes whose From
// matches their own role, which also filters a participant's own broadcasts.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	From      Role            `json:"from"`
	Timestamp int64           `json:"timestamp"`
}

// NewEnvelope builds an envelope with the payload marshalled to JSON and
// the timestamp set to the current time in milliseconds.
func NewEnvelope(msgType string, payload any, from Role) (Envelope, error) {
	env := Envelope{
		Type:      msgType,
		From:      from,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("sessionbus: marshal %s payload: %w", msgType, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// PingPayload carries the sender's clock; the matching PONG echoes it so
// the probing side can measure round-trip time.
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// SessionStartPayload announces a new playback session.
type SessionStartPayload struct {
	Therapy   string `json:"therapy"`
	Session   string `json:"session"`
	TotalSec  int    `json:"totalSec"`
	PlayVideo bool   `json:"playVideo"`
	VideoOnly bool   `json:"videoOnly"`
}

// TherapyChangePayload carries everything a display needs to reproduce the
// controller's therapy switch without further messages.
type TherapyChangePayload struct {
	Therapy   string   `json:"therapy"`
	Duration  int      `json:"duration"`
	Index     int      `json:"index"`
	ColorMode string   `json:"colorMode"`
	Playlist  []string `json:"playlist"`
	PlayVideo bool     `json:"playVideo"`
	VideoOnly bool     `json:"videoOnly"`
}

// TimerSyncPayload realigns elapsed/total playback time on displays.
type TimerSyncPayload struct {
	ElapsedSec int `json:"elapsedSec"`
	TotalSec   int `json:"totalSec"`
}

// VolumeChangePayload carries the new volume level.
type VolumeChangePayload struct {
	Volume int `json:"volume"`
}

// ColorChangePayload carries the new lighting color mode.
type ColorChangePayload struct {
	ColorMode string `json:"colorMode"`
}

// PlaylistUpdatePayload replaces the playlist and current position.
type PlaylistUpdatePayload struct {
	Playlist      []string `json:"playlist"`
	PlaylistIndex int      `json:"playlistIndex"`
}
