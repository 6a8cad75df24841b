package sessionbus

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestSessionStartResetsPlayback(t *testing.T) {
	s := SessionSnapshot{ElapsedSec: 120, IsPlaying: false}
	s.applySessionStart(SessionStartPayload{
		Therapy:   "relax",
		Session:   "s-9",
		TotalSec:  600,
		PlayVideo: true,
	})

	if !s.IsPlaying || s.ElapsedSec != 0 {
		t.Errorf("session start should reset playback: %+v", s)
	}
	if s.Therapy != "relax" || s.Session != "s-9" || s.TotalSec != 600 || !s.PlayVideo {
		t.Errorf("unexpected fields: %+v", s)
	}
}

func TestSessionEndClearsSession(t *testing.T) {
	s := SessionSnapshot{Session: "s-9", IsPlaying: true, ElapsedSec: 45, Therapy: "relax"}
	s.applySessionEnd()

	if s.Session != "" || s.IsPlaying || s.ElapsedSec != 0 {
		t.Errorf("session end should clear session state: %+v", s)
	}
	if s.Therapy != "relax" {
		t.Error("session end should not touch therapy")
	}
}

func TestStopRewindsTimer(t *testing.T) {
	s := SessionSnapshot{IsPlaying: true, ElapsedSec: 30, TotalSec: 300}
	s.applyStop()

	if s.IsPlaying || s.ElapsedSec != 0 {
		t.Errorf("stop should halt and rewind: %+v", s)
	}
	if s.TotalSec != 300 {
		t.Error("stop should not touch total duration")
	}
}

func TestCloneIsolatesPlaylist(t *testing.T) {
	s := SessionSnapshot{Playlist: []string{"a", "b"}}
	c := s.clone()
	c.Playlist[0] = "mutated"

	if s.Playlist[0] != "a" {
		t.Error("clone should not share the playlist slice")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(TypeTherapyChange, TherapyChangePayload{
		Therapy:  "chromo",
		Duration: 900,
		Playlist: []string{"x.mp4"},
	}, RoleController)
	if err != nil {
		t.Fatal(err)
	}
	if env.Timestamp == 0 {
		t.Error("expected timestamp to be set")
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}

	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Type != TypeTherapyChange || decoded.From != RoleController {
		t.Errorf("unexpected envelope: %+v", decoded)
	}

	var p TherapyChangePayload
	if err := json.Unmarshal(decoded.Payload, &p); err != nil {
		t.Fatal(err)
	}
	want := TherapyChangePayload{Therapy: "chromo", Duration: 900, Playlist: []string{"x.mp4"}}
	if !reflect.DeepEqual(p, want) {
		t.Errorf("payload %+v != %+v", p, want)
	}
}

func TestEnvelopeWithoutPayload(t *testing.T) {
	env, err := NewEnvelope(TypeHello, nil, RoleDisplay)
	if err != nil {
		t.Fatal(err)
	}
	if env.Payload != nil {
		t.Error("HELLO should carry no payload")
	}
}
