package sessionbus

// SessionSnapshot is the authoritative session state mirrored across the
// channel. The controller owns the canonical copy; displays hold a mirror
// mutated only by inbound messages.
//
// Every domain event applies the same mutation on both sides, so a display
// replaying the controller's payloads reaches field-identical state.
type SessionSnapshot struct {
	Therapy       string   `json:"therapy"`
	Session       string   `json:"session"`
	IsPlaying     bool     `json:"isPlaying"`
	ElapsedSec    int      `json:"elapsedSec"`
	TotalSec      int      `json:"totalSec"`
	Volume        int      `json:"volume"`
	ColorMode     string   `json:"colorMode"`
	Playlist      []string `json:"playlist"`
	PlaylistIndex int      `json:"playlistIndex"`
	PlayVideo     bool     `json:"playVideo"`
	VideoOnly     bool     `json:"videoOnly"`
}

// clone returns a deep copy so callers can hand snapshots out without
// exposing the internal playlist slice.
func (s SessionSnapshot) clone() SessionSnapshot {
	out := s
	if s.Playlist != nil {
		out.Playlist = make([]string, len(s.Playlist))
		copy(out.Playlist, s.Playlist)
	}
	return out
}

func (s *SessionSnapshot) applySessionStart(p SessionStartPayload) {
	s.Therapy = p.Therapy
	s.Session = p.Session
	s.TotalSec = p.TotalSec
	s.PlayVideo = p.PlayVideo
	s.VideoOnly = p.VideoOnly
	s.IsPlaying = true
	s.ElapsedSec = 0
}

func (s *SessionSnapshot) applySessionEnd() {
	s.Session = ""
	s.IsPlaying = false
	s.ElapsedSec = 0
}

func (s *SessionSnapshot) applyTherapyChange(p TherapyChangePayload) {
	s.Therapy = p.Therapy
	s.TotalSec = p.Duration
	s.PlaylistIndex = p.Index
	s.ColorMode = p.ColorMode
	s.Playlist = p.Playlist
	s.PlayVideo = p.PlayVideo
	s.VideoOnly = p.VideoOnly
	s.ElapsedSec = 0
}

func (s *SessionSnapshot) applyPlay() {
	s.IsPlaying = true
}

func (s *SessionSnapshot) applyPause() {
	s.IsPlaying = false
}

func (s *SessionSnapshot) applyStop() {
	s.IsPlaying = false
	s.ElapsedSec = 0
}

func (s *SessionSnapshot) applyTimerSync(p TimerSyncPayload) {
	s.ElapsedSec = p.ElapsedSec
	s.TotalSec = p.TotalSec
}

func (s *SessionSnapshot) applyVolumeChange(p VolumeChangePayload) {
	s.Volume = p.Volume
}

func (s *SessionSnapshot) applyColorChange(p ColorChangePayload) {
	s.ColorMode = p.ColorMode
}

func (s *SessionSnapshot) applyPlaylistUpdate(p PlaylistUpdatePayload) {
	s.Playlist = p.Playlist
	s.PlaylistIndex = p.PlaylistIndex
}
