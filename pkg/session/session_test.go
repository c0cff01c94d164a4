package session

import (
	"testing"

	"github.com/librespot-org/librespot-sub003/internal/sessionconfig"
	"github.com/librespot-org/librespot-sub003/internal/spirc"
)

// Connect itself isn't unit tested here: it dials a real TCP access point
// and performs a real login, the same network-wiring shape
// services/api/cmd/main.go's run() has zero tests for. Status, the one
// pure function this package adds, is tested directly against a
// hand-built Session.

func TestStatusReportsStoppedWithNoCurrentTrack(t *testing.T) {
	s := &Session{cfg: sessionconfig.SessionConfig{DeviceName: "test box"}, connect: spirc.New()}
	got := s.Status()
	if got.DeviceName != "test box" {
		t.Errorf("DeviceName = %q", got.DeviceName)
	}
	if got.PlayerStatus != "stopped" {
		t.Errorf("PlayerStatus = %q, want stopped", got.PlayerStatus)
	}
	if got.TrackURI != "" {
		t.Errorf("TrackURI = %q, want empty with no current track", got.TrackURI)
	}
}

func TestStatusReportsPlayingWithCurrentTrack(t *testing.T) {
	connect := spirc.New()
	if err := connect.Play([]spirc.ProvidedTrack{{URI: "spotify:track:abc", Provider: spirc.ProviderContext}}, "", false); err != nil {
		t.Fatalf("Play: %v", err)
	}

	s := &Session{cfg: sessionconfig.SessionConfig{DeviceName: "test box"}, connect: connect}
	got := s.Status()
	if got.PlayerStatus != "playing" {
		t.Errorf("PlayerStatus = %q, want playing", got.PlayerStatus)
	}
	if got.TrackURI != "spotify:track:abc" {
		t.Errorf("TrackURI = %q", got.TrackURI)
	}
}

func TestStatusReportsDisconnectedWithoutConn(t *testing.T) {
	s := &Session{cfg: sessionconfig.SessionConfig{}, connect: spirc.New()}
	if s.Status().Connected {
		t.Error("expected Connected=false with no underlying net.Conn")
	}
}
