package spirc

import "testing"

// TestQueueConsumptionScenario mirrors spec.md §8's literal scenario:
// current=A, next=[Q1(queue), C2(context), C3(context)]. After skip_next,
// current=Q1, next=[C2,C3], prev=[A]. After another skip_next, current=C2,
// next=[C3], prev=[A] (Q1 is consumed, not retained in prev).
func TestQueueConsumptionScenario(t *testing.T) {
	s := New()
	s.SetTrack(ProvidedTrack{URI: "A", Provider: ProviderContext})
	s.NextTracks = []ProvidedTrack{
		{URI: "Q1", Provider: ProviderQueue},
		{URI: "C2", Provider: ProviderContext},
		{URI: "C3", Provider: ProviderContext},
	}
	s.UpdateRestrictions()

	if err := s.SkipNext(); err != nil {
		t.Fatalf("first SkipNext: %v", err)
	}
	if s.Player.Track.URI != "Q1" {
		t.Fatalf("current = %q, want Q1", s.Player.Track.URI)
	}
	assertURIs(t, "next", s.NextTracks, "C2", "C3")
	assertURIs(t, "prev", s.PrevTracks, "A")

	if err := s.SkipNext(); err != nil {
		t.Fatalf("second SkipNext: %v", err)
	}
	if s.Player.Track.URI != "C2" {
		t.Fatalf("current = %q, want C2", s.Player.Track.URI)
	}
	assertURIs(t, "next", s.NextTracks, "C3")
	assertURIs(t, "prev", s.PrevTracks, "A")
}

func assertURIs(t *testing.T, label string, got []ProvidedTrack, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", label, uris(got), want)
	}
	for i, w := range want {
		if got[i].URI != w {
			t.Fatalf("%s = %v, want %v", label, uris(got), want)
		}
	}
}

func uris(tracks []ProvidedTrack) []string {
	out := make([]string, len(tracks))
	for i, tr := range tracks {
		out[i] = tr.URI
	}
	return out
}

func TestSkipNextFailsOnEmptyQueue(t *testing.T) {
	s := New()
	s.SetTrack(ProvidedTrack{URI: "A"})
	if err := s.SkipNext(); err == nil {
		t.Error("expected SkipNext to fail with an empty next-tracks queue")
	}
}

func TestSkipPrevReturnsTrackToFrontOfNext(t *testing.T) {
	s := New()
	s.SetTrack(ProvidedTrack{URI: "B"})
	s.PrevTracks = []ProvidedTrack{{URI: "A"}}
	s.NextTracks = []ProvidedTrack{{URI: "C"}}
	s.UpdateRestrictions()

	if err := s.SkipPrev(); err != nil {
		t.Fatalf("SkipPrev: %v", err)
	}
	if s.Player.Track.URI != "A" {
		t.Fatalf("current = %q, want A", s.Player.Track.URI)
	}
	assertURIs(t, "next", s.NextTracks, "B", "C")
	assertURIs(t, "prev", s.PrevTracks)
}

func TestAddToQueueTagsProviderAndBumpsRevision(t *testing.T) {
	s := New()
	before := s.QueueRevision
	s.AddToQueue(ProvidedTrack{URI: "X", Provider: ProviderContext})

	if s.QueueRevision == before {
		t.Error("QueueRevision did not change")
	}
	last := s.NextTracks[len(s.NextTracks)-1]
	if last.Provider != ProviderQueue {
		t.Errorf("queued track provider = %q, want %q", last.Provider, ProviderQueue)
	}
}

func TestTransferRestoresStateFromQueue(t *testing.T) {
	s := New()
	err := s.Transfer(TransferState{
		Options:        Options{RepeatingTrack: true},
		IsPaused:       true,
		IsPlayingQueue: true,
		QueueTracks: []ProvidedTrack{
			{URI: "current", Provider: ProviderQueue},
			{URI: "next1", Provider: ProviderQueue},
		},
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if s.Player.Track.URI != "current" {
		t.Fatalf("current track = %q, want %q", s.Player.Track.URI, "current")
	}
	if !s.Player.IsPaused || s.Player.IsPlaying {
		t.Errorf("IsPaused=%v IsPlaying=%v, want true/false", s.Player.IsPaused, s.Player.IsPlaying)
	}
	if !s.Player.Options.RepeatingTrack {
		t.Error("RepeatingTrack option was not carried over from TransferState")
	}
	assertURIs(t, "next", s.NextTracks, "next1")
}

func TestPlaySkipsToRequestedUID(t *testing.T) {
	s := New()
	tracks := []ProvidedTrack{
		{URI: "a", UID: "uid-a"},
		{URI: "b", UID: "uid-b"},
		{URI: "c", UID: "uid-c"},
	}
	if err := s.Play(tracks, "uid-b", false); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if s.Player.Track.URI != "b" {
		t.Fatalf("current = %q, want b", s.Player.Track.URI)
	}
	assertURIs(t, "next", s.NextTracks, "c")
}
