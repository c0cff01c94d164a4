package spirc

import "testing"

func TestSetRepeatContextEnablesToggleRestriction(t *testing.T) {
	s := New()
	s.SetTrack(ProvidedTrack{URI: "spotify:track:a", Provider: ProviderContext})
	s.UpdateRestrictions()

	s.SetRepeatContext(true)

	if !s.Player.Options.RepeatingContext {
		t.Error("RepeatingContext = false, want true")
	}
	if s.Player.Options.ShufflingContext {
		t.Error("ShufflingContext = true, want false")
	}
	if len(s.Player.Restrictions.DisallowTogglingShuffleReasons) == 0 {
		t.Error("DisallowTogglingShuffleReasons is empty, want non-empty")
	}
}

func TestUpdateRestrictionsEmptyQueuesDisallowPeekAndSkip(t *testing.T) {
	s := New()
	s.UpdateRestrictions()

	if len(s.Player.Restrictions.DisallowSkippingPrevReasons) == 0 {
		t.Error("expected DisallowSkippingPrevReasons to be set with no prev tracks")
	}
	if len(s.Player.Restrictions.DisallowSkippingNextReasons) == 0 {
		t.Error("expected DisallowSkippingNextReasons to be set with no next tracks")
	}

	s.NextTracks = []ProvidedTrack{{URI: "spotify:track:b"}}
	s.UpdateRestrictions()
	if len(s.Player.Restrictions.DisallowSkippingNextReasons) != 0 {
		t.Error("expected DisallowSkippingNextReasons to clear once a next track exists")
	}
}

func TestAutoplayTrackDisallowsShuffleAndRepeatToggles(t *testing.T) {
	s := New()
	s.SetTrack(ProvidedTrack{URI: "spotify:track:a", Provider: ProviderAutoplay})
	s.UpdateRestrictions()

	if len(s.Player.Restrictions.DisallowTogglingShuffleReasons) == 0 {
		t.Error("expected shuffle toggle disallowed for an autoplay track")
	}
	if len(s.Player.Restrictions.DisallowTogglingRepeatContextReasons) == 0 {
		t.Error("expected repeat-context toggle disallowed for an autoplay track")
	}
}

func TestPauseAndResumeAreMutuallyExclusive(t *testing.T) {
	s := New()
	s.SetTrack(ProvidedTrack{URI: "spotify:track:a"})
	s.Player.IsPlaying = true
	s.UpdateRestrictions()

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if s.Player.IsPlaying || !s.Player.IsPaused {
		t.Errorf("after Pause: IsPlaying=%v IsPaused=%v, want false/true", s.Player.IsPlaying, s.Player.IsPaused)
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !s.Player.IsPlaying || s.Player.IsPaused {
		t.Errorf("after Resume: IsPlaying=%v IsPaused=%v, want true/false", s.Player.IsPlaying, s.Player.IsPaused)
	}
}

func TestShuffleFailsWhenDisallowed(t *testing.T) {
	s := New()
	s.SetTrack(ProvidedTrack{URI: "spotify:track:a", Provider: ProviderAutoplay})
	s.NextTracks = []ProvidedTrack{{URI: "spotify:track:b"}}
	s.UpdateRestrictions()

	if err := s.Shuffle(nil); err == nil {
		t.Error("expected Shuffle to fail when toggling shuffle is disallowed")
	}
}

func TestShuffleThenUnshuffleRestoresQueueOrder(t *testing.T) {
	s := New()
	original := []ProvidedTrack{
		{URI: "spotify:track:1"}, {URI: "spotify:track:2"}, {URI: "spotify:track:3"}, {URI: "spotify:track:4"},
	}
	s.NextTracks = append([]ProvidedTrack(nil), original...)
	s.UpdateRestrictions()

	seed := uint64(12345)
	if err := s.Shuffle(&seed); err != nil {
		t.Fatalf("Shuffle: %v", err)
	}
	if !s.Player.Options.ShufflingContext {
		t.Error("ShufflingContext = false after Shuffle, want true")
	}
	if gotSeed, ok := s.ShuffleSeed(); !ok || gotSeed != seed {
		t.Errorf("ShuffleSeed() = (%d, %v), want (%d, true)", gotSeed, ok, seed)
	}

	s.Unshuffle()
	for i, want := range original {
		if s.NextTracks[i].URI != want.URI {
			t.Fatalf("NextTracks[%d] = %q after unshuffle, want %q", i, s.NextTracks[i].URI, want.URI)
		}
	}
	if s.Player.Options.ShufflingContext {
		t.Error("ShufflingContext = true after Unshuffle, want false")
	}
}
