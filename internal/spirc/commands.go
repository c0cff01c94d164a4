package spirc

import "github.com/librespot-org/librespot-sub003/internal/coreerr"

// TransferState is the subset of protocol.transfer_state.TransferState
// carried across a device-to-device handoff: the options to adopt, the
// paused flag, and the current/queued tracks to resume from. Grounded on
// original_source/connect/src/state/transfer.rs.
type TransferState struct {
	Options        Options
	IsPaused       bool
	CurrentTrack   *ProvidedTrack
	CurrentUID     string
	IsPlayingQueue bool
	QueueTracks    []ProvidedTrack
}

// Transfer restores ConnectState from a TransferState (the dealer's
// "transfer" endpoint), per handle_initial_transfer + finish_transfer.
func (s *ConnectState) Transfer(t TransferState) error {
	s.Player.Options = t.Options
	s.Player.IsPaused = t.IsPaused
	s.Player.IsPlaying = !t.IsPaused
	s.Player.IsBuffering = false

	s.ClearPrevTracks()
	s.ClearNextTracks()
	s.bumpQueueRevision()

	var current ProvidedTrack
	switch {
	case t.IsPlayingQueue && len(t.QueueTracks) > 0:
		current = t.QueueTracks[0]
	case t.CurrentTrack != nil:
		current = *t.CurrentTrack
	default:
		return coreerr.FailedPrecondition(errCouldNotResolveTransferTrack{})
	}
	s.SetTrack(current)

	for i, qt := range t.QueueTracks {
		if t.IsPlayingQueue && i == 0 {
			continue
		}
		s.AddToQueue(qt)
	}

	if s.Player.Options.ShufflingContext {
		if err := s.Shuffle(nil); err != nil {
			return err
		}
	}

	s.UpdateRestrictions()
	return nil
}

type errCouldNotResolveTransferTrack struct{}

func (errCouldNotResolveTransferTrack) Error() string {
	return "could not resolve a current track from transfer state"
}

// Play loads a fresh context (represented here simply as the ordered
// tracks the caller has already resolved) and optionally skips to one of
// them before starting playback, per the "play" dealer endpoint.
func (s *ConnectState) Play(tracks []ProvidedTrack, skipToUID string, initiallyPaused bool) error {
	if len(tracks) == 0 {
		return coreerr.InvalidArgument(errEmptyContext{})
	}
	skipIndex := 0
	if skipToUID != "" {
		for i, t := range tracks {
			if t.UID == skipToUID {
				skipIndex = i
				break
			}
		}
	}

	s.ClearPrevTracks()
	s.SetTrack(tracks[skipIndex])
	s.NextTracks = append([]ProvidedTrack(nil), tracks[skipIndex+1:]...)
	s.Player.IsPaused = initiallyPaused
	s.Player.IsPlaying = !initiallyPaused
	s.bumpQueueRevision()
	s.UpdateRestrictions()
	return nil
}

type errEmptyContext struct{}

func (errEmptyContext) Error() string { return "cannot play an empty context" }

// Pause and Resume toggle IsPlaying/IsPaused, enforcing spec.md §3
// invariant (i): at most one of them is true at a time.
func (s *ConnectState) Pause() error {
	if len(s.Player.Restrictions.DisallowPausingReasons) > 0 {
		return coreerr.FailedPrecondition(errDisallowed{"pause", s.Player.Restrictions.DisallowPausingReasons[0]})
	}
	s.Player.IsPlaying = false
	s.Player.IsPaused = true
	s.UpdateRestrictions()
	return nil
}

func (s *ConnectState) Resume() error {
	if len(s.Player.Restrictions.DisallowResumingReasons) > 0 {
		return coreerr.FailedPrecondition(errDisallowed{"resume", s.Player.Restrictions.DisallowResumingReasons[0]})
	}
	s.Player.IsPlaying = true
	s.Player.IsPaused = false
	s.UpdateRestrictions()
	return nil
}

type errDisallowed struct{ action, reason string }

func (e errDisallowed) Error() string { return e.action + " disallowed: " + e.reason }

// SeekTo updates the reported playback position; actually seeking the
// decoder is the Player's concern (spec.md §4.11), this only updates the
// mirrored state.
func (s *ConnectState) SeekTo(positionMs int64) {
	s.Player.PositionMs = positionMs
}

// SetShufflingContext implements the "set_shuffling_context" endpoint:
// enabling shuffles NextTracks with a fresh seed, disabling restores
// order.
func (s *ConnectState) SetShufflingContext(enable bool) error {
	if enable {
		return s.Shuffle(nil)
	}
	s.Unshuffle()
	return nil
}

// SetRepeatingContext implements "set_repeating_context": enabling repeat
// context always disables shuffle and resets to the context's default
// order, matching the original's reset_context(DefaultIndex) call before
// re-deriving restrictions.
func (s *ConnectState) SetRepeatingContext(enable bool) {
	if enable {
		s.Unshuffle()
	}
	s.SetRepeatContext(enable)
}

// SetRepeatingTrack implements "set_repeating_track".
func (s *ConnectState) SetRepeatingTrack(enable bool) {
	s.SetRepeatTrack(enable)
}

// SetOptions is the composite form of SetShufflingContext/
// SetRepeatingContext/SetRepeatingTrack carried by "set_options".
func (s *ConnectState) SetOptions(shuffle, repeatContext, repeatTrack bool) error {
	if err := s.SetShufflingContext(shuffle); err != nil {
		return err
	}
	s.SetRepeatingContext(repeatContext)
	s.SetRepeatingTrack(repeatTrack)
	return nil
}
