// Package spirc implements the connect controller: a device-state model
// mirrored to other devices of the same account via Mercury/dealer pub-sub,
// command handling, and the playable queue (shuffle/repeat/transfer).
// Grounded on spec.md §4.10 and original_source/connect/src/state/*.rs.
package spirc

import (
	"math/rand"

	"github.com/librespot-org/librespot-sub003/internal/coreerr"
)

// Options mirrors protocol.player.ContextPlayerOptions's three toggles.
type Options struct {
	ShufflingContext bool
	RepeatingContext bool
	RepeatingTrack   bool
}

// Restrictions is derived state recomputed after every mutation, never
// set directly by a command handler.
type Restrictions struct {
	DisallowPeekingPrevReasons          []string
	DisallowSkippingPrevReasons         []string
	DisallowPeekingNextReasons          []string
	DisallowSkippingNextReasons         []string
	DisallowPausingReasons              []string
	DisallowResumingReasons             []string
	DisallowTogglingShuffleReasons      []string
	DisallowTogglingRepeatContextReasons []string
	DisallowTogglingRepeatTrackReasons   []string
}

// PlayerState is the subset of ConnectState.player spec.md §3 names.
type PlayerState struct {
	Track       *ProvidedTrack
	PositionMs  int64
	IsPlaying   bool
	IsPaused    bool
	IsBuffering bool
	Options     Options
	Restrictions Restrictions
}

// ConnectState is the device-state model mirrored to other devices.
// Invariants (spec.md §3): at most one of IsPlaying/IsPaused is true;
// ShufflingContext implies the active context carries a shuffle seed;
// Track is never nil while IsPlaying.
type ConnectState struct {
	Player PlayerState

	PrevTracks []ProvidedTrack
	NextTracks []ProvidedTrack

	QueueRevision uint64

	shuffleSeed    uint64
	hasShuffleSeed bool
	shuffleVec     *ShuffleVec[ProvidedTrack]
}

// New builds an empty ConnectState with no current track, not playing.
func New() *ConnectState {
	return &ConnectState{}
}

// CurrentTrack returns the currently playing/paused track, or nil.
func (s *ConnectState) CurrentTrack() *ProvidedTrack { return s.Player.Track }

func (s *ConnectState) bumpQueueRevision() { s.QueueRevision++ }

// ShuffleSeed returns the seed of the currently applied shuffle and
// whether one is applied at all — invariant (ii) requires a shuffling
// context to carry its seed.
func (s *ConnectState) ShuffleSeed() (seed uint64, ok bool) {
	return s.shuffleSeed, s.hasShuffleSeed
}

// SetTrack installs track as current, clearing IsBuffering per the
// original's transfer-completion path.
func (s *ConnectState) SetTrack(track ProvidedTrack) {
	s.Player.Track = &track
	s.Player.IsBuffering = false
}

// ClearPrevTracks empties the previous-tracks deque.
func (s *ConnectState) ClearPrevTracks() { s.PrevTracks = nil }

// ClearNextTracks empties the next-tracks deque.
func (s *ConnectState) ClearNextTracks() { s.NextTracks = nil }

// --- options (state/options.rs) ---

// SetRepeatContext toggles repeat-context and recomputes restrictions.
func (s *ConnectState) SetRepeatContext(repeat bool) {
	s.Player.Options.RepeatingContext = repeat
	s.UpdateRestrictions()
}

// SetRepeatTrack toggles repeat-track and recomputes restrictions.
func (s *ConnectState) SetRepeatTrack(repeat bool) {
	s.Player.Options.RepeatingTrack = repeat
	s.UpdateRestrictions()
}

// SetShuffleOption toggles the shuffling_context option flag without
// performing the shuffle itself (see Shuffle for that).
func (s *ConnectState) SetShuffleOption(shuffle bool) {
	s.Player.Options.ShufflingContext = shuffle
	s.UpdateRestrictions()
}

// ResetOptions clears all three toggles, per reset_options.
func (s *ConnectState) ResetOptions() {
	s.SetShuffleOption(false)
	s.SetRepeatTrack(false)
	s.SetRepeatContext(false)
}

// Shuffle re-shuffles NextTracks (treated as the active context's
// queueable tail) with the given seed, or a fresh random seed if seed is
// nil. Fails with FailedPrecondition if shuffling is currently disallowed.
func (s *ConnectState) Shuffle(seed *uint64) error {
	if len(s.Player.Restrictions.DisallowTogglingShuffleReasons) > 0 {
		return coreerr.FailedPrecondition(errShuffleDisallowed{reason: s.Player.Restrictions.DisallowTogglingShuffleReasons[0]})
	}

	s.ClearPrevTracks()

	var seedVal uint64
	if seed != nil {
		seedVal = *seed
	} else {
		seedVal = 100_000_000_000 + uint64(rand.Int63n(900_000_000_000))
	}

	s.shuffleVec = NewShuffleVec(s.NextTracks)
	s.shuffleVec.ShuffleWithSeed(seedVal)
	s.NextTracks = s.shuffleVec.Items()
	s.shuffleSeed = seedVal
	s.hasShuffleSeed = true

	s.Player.Options.ShufflingContext = true
	s.UpdateRestrictions()
	return nil
}

// Unshuffle restores NextTracks to its pre-shuffle order (by replaying the
// swaps recorded by the last Shuffle call) and clears the
// shuffling_context option. A no-op if the state is not currently
// shuffled.
func (s *ConnectState) Unshuffle() {
	if s.shuffleVec == nil {
		return
	}
	s.shuffleVec.Unshuffle()
	s.NextTracks = s.shuffleVec.Items()
	s.shuffleVec = nil
	s.hasShuffleSeed = false
	s.Player.Options.ShufflingContext = false
	s.UpdateRestrictions()
}

type errShuffleDisallowed struct{ reason string }

func (e errShuffleDisallowed) Error() string { return "shuffle disallowed: " + e.reason }

// --- restrictions (state/restrictions.rs) ---

const (
	reasonNoPrev          = "no previous tracks"
	reasonNoNext          = "no next tracks"
	reasonAutoplay        = "autoplay"
	reasonEndlessContext  = "endless_context"
	reasonNotPaused       = "not_paused"
	reasonNotPlaying      = "not_playing"
)

// UpdateRestrictions recomputes Player.Restrictions from the current
// play/pause state, queue emptiness, and track provider/options —
// exactly the derivation original_source/connect/src/state/restrictions.rs
// performs after every state mutation.
func (s *ConnectState) UpdateRestrictions() {
	r := &s.Player.Restrictions

	if s.Player.IsPlaying {
		r.DisallowPausingReasons = nil
		r.DisallowResumingReasons = []string{reasonNotPaused}
	}
	if s.Player.IsPaused {
		r.DisallowResumingReasons = nil
		r.DisallowPausingReasons = []string{reasonNotPlaying}
	}

	if len(s.PrevTracks) == 0 {
		r.DisallowPeekingPrevReasons = []string{reasonNoPrev}
		r.DisallowSkippingPrevReasons = []string{reasonNoPrev}
	} else {
		r.DisallowPeekingPrevReasons = nil
		r.DisallowSkippingPrevReasons = nil
	}

	if len(s.NextTracks) == 0 {
		r.DisallowPeekingNextReasons = []string{reasonNoNext}
		r.DisallowSkippingNextReasons = []string{reasonNoNext}
	} else {
		r.DisallowPeekingNextReasons = nil
		r.DisallowSkippingNextReasons = nil
	}

	switch {
	case s.Player.Track != nil && s.Player.Track.IsAutoplay():
		r.DisallowTogglingShuffleReasons = []string{reasonAutoplay}
		r.DisallowTogglingRepeatContextReasons = []string{reasonAutoplay}
		r.DisallowTogglingRepeatTrackReasons = []string{reasonAutoplay}
	case s.Player.Options.RepeatingContext:
		r.DisallowTogglingShuffleReasons = []string{reasonEndlessContext}
		r.DisallowTogglingRepeatContextReasons = nil
		r.DisallowTogglingRepeatTrackReasons = nil
	default:
		r.DisallowTogglingShuffleReasons = nil
		r.DisallowTogglingRepeatContextReasons = nil
		r.DisallowTogglingRepeatTrackReasons = nil
	}
}

// --- queue consumption ---

// SkipNext advances to the next track. If the displaced current track has
// provider=queue, it is NOT pushed to PrevTracks (the original's
// queue-consumption rule: a queue track that was skipped past leaves no
// trace in history); otherwise the current track moves to PrevTracks as
// usual.
func (s *ConnectState) SkipNext() error {
	if len(s.NextTracks) == 0 {
		return coreerr.FailedPrecondition(errNoNextTracks{})
	}
	head := s.NextTracks[0]
	s.NextTracks = s.NextTracks[1:]

	if current := s.Player.Track; current != nil && !current.IsQueue() {
		s.PrevTracks = append(s.PrevTracks, *current)
	}

	s.SetTrack(head)
	s.bumpQueueRevision()
	s.UpdateRestrictions()
	return nil
}

type errNoNextTracks struct{}

func (errNoNextTracks) Error() string { return "no next tracks to skip to" }

// SkipPrev moves the current track back to the front of NextTracks and
// pops the most recent PrevTracks entry as the new current track.
func (s *ConnectState) SkipPrev() error {
	if len(s.PrevTracks) == 0 {
		return coreerr.FailedPrecondition(errNoPrevTracks{})
	}
	last := s.PrevTracks[len(s.PrevTracks)-1]
	s.PrevTracks = s.PrevTracks[:len(s.PrevTracks)-1]

	if current := s.Player.Track; current != nil {
		s.NextTracks = append([]ProvidedTrack{*current}, s.NextTracks...)
	}

	s.SetTrack(last)
	s.bumpQueueRevision()
	s.UpdateRestrictions()
	return nil
}

type errNoPrevTracks struct{}

func (errNoPrevTracks) Error() string { return "no previous tracks to skip to" }

// AddToQueue appends a provider=queue track to NextTracks and bumps the
// queue revision, per the add_to_queue dealer endpoint.
func (s *ConnectState) AddToQueue(track ProvidedTrack) {
	track.Provider = ProviderQueue
	s.NextTracks = append(s.NextTracks, track)
	s.bumpQueueRevision()
	s.UpdateRestrictions()
}

// SetQueue replaces both deques wholesale, per the set_queue dealer
// endpoint.
func (s *ConnectState) SetQueue(prev, next []ProvidedTrack) {
	s.PrevTracks = prev
	s.NextTracks = next
	s.bumpQueueRevision()
	s.UpdateRestrictions()
}
