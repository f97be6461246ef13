package core

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/veselov/meetsync/internal/domain"
)

var (
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrInvalidKind        = errors.New("invalid track kind")
)

// StateStore is the single source of truth for participant media state.
// Thread-safe; accessors hand out copies, never live references.
type StateStore struct {
	mu     sync.RWMutex
	states map[domain.ParticipantID]*domain.ParticipantState
}

func NewStateStore() *StateStore {
	return &StateStore{
		states: make(map[domain.ParticipantID]*domain.ParticipantState),
	}
}

// Upsert lazily creates a default-off record. Idempotent; IsLocal is fixed
// at creation and never changed by later calls.
func (s *StateStore) Upsert(id domain.ParticipantID, isLocal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[id]; ok {
		return
	}
	st := domain.NewParticipantState(id, isLocal)
	s.states[id] = &st
	log.Debug().Str("module", "core.state").Str("participant", string(id)).Bool("local", isLocal).Msg("state created")
}

// ApplyTrackEvent updates the slot selected by (kind, source) and marks the
// record as needing a reconciliation pass. The participant must exist.
func (s *StateStore) ApplyTrackEvent(id domain.ParticipantID, kind domain.TrackKind, source domain.TrackSource, hasTrack, muted bool) error {
	if !kind.Valid() && !source.IsScreenShare() {
		log.Warn().Str("module", "core.state").Str("participant", string(id)).Str("kind", string(kind)).Msg("rejected track event with invalid kind")
		return ErrInvalidKind
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return ErrUnknownParticipant
	}

	switch {
	case source.IsScreenShare():
		st.HasScreenShare = hasTrack
		st.ScreenShareMuted = muted
	case kind == domain.TrackKindVideo:
		st.HasVideo = hasTrack
		st.VideoMuted = muted
	case kind == domain.TrackKindAudio:
		st.HasAudio = hasTrack
		st.AudioMuted = muted
	}

	st.LastUpdate = time.Now()
	st.UISynced = false

	log.Debug().Str("module", "core.state").
		Str("participant", string(id)).
		Str("kind", string(kind)).
		Str("source", string(source)).
		Bool("has_track", hasTrack).
		Bool("muted", muted).
		Msg("track state applied")
	return nil
}

func (s *StateStore) Remove(id domain.ParticipantID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, id)
	log.Debug().Str("module", "core.state").Str("participant", string(id)).Msg("state removed")
}

// Snapshot returns a copy of the participant's state. Unknown participants
// read as the fail-safe all-off default, reported by the second result.
func (s *StateStore) Snapshot(id domain.ParticipantID) (domain.ParticipantState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.states[id]; ok {
		return *st, true
	}
	return domain.NewParticipantState(id, false), false
}

func (s *StateStore) SnapshotAll() []domain.ParticipantState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.MapToSlice(s.states, func(_ domain.ParticipantID, st *domain.ParticipantState) domain.ParticipantState {
		return *st
	})
}

func (s *StateStore) IDs() []domain.ParticipantID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Keys(s.states)
}

// MarkSynced records a completed reconciliation pass. The reconciler is the
// only caller; everything else only clears the flag through ApplyTrackEvent.
func (s *StateStore) MarkSynced(id domain.ParticipantID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[id]; ok {
		st.UISynced = true
	}
}
