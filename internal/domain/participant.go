package domain

import "time"

type ParticipantID string

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// ParticipantRef identifies a participant at the SDK boundary.
type ParticipantRef struct {
	Identity ParticipantID
	IsLocal  bool
}

// ParticipantState is the authoritative media state for one participant.
// Owned and mutated by the state store only; everyone else reads copies.
type ParticipantState struct {
	ID      ParticipantID
	IsLocal bool

	HasVideo       bool
	HasAudio       bool
	HasScreenShare bool

	VideoMuted       bool
	AudioMuted       bool
	ScreenShareMuted bool

	LastUpdate time.Time
	UISynced   bool
}

// NewParticipantState returns the fail-safe default: no tracks, everything muted.
func NewParticipantState(id ParticipantID, isLocal bool) ParticipantState {
	return ParticipantState{
		ID:               id,
		IsLocal:          isLocal,
		VideoMuted:       true,
		AudioMuted:       true,
		ScreenShareMuted: true,
		LastUpdate:       time.Now(),
	}
}

// ShouldShowVideo is what the presentation layer renders from: a track must
// exist and be unmuted. A muted or absent track both read as "off".
func (s ParticipantState) ShouldShowVideo() bool { return s.HasVideo && !s.VideoMuted }

func (s ParticipantState) ShouldPlayAudio() bool { return s.HasAudio && !s.AudioMuted }

func (s ParticipantState) ShouldShowScreenShare() bool {
	return s.HasScreenShare && !s.ScreenShareMuted
}
