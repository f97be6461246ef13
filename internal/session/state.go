package session

import (
	"sync"

	"github.com/veselov/meetsync/internal/domain"
)

// ControlState is the session-scoped control state driven by commands:
// global audio policy, hand raises, session status. Mutated only by command
// handlers; read through Snapshot.
type ControlState struct {
	mu sync.RWMutex

	allStudentsMuted bool
	canSelfUnmute    bool
	handRaised       bool
	raisedHands      map[domain.ParticipantID]bool
	sessionStatus    string
}

// ControlSnapshot is a read-only copy for callers.
type ControlSnapshot struct {
	AllStudentsMuted bool
	CanSelfUnmute    bool
	HandRaised       bool
	RaisedHands      []domain.ParticipantID
	SessionStatus    string
}

func NewControlState() *ControlState {
	return &ControlState{
		canSelfUnmute: true,
		raisedHands:   make(map[domain.ParticipantID]bool),
		sessionStatus: "active",
	}
}

func (c *ControlState) SetGlobalAudio(allMuted, canSelfUnmute bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allStudentsMuted = allMuted
	c.canSelfUnmute = canSelfUnmute
}

func (c *ControlState) SetHandRaised(raised bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handRaised = raised
}

func (c *ControlState) SetParticipantHand(id domain.ParticipantID, raised bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if raised {
		c.raisedHands[id] = true
		return
	}
	delete(c.raisedHands, id)
}

func (c *ControlState) ClearRaisedHands() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handRaised = false
	c.raisedHands = make(map[domain.ParticipantID]bool)
}

func (c *ControlState) SetSessionStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionStatus = status
}

func (c *ControlState) Snapshot() ControlSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hands := make([]domain.ParticipantID, 0, len(c.raisedHands))
	for id := range c.raisedHands {
		hands = append(hands, id)
	}
	return ControlSnapshot{
		AllStudentsMuted: c.allStudentsMuted,
		CanSelfUnmute:    c.canSelfUnmute,
		HandRaised:       c.handRaised,
		RaisedHands:      hands,
		SessionStatus:    c.sessionStatus,
	}
}
