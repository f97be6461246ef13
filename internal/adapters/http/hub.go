package http

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/veselov/meetsync/internal/domain"
)

// maximum pending commands retained per session for the polling endpoint
const pendingLimit = 100

// SessionHub is the devserver's in-memory session backend: a pending
// command queue per session (drained by polling), live SSE and websocket
// subscribers, received acknowledgments, and the authoritative control
// state served by /state.
type SessionHub struct {
	mu      sync.RWMutex
	pending map[string][]domain.Message
	subs    map[string]map[chan domain.Message]struct{}
	acks    map[string][]domain.Acknowledgment
	state   map[string]map[string]any
}

func NewSessionHub() *SessionHub {
	return &SessionHub{
		pending: make(map[string][]domain.Message),
		subs:    make(map[string]map[chan domain.Message]struct{}),
		acks:    make(map[string][]domain.Acknowledgment),
		state:   make(map[string]map[string]any),
	}
}

// Publish queues the message for pollers and fans it out to every live
// subscriber (SSE streams and websocket connections alike).
func (h *SessionHub) Publish(sessionID string, msg domain.Message) {
	h.mu.Lock()
	queue := append(h.pending[sessionID], msg)
	if len(queue) > pendingLimit {
		queue = queue[len(queue)-pendingLimit:]
	}
	h.pending[sessionID] = queue

	subs := h.subs[sessionID]
	for ch := range subs {
		select {
		case ch <- msg:
		default:
			// slow subscriber, skip rather than block the hub
		}
	}
	h.mu.Unlock()

	log.Info().Str("module", "devserver.hub").
		Str("session", sessionID).
		Str("message_id", string(msg.ID)).
		Str("command", msg.Command).
		Int("subscribers", len(subs)).
		Msg("command published")
}

// DrainPending hands out and clears the poll queue.
func (h *SessionHub) DrainPending(sessionID string) []domain.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	queue := h.pending[sessionID]
	h.pending[sessionID] = nil
	return queue
}

// Subscribe registers a live listener; the returned cancel must be called.
func (h *SessionHub) Subscribe(sessionID string) (<-chan domain.Message, func()) {
	ch := make(chan domain.Message, 16)
	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan domain.Message]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs[sessionID], ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *SessionHub) RecordAck(sessionID string, ack domain.Acknowledgment) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.acks[sessionID] = append(h.acks[sessionID], ack)
}

func (h *SessionHub) Acks(sessionID string) []domain.Acknowledgment {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.Acknowledgment, len(h.acks[sessionID]))
	copy(out, h.acks[sessionID])
	return out
}

// State returns the session control snapshot served to resyncing clients.
func (h *SessionHub) State(sessionID string) map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if st, ok := h.state[sessionID]; ok {
		return st
	}
	return map[string]any{
		"session_status":     "active",
		"all_students_muted": false,
		"raised_hands":       []string{},
	}
}

func (h *SessionHub) SetState(sessionID string, state map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state[sessionID] = state
}
