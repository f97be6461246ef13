// Package session owns the dependency graph of the synchronization core.
// One Session per joined meeting; every component gets its collaborators
// through the constructor, nothing is reached through ambient globals.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/veselov/meetsync/internal/adapters/sdk"
	"github.com/veselov/meetsync/internal/adapters/transport"
	"github.com/veselov/meetsync/internal/bus"
	"github.com/veselov/meetsync/internal/config"
	"github.com/veselov/meetsync/internal/core"
	"github.com/veselov/meetsync/internal/domain"
	"github.com/veselov/meetsync/internal/track"
)

var ErrTeacherOnly = errors.New("command restricted to the teacher role")

// Deps are the external collaborators the core talks to but does not own.
type Deps struct {
	Sink     core.PresentationSink
	Controls core.MediaControls
}

type Session struct {
	cfg     *config.Config
	role    domain.Role
	localID domain.ParticipantID

	sink     core.PresentationSink
	controls core.MediaControls
	state    *ControlState

	store      *core.StateStore
	locks      *core.LockTable
	reconciler *track.Reconciler
	processor  *track.Processor
	adapter    *sdk.Adapter
	primary    *transport.DataChannel
	mux        *bus.Multiplexer
	api        *transport.APIClient

	cancel    context.CancelFunc
	destroyed atomic.Bool
}

func New(cfg *config.Config, deps Deps) *Session {
	s := &Session{
		cfg:      cfg,
		role:     domain.Role(cfg.Role),
		localID:  domain.ParticipantID(cfg.ParticipantID),
		sink:     deps.Sink,
		controls: deps.Controls,
		state:    NewControlState(),
	}

	s.store = core.NewStateStore()
	s.locks = core.NewLockTable()
	s.reconciler = track.NewReconciler(s.store, s.sink, cfg.DebounceInterval, cfg.SweepInterval)
	s.processor = track.NewProcessor(s.store, s.locks, s.reconciler)

	s.api = transport.NewAPIClient(cfg.ServerURL, cfg.SessionID, cfg.RequestTimeout)

	router := bus.NewRouter(s.sink, bus.NewCommandRateLimiter(cfg.CommandRateLimit, time.Minute))
	s.registerCommands(router)

	acks := bus.NewAckSender(s.api, s.localID, cfg.RequestTimeout)
	dedup := core.NewDeduplicator(cfg.DedupCapacity)

	// The sink closure keeps transports decoupled from the multiplexer.
	var inbound core.MessageSink = func(msg domain.Message, channel string) {
		s.mux.HandleInbound(msg, channel)
	}

	s.primary = transport.NewDataChannel(inbound)
	wsURL := fmt.Sprintf("%s/%s", cfg.WebsocketURL, cfg.SessionID)
	channels := []core.Transport{
		s.primary,
		transport.NewWSChannel(wsURL, inbound),
		transport.NewSSEChannel(s.api, inbound, cfg.MaxPushAttempts),
		transport.NewPollingChannel(s.api, inbound, cfg.PollInterval),
	}
	s.mux = bus.NewMultiplexer(channels, dedup, router, acks, s.api, s.sink, cfg.ResyncInterval)

	s.adapter = sdk.NewAdapter(s.processor, s.primary)
	return s
}

// SDK returns the boundary the media SDK's callbacks are wired into.
func (s *Session) SDK() *sdk.Adapter { return s.adapter }

// Start brings up the channels and background loops.
func (s *Session) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// The local participant exists from the start.
	if s.localID != "" {
		s.store.Upsert(s.localID, true)
	}

	go s.reconciler.Run(runCtx)
	go s.mux.Run(runCtx)
	s.mux.ActivateAll(runCtx)

	log.Info().Str("module", "session").
		Str("session", s.cfg.SessionID).
		Str("participant", string(s.localID)).
		Str("role", string(s.role)).
		Msg("session started")
}

// OnNetworkOnline and OnNetworkOffline forward the embedder's connectivity
// signals (the browser's online/offline equivalent).
func (s *Session) OnNetworkOnline()  { s.mux.OnConnectivityRestored() }
func (s *Session) OnNetworkOffline() { s.mux.OnConnectivityLost() }

// Snapshot exposes current participant state to the presentation layer.
func (s *Session) Snapshot(id domain.ParticipantID) (domain.ParticipantState, bool) {
	return s.store.Snapshot(id)
}

func (s *Session) Participants() []domain.ParticipantState {
	return s.store.SnapshotAll()
}

func (s *Session) Controls() ControlSnapshot {
	return s.state.Snapshot()
}

// RaiseHand publishes the local hand state to the rest of the session.
func (s *Session) RaiseHand(raised bool) error {
	s.state.SetHandRaised(raised)
	s.state.SetParticipantHand(s.localID, raised)
	return s.deliver(domain.CmdRaiseHandUpdate, map[string]any{
		"participant_id": string(s.localID),
		"raised":         raised,
	}, false)
}

// SendChat broadcasts a chat line.
func (s *Session) SendChat(text string) error {
	return s.deliver(domain.CmdChatMessage, map[string]any{
		"sender_name": string(s.localID),
		"message":     text,
	}, false)
}

// MuteAllStudents is the teacher-side control; students cannot issue it.
func (s *Session) MuteAllStudents() error {
	if s.role != domain.RoleTeacher {
		return ErrTeacherOnly
	}
	return s.deliver(domain.CmdMuteAllStudents, map[string]any{
		"teacher_identity": string(s.localID),
	}, true)
}

func (s *Session) AllowStudentMicrophones() error {
	if s.role != domain.RoleTeacher {
		return ErrTeacherOnly
	}
	return s.deliver(domain.CmdAllowStudentMics, nil, true)
}

func (s *Session) EndSession() error {
	if s.role != domain.RoleTeacher {
		return ErrTeacherOnly
	}
	return s.deliver(domain.CmdEndSession, nil, true)
}

func (s *Session) deliver(command string, data map[string]any, requiresAck bool) error {
	msg := domain.Message{
		ID:          domain.MessageID(uuid.NewString()),
		Command:     command,
		Data:        data,
		Timestamp:   time.Now(),
		RequiresAck: requiresAck,
	}
	if err := s.mux.Deliver(msg); err != nil {
		return fmt.Errorf("deliver %s: %w", command, err)
	}
	return nil
}

// Destroy tears the whole graph down synchronously: no timer may fire and
// no channel may deliver after it returns.
func (s *Session) Destroy() {
	if s.destroyed.Swap(true) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.processor.Destroy()
	s.reconciler.Destroy()
	s.mux.Destroy()
	s.locks.ReleaseAll()
	log.Info().Str("module", "session").Str("session", s.cfg.SessionID).Msg("session destroyed")
}
