package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/veselov/meetsync/internal/bus"
	"github.com/veselov/meetsync/internal/domain"
)

// registerCommands wires the full command table into the router. Teacher
// control commands only apply on student clients; targeted commands only
// when the target matches the local participant.
func (s *Session) registerCommands(r *bus.Router) {
	r.Register(domain.CmdMuteAllStudents, s.handleMuteAllStudents)
	r.Register(domain.CmdAllowStudentMics, s.handleAllowStudentMics)
	r.Register(domain.CmdClearHandRaises, s.handleClearHandRaises)
	r.Register(domain.CmdClearRaisedHands, s.handleClearHandRaises) // legacy alias
	r.Register(domain.CmdLowerHand, s.handleLowerHand)
	r.Register(domain.CmdGrantMicPermission, s.handleGrantMicPermission)
	r.Register(domain.CmdKickParticipant, s.handleKickParticipant)
	r.Register(domain.CmdEndSession, s.handleEndSession)
	r.Register(domain.CmdAnnouncement, s.handleAnnouncement)
	r.Register(domain.CmdSyncState, s.handleSyncState)
	r.Register(domain.CmdChatMessage, s.handleChatMessage)
	r.Register(domain.CmdRaiseHandUpdate, s.handleRaiseHandUpdate)
}

func (s *Session) handleMuteAllStudents(msg domain.Message) error {
	if s.role != domain.RoleStudent {
		return nil
	}
	s.state.SetGlobalAudio(true, false)

	if s.controls == nil {
		log.Warn().Str("module", "session").Str("command", msg.Command).Msg("handler collaborator unavailable")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.controls.SetMicrophoneEnabled(ctx, false); err != nil {
			return err
		}
	}

	s.notify(msg, "all students have been muted", domain.NotifyWarning)
	return nil
}

func (s *Session) handleAllowStudentMics(msg domain.Message) error {
	if s.role != domain.RoleStudent {
		return nil
	}
	s.state.SetGlobalAudio(false, true)
	s.notify(msg, "microphone use is allowed again", domain.NotifySuccess)
	return nil
}

func (s *Session) handleClearHandRaises(msg domain.Message) error {
	s.state.ClearRaisedHands()
	s.notify(msg, "all raised hands were cleared", domain.NotifyInfo)
	return nil
}

func (s *Session) handleLowerHand(msg domain.Message) error {
	target := domain.ParticipantID(msg.DataString("target_participant_id"))
	if target != s.localID {
		return nil
	}
	s.state.SetHandRaised(false)
	s.state.SetParticipantHand(s.localID, false)
	s.sink.Notify("the teacher lowered your raised hand", domain.NotifyInfo)
	return nil
}

func (s *Session) handleGrantMicPermission(msg domain.Message) error {
	target := domain.ParticipantID(msg.DataString("student_id"))
	if target != s.localID {
		return nil
	}
	s.state.SetGlobalAudio(false, true)
	s.notify(msg, "you may use your microphone", domain.NotifySuccess)
	return nil
}

func (s *Session) handleKickParticipant(msg domain.Message) error {
	target := domain.ParticipantID(msg.DataString("participant_id"))
	if target != s.localID {
		return nil
	}
	s.sink.Notify("you have been removed from the session", domain.NotifyError)
	if s.controls != nil {
		s.controls.Disconnect()
	} else {
		log.Warn().Str("module", "session").Str("command", msg.Command).Msg("handler collaborator unavailable")
	}
	s.sink.SessionEnded(msg.DataString("redirect_url"))
	return nil
}

func (s *Session) handleEndSession(msg domain.Message) error {
	s.state.SetSessionStatus("ended")
	s.sink.Notify("the session has been ended by the teacher", domain.NotifyWarning)
	s.sink.SessionEnded(msg.DataString("redirect_url"))
	return nil
}

func (s *Session) handleAnnouncement(msg domain.Message) error {
	if text := msg.DataString("message"); text != "" {
		s.sink.Notify(text, domain.NotifyInfo)
	}
	return nil
}

// handleSyncState folds the server's authoritative snapshot into the
// control state. Arrives via any channel or the periodic resync; applying
// it is idempotent.
func (s *Session) handleSyncState(msg domain.Message) error {
	if msg.Data == nil {
		return nil
	}
	if status := msg.DataString("session_status"); status != "" {
		s.state.SetSessionStatus(status)
		if status == "ended" {
			s.sink.SessionEnded("")
		}
	}
	if muted, ok := msg.Data["all_students_muted"].(bool); ok {
		canSelf := true
		if v, ok := msg.Data["students_can_self_unmute"].(bool); ok {
			canSelf = v
		}
		s.state.SetGlobalAudio(muted, canSelf)
	}
	if hands, ok := msg.Data["raised_hands"].([]any); ok {
		s.state.ClearRaisedHands()
		for _, h := range hands {
			if id, ok := h.(string); ok {
				s.state.SetParticipantHand(domain.ParticipantID(id), true)
				if domain.ParticipantID(id) == s.localID {
					s.state.SetHandRaised(true)
				}
			}
		}
	}
	log.Debug().Str("module", "session").Str("message_id", string(msg.ID)).Msg("state synchronized")
	return nil
}

func (s *Session) handleChatMessage(msg domain.Message) error {
	text := msg.DataString("message")
	if text == "" {
		return nil
	}
	if from := msg.DataString("sender_name"); from != "" {
		text = from + ": " + text
	}
	s.sink.Notify(text, domain.NotifyInfo)
	return nil
}

func (s *Session) handleRaiseHandUpdate(msg domain.Message) error {
	id := domain.ParticipantID(msg.DataString("participant_id"))
	if id == "" {
		return nil
	}
	raised, _ := msg.Data["raised"].(bool)
	s.state.SetParticipantHand(id, raised)
	if id == s.localID {
		s.state.SetHandRaised(raised)
	}
	return nil
}

// notify surfaces the payload's message when present, else the fallback.
func (s *Session) notify(msg domain.Message, fallback string, level domain.NotifyLevel) {
	text := msg.DataString("message")
	if text == "" {
		text = fallback
	}
	s.sink.Notify(text, level)
}
