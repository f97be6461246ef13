package domain

import "time"

type MessageID string

// Message is the uniform wire shape carried by every transport channel.
type Message struct {
	ID          MessageID      `json:"message_id"`
	Command     string         `json:"command"`
	Data        map[string]any `json:"data,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	RequiresAck bool           `json:"requires_acknowledgment"`
}

// DataString pulls an optional string field out of the opaque payload.
func (m Message) DataString(key string) string {
	if m.Data == nil {
		return ""
	}
	if v, ok := m.Data[key].(string); ok {
		return v
	}
	return ""
}

// Acknowledgment is the receipt posted back for messages that request one.
type Acknowledgment struct {
	MessageID      MessageID      `json:"message_id"`
	ParticipantID  ParticipantID  `json:"participant_id"`
	AcknowledgedAt time.Time      `json:"acknowledged_at"`
	ResponseData   map[string]any `json:"response_data,omitempty"`
}

const (
	CmdMuteAllStudents    = "mute_all_students"
	CmdAllowStudentMics   = "allow_student_microphones"
	CmdClearHandRaises    = "clear_all_hand_raises"
	CmdClearRaisedHands   = "clear_all_raised_hands"
	CmdLowerHand          = "lower_hand"
	CmdGrantMicPermission = "grant_microphone_permission"
	CmdKickParticipant    = "kick_participant"
	CmdEndSession         = "end_session"
	CmdAnnouncement       = "session_announcement"
	CmdSyncState          = "sync_state"
	CmdChatMessage        = "chat_message"
	CmdRaiseHandUpdate    = "raise_hand_update"
)

// NotifyLevel mirrors the presentation layer's notification styles.
type NotifyLevel string

const (
	NotifyInfo    NotifyLevel = "info"
	NotifySuccess NotifyLevel = "success"
	NotifyWarning NotifyLevel = "warning"
	NotifyError   NotifyLevel = "error"
)
