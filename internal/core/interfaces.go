package core

import (
	"context"
	"errors"

	"github.com/veselov/meetsync/internal/domain"
)

// ErrSendUnsupported marks receive-only channels; the multiplexer skips
// them for delivery without treating it as a channel failure.
var ErrSendUnsupported = errors.New("channel does not support sending")

// Transport abstracts one concrete delivery mechanism for session messages.
// Owned by the multiplexer; channels are toggled active/inactive, never
// destroyed, and reconnection reuses the same instance.
type Transport interface {
	Name() string
	// Priority orders channels for delivery; lower is preferred.
	Priority() int
	Active() bool
	Activate(ctx context.Context) error
	Deactivate()
	TrySend(msg domain.Message) error
}

// MessageSink receives every inbound message together with the channel
// name it arrived on. Transports call it from their read loops.
type MessageSink func(msg domain.Message, channel string)

// Channel names, in preference order.
const (
	ChannelDataChannel = "datachannel"
	ChannelWebSocket   = "websocket"
	ChannelServerPush  = "sse"
	ChannelPolling     = "polling"
	ChannelResync      = "resync"
)

// Publication exposes the live state of a track publication. Handlers read
// through it at the moment they run, never from captured event payloads.
type Publication interface {
	Kind() domain.TrackKind
	Source() domain.TrackSource
	IsMuted() bool
	// Attached reports whether a track object is currently materialized.
	// A publication can be unmuted with no track attached yet.
	Attached() bool
}

// TrackEvent is the internal shape of one SDK track lifecycle callback.
type TrackEvent struct {
	Ref domain.ParticipantRef
	Pub Publication
}

// PresentationSink is the boundary to the rendering layer. Implementations
// are expected to be diff-aware; the reconciler calls them redundantly.
type PresentationSink interface {
	OnCameraStateChanged(id domain.ParticipantID, hasVideo bool)
	OnMicrophoneStateChanged(id domain.ParticipantID, hasAudio bool)
	OnScreenShareStateChanged(id domain.ParticipantID, hasShare bool)
	Notify(message string, level domain.NotifyLevel)
	SessionEnded(redirectURL string)
}

// MediaControls is the slice of the local media SDK the command handlers
// drive (teacher commands acting on this client's devices).
type MediaControls interface {
	SetMicrophoneEnabled(ctx context.Context, enabled bool) error
	SetCameraEnabled(ctx context.Context, enabled bool) error
	Disconnect()
}
