// Package sdk is the single translation layer between the media SDK's
// callback shapes and the internal track event model. Nothing outside this
// package depends on SDK field names.
package sdk

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/veselov/meetsync/internal/adapters/transport"
	"github.com/veselov/meetsync/internal/core"
	"github.com/veselov/meetsync/internal/domain"
	"github.com/veselov/meetsync/internal/track"
)

// Participant is the SDK-shaped participant handle.
type Participant interface {
	Identity() string
	IsLocal() bool
}

// TrackPublication is the SDK-shaped publication handle. Its methods report
// live state, consulted at processing time rather than captured at event
// delivery.
type TrackPublication interface {
	Kind() string
	Source() string
	IsMuted() bool
	// HasTrack reports whether the track object is currently attached;
	// a publication can exist (and be unmuted) with no track yet.
	HasTrack() bool
}

// publication adapts TrackPublication to core.Publication, normalizing the
// SDK's string enums into domain values.
type publication struct {
	pub TrackPublication
}

func (p publication) Kind() domain.TrackKind {
	switch p.pub.Kind() {
	case "video":
		return domain.TrackKindVideo
	case "audio":
		return domain.TrackKindAudio
	default:
		return domain.TrackKindUnknown
	}
}

func (p publication) Source() domain.TrackSource {
	switch p.pub.Source() {
	case "camera":
		return domain.SourceCamera
	case "microphone":
		return domain.SourceMicrophone
	case "screen_share":
		return domain.SourceScreenShare
	case "screen_share_audio":
		return domain.SourceScreenShareAudio
	default:
		return domain.SourceUnknown
	}
}

func (p publication) IsMuted() bool  { return p.pub.IsMuted() }
func (p publication) Attached() bool { return p.pub.HasTrack() }

// Adapter receives the media SDK's callbacks. The embedding layer wires the
// SDK room events straight into these methods.
type Adapter struct {
	proc    *track.Processor
	primary *transport.DataChannel
}

func NewAdapter(proc *track.Processor, primary *transport.DataChannel) *Adapter {
	return &Adapter{proc: proc, primary: primary}
}

func ref(p Participant) domain.ParticipantRef {
	return domain.ParticipantRef{
		Identity: domain.ParticipantID(p.Identity()),
		IsLocal:  p.IsLocal(),
	}
}

func (a *Adapter) OnTrackSubscribed(pub TrackPublication, p Participant) {
	a.proc.OnTrackSubscribed(core.TrackEvent{Ref: ref(p), Pub: publication{pub}})
}

func (a *Adapter) OnTrackUnsubscribed(pub TrackPublication, p Participant) {
	a.proc.OnTrackUnsubscribed(core.TrackEvent{Ref: ref(p), Pub: publication{pub}})
}

func (a *Adapter) OnTrackMuted(pub TrackPublication, p Participant) {
	a.proc.OnTrackMuted(core.TrackEvent{Ref: ref(p), Pub: publication{pub}})
}

func (a *Adapter) OnTrackUnmuted(pub TrackPublication, p Participant) {
	a.proc.OnTrackUnmuted(core.TrackEvent{Ref: ref(p), Pub: publication{pub}})
}

func (a *Adapter) OnParticipantConnected(p Participant) {
	a.proc.OnParticipantConnected(ref(p))
}

func (a *Adapter) OnParticipantDisconnected(p Participant) {
	a.proc.OnParticipantDisconnected(ref(p))
}

// OnDataReceived feeds a raw data-channel payload into the primary channel.
func (a *Adapter) OnDataReceived(payload []byte) {
	a.primary.Inject(payload)
}

// OnMediaConnected toggles the primary channel with the media session.
func (a *Adapter) OnMediaConnected(publish func(payload []byte) error) {
	a.primary.BindPublisher(publish)
	if err := a.primary.Activate(context.Background()); err != nil {
		log.Warn().Err(err).Str("module", "adapters.sdk").Msg("primary channel activation failed")
	}
	log.Info().Str("module", "adapters.sdk").Msg("media session connected, primary channel up")
}

func (a *Adapter) OnMediaDisconnected() {
	a.primary.Deactivate()
	log.Info().Str("module", "adapters.sdk").Msg("media session disconnected, primary channel down")
}
