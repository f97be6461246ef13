package track

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/veselov/meetsync/internal/core"
	"github.com/veselov/meetsync/internal/domain"
)

// Processor absorbs raw track lifecycle events from the SDK boundary and
// folds them into the state store. Events for the same (participant, kind,
// source) are serialized through the lock table: a second delivery while one
// is in flight is dropped, because the in-flight handler reads live
// publication fields and already reflects the newest state.
type Processor struct {
	store      *core.StateStore
	locks      *core.LockTable
	reconciler *Reconciler
	destroyed  atomic.Bool
}

func NewProcessor(store *core.StateStore, locks *core.LockTable, reconciler *Reconciler) *Processor {
	return &Processor{store: store, locks: locks, reconciler: reconciler}
}

func (p *Processor) OnTrackSubscribed(ev core.TrackEvent) {
	p.handle("subscribed", ev, func() (bool, bool) {
		return ev.Pub.Attached(), ev.Pub.IsMuted()
	})
}

func (p *Processor) OnTrackUnsubscribed(ev core.TrackEvent) {
	p.handle("unsubscribed", ev, func() (bool, bool) {
		return false, ev.Pub.IsMuted()
	})
}

func (p *Processor) OnTrackMuted(ev core.TrackEvent) {
	p.handle("muted", ev, func() (bool, bool) {
		return ev.Pub.Attached(), true
	})
}

// OnTrackUnmuted reports presence only when a track object actually exists:
// an unmute with no attached track is "unmuted but not yet materialized"
// and stays hidden until a subscribe supplies the track.
func (p *Processor) OnTrackUnmuted(ev core.TrackEvent) {
	p.handle("unmuted", ev, func() (bool, bool) {
		return ev.Pub.Attached(), false
	})
}

// handle acquires the per-track lock, reads the live publication through
// derive at run time, applies, and schedules a reconciliation pass.
func (p *Processor) handle(event string, ev core.TrackEvent, derive func() (hasTrack, muted bool)) {
	if p.destroyed.Load() {
		return
	}
	id := ev.Ref.Identity
	kind := ev.Pub.Kind()
	source := ev.Pub.Source()

	key := core.TrackLockKey(id, kind, source)
	if !p.locks.Acquire(key) {
		log.Debug().Str("module", "track.processor").
			Str("participant", string(id)).
			Str("kind", string(kind)).
			Str("event", event).
			Msg("already processing, event dropped")
		return
	}
	defer p.locks.Release(key)

	p.store.Upsert(id, ev.Ref.IsLocal)

	hasTrack, muted := derive()
	if err := p.store.ApplyTrackEvent(id, kind, source, hasTrack, muted); err != nil {
		log.Warn().Err(err).Str("module", "track.processor").
			Str("participant", string(id)).
			Str("event", event).
			Msg("track event rejected")
		return
	}

	log.Info().Str("module", "track.processor").
		Str("participant", string(id)).
		Str("kind", string(kind)).
		Str("source", string(source)).
		Str("event", event).
		Bool("has_track", hasTrack).
		Bool("muted", muted).
		Msg("track event applied")

	p.reconciler.ScheduleSync(id)
}

func (p *Processor) OnParticipantConnected(ref domain.ParticipantRef) {
	if p.destroyed.Load() {
		return
	}
	p.store.Upsert(ref.Identity, ref.IsLocal)
	log.Info().Str("module", "track.processor").Str("participant", string(ref.Identity)).Msg("participant connected")
	p.reconciler.ScheduleSync(ref.Identity)
}

func (p *Processor) OnParticipantDisconnected(ref domain.ParticipantRef) {
	if p.destroyed.Load() {
		return
	}
	p.reconciler.CancelSync(ref.Identity)
	p.store.Remove(ref.Identity)
	p.locks.ReleaseParticipant(ref.Identity)
	log.Info().Str("module", "track.processor").Str("participant", string(ref.Identity)).Msg("participant disconnected")
}

func (p *Processor) Destroy() {
	p.destroyed.Store(true)
}
