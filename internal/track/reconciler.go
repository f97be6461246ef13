package track

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/veselov/meetsync/internal/core"
	"github.com/veselov/meetsync/internal/domain"
)

// Reconciler performs the idempotent pass that pushes authoritative
// participant state to the presentation layer. Passes are debounced per
// participant to coalesce event bursts, and a periodic sweep re-syncs
// everyone as a backstop against a silently dropped pass.
type Reconciler struct {
	store *core.StateStore
	sink  core.PresentationSink

	debounce time.Duration
	sweep    time.Duration

	mu        sync.Mutex
	timers    map[domain.ParticipantID]*time.Timer
	destroyed atomic.Bool
}

func NewReconciler(store *core.StateStore, sink core.PresentationSink, debounce, sweep time.Duration) *Reconciler {
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	if sweep <= 0 {
		sweep = 3 * time.Second
	}
	return &Reconciler{
		store:    store,
		sink:     sink,
		debounce: debounce,
		sweep:    sweep,
		timers:   make(map[domain.ParticipantID]*time.Timer),
	}
}

// ScheduleSync debounces a pass for one participant. A pending timer is
// replaced, never left to fire with a stale closure.
func (r *Reconciler) ScheduleSync(id domain.ParticipantID) {
	if r.destroyed.Load() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[id]; ok {
		t.Stop()
	}
	r.timers[id] = time.AfterFunc(r.debounce, func() {
		if r.destroyed.Load() {
			return
		}
		r.mu.Lock()
		delete(r.timers, id)
		r.mu.Unlock()
		r.PerformSync(id)
	})
}

// CancelSync drops any pending pass, used when a participant leaves.
func (r *Reconciler) CancelSync(id domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
}

// PerformSync reads a snapshot and pushes the derived booleans to the sink.
// Safe to run redundantly; the sink is expected to be diff-aware.
func (r *Reconciler) PerformSync(id domain.ParticipantID) {
	if r.destroyed.Load() {
		return
	}
	st, ok := r.store.Snapshot(id)
	if !ok {
		log.Debug().Str("module", "track.reconciler").Str("participant", string(id)).Msg("sync skipped, participant gone")
		return
	}

	r.sink.OnCameraStateChanged(id, st.ShouldShowVideo())
	r.sink.OnMicrophoneStateChanged(id, st.ShouldPlayAudio())
	r.sink.OnScreenShareStateChanged(id, st.ShouldShowScreenShare())

	r.store.MarkSynced(id)
	log.Debug().Str("module", "track.reconciler").
		Str("participant", string(id)).
		Bool("video", st.ShouldShowVideo()).
		Bool("audio", st.ShouldPlayAudio()).
		Bool("screen", st.ShouldShowScreenShare()).
		Msg("sync pass complete")
}

// Run drives the safety sweep until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "track.reconciler").Msg("sweep stopped")
			return
		case <-ticker.C:
			if r.destroyed.Load() {
				return
			}
			for _, id := range r.store.IDs() {
				r.PerformSync(id)
			}
		}
	}
}

// Destroy synchronously stops every pending timer. Timer callbacks that
// already fired observe the destroyed guard and return.
func (r *Reconciler) Destroy() {
	r.destroyed.Store(true)
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}
