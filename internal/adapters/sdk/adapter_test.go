package sdk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veselov/meetsync/internal/adapters/transport"
	"github.com/veselov/meetsync/internal/core"
	"github.com/veselov/meetsync/internal/domain"
	"github.com/veselov/meetsync/internal/track"
)

type sdkParticipant struct {
	identity string
	local    bool
}

func (p sdkParticipant) Identity() string { return p.identity }
func (p sdkParticipant) IsLocal() bool    { return p.local }

type sdkPublication struct {
	kind, source string
	muted, has   bool
}

func (p sdkPublication) Kind() string   { return p.kind }
func (p sdkPublication) Source() string { return p.source }
func (p sdkPublication) IsMuted() bool  { return p.muted }
func (p sdkPublication) HasTrack() bool { return p.has }

type nopSink struct{}

func (nopSink) OnCameraStateChanged(domain.ParticipantID, bool)      {}
func (nopSink) OnMicrophoneStateChanged(domain.ParticipantID, bool)  {}
func (nopSink) OnScreenShareStateChanged(domain.ParticipantID, bool) {}
func (nopSink) Notify(string, domain.NotifyLevel)                    {}
func (nopSink) SessionEnded(string)                                  {}

func newTestAdapter(t *testing.T) (*Adapter, *core.StateStore, *transport.DataChannel) {
	t.Helper()
	store := core.NewStateStore()
	rec := track.NewReconciler(store, nopSink{}, time.Millisecond, time.Hour)
	t.Cleanup(rec.Destroy)
	proc := track.NewProcessor(store, core.NewLockTable(), rec)
	primary := transport.NewDataChannel(func(domain.Message, string) {})
	return NewAdapter(proc, primary), store, primary
}

func TestAdapter_TranslatesSDKShapes(t *testing.T) {
	req := require.New(t)
	a, store, _ := newTestAdapter(t)

	a.OnTrackSubscribed(
		sdkPublication{kind: "video", source: "camera", has: true},
		sdkParticipant{identity: "p1"},
	)

	st, ok := store.Snapshot("p1")
	req.True(ok)
	req.True(st.HasVideo)
	req.False(st.VideoMuted)
}

func TestAdapter_UnknownKindRejectedSafely(t *testing.T) {
	req := require.New(t)
	a, store, _ := newTestAdapter(t)

	a.OnTrackSubscribed(
		sdkPublication{kind: "hologram", source: "crystal", has: true},
		sdkParticipant{identity: "p1"},
	)

	// The participant was observed, but the malformed event changed nothing.
	st, ok := store.Snapshot("p1")
	req.True(ok)
	req.False(st.HasVideo)
	req.False(st.HasAudio)
}

func TestAdapter_ScreenShareSourceNormalized(t *testing.T) {
	req := require.New(t)
	a, store, _ := newTestAdapter(t)

	a.OnTrackSubscribed(
		sdkPublication{kind: "video", source: "screen_share", has: true},
		sdkParticipant{identity: "p1"},
	)

	st, _ := store.Snapshot("p1")
	req.True(st.HasScreenShare)
	req.False(st.HasVideo)
}

func TestAdapter_MediaLifecycleTogglesPrimary(t *testing.T) {
	req := require.New(t)
	a, _, primary := newTestAdapter(t)

	req.False(primary.Active())
	a.OnMediaConnected(func([]byte) error { return nil })
	req.True(primary.Active())

	a.OnMediaDisconnected()
	req.False(primary.Active())
}
