package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veselov/meetsync/internal/core"
	"github.com/veselov/meetsync/internal/domain"
)

type fakeTransport struct {
	mu       sync.Mutex
	name     string
	priority int
	active   bool
	failSend bool
	sent     []domain.Message
}

func (f *fakeTransport) Name() string  { return f.name }
func (f *fakeTransport) Priority() int { return f.priority }

func (f *fakeTransport) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeTransport) Activate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = true
	return nil
}

func (f *fakeTransport) Deactivate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = false
}

func (f *fakeTransport) TrySend(msg domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return ErrNoActiveChannel
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakePoster struct {
	mu   sync.Mutex
	acks []domain.Acknowledgment
}

func (f *fakePoster) PostAcknowledgment(_ context.Context, ack domain.Acknowledgment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, ack)
	return nil
}

func (f *fakePoster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acks)
}

func newTestMux(t *testing.T, channels ...core.Transport) (*Multiplexer, *Router, *fakePoster, *int) {
	t.Helper()
	handled := 0
	router := NewRouter(&fakeSink{}, nil)
	router.Register(domain.CmdMuteAllStudents, func(domain.Message) error {
		handled++
		return nil
	})
	poster := &fakePoster{}
	acks := NewAckSender(poster, "me", time.Second)
	mux := NewMultiplexer(channels, core.NewDeduplicator(100), router, acks, nil, &fakeSink{}, time.Hour)
	t.Cleanup(mux.Destroy)
	return mux, router, poster, &handled
}

func TestMultiplexer_DuplicateAcrossChannelsHandledOnce(t *testing.T) {
	req := require.New(t)
	primary := &fakeTransport{name: core.ChannelDataChannel, priority: 0, active: true}
	polling := &fakeTransport{name: core.ChannelPolling, priority: 3, active: true}
	mux, _, poster, handled := newTestMux(t, primary, polling)

	msg := domain.Message{ID: "m1", Command: domain.CmdMuteAllStudents, RequiresAck: true}

	// Same logical message arrives via primary and again via polling.
	mux.HandleInbound(msg, primary.Name())
	mux.HandleInbound(msg, polling.Name())

	req.Equal(1, *handled, "handler must fire exactly once")

	time.Sleep(50 * time.Millisecond) // ack posts async
	req.Equal(1, poster.count(), "at most one acknowledgment per message")
	req.Equal(domain.MessageID("m1"), poster.acks[0].MessageID)
}

func TestMultiplexer_UnknownCommandStillMarkedSeen(t *testing.T) {
	req := require.New(t)
	mux, _, _, _ := newTestMux(t)

	msg := domain.Message{ID: "m2", Command: "unrecognized"}
	mux.HandleInbound(msg, core.ChannelWebSocket)
	mux.HandleInbound(msg, core.ChannelPolling)

	// Second delivery is absorbed even though nobody handles the command.
	req.True(mux.dedup.Seen("m2"))
}

func TestMultiplexer_DeliverPrefersLowestPriority(t *testing.T) {
	req := require.New(t)
	secondary := &fakeTransport{name: core.ChannelWebSocket, priority: 1}
	primary := &fakeTransport{name: core.ChannelDataChannel, priority: 0}
	mux, _, _, _ := newTestMux(t, secondary, primary) // unsorted on purpose

	// Both inactive: delivery fails.
	req.ErrorIs(mux.Deliver(domain.Message{ID: "m1"}), ErrNoActiveChannel)

	// Primary comes back: it wins over the also-active secondary.
	req.NoError(secondary.Activate(context.Background()))
	req.NoError(primary.Activate(context.Background()))
	req.NoError(mux.Deliver(domain.Message{ID: "m2"}))
	req.Equal(1, primary.sentCount())
	req.Equal(0, secondary.sentCount())
}

func TestMultiplexer_DeliverFailsOverOnSendError(t *testing.T) {
	req := require.New(t)
	primary := &fakeTransport{name: core.ChannelDataChannel, priority: 0, active: true, failSend: true}
	secondary := &fakeTransport{name: core.ChannelWebSocket, priority: 1, active: true}
	mux, _, _, _ := newTestMux(t, primary, secondary)

	req.NoError(mux.Deliver(domain.Message{ID: "m1"}))
	req.Equal(1, secondary.sentCount())
	req.False(primary.Active(), "failing channel gets deactivated")
}

func TestMultiplexer_ConnectivityLossActivatesPolling(t *testing.T) {
	req := require.New(t)
	primary := &fakeTransport{name: core.ChannelDataChannel, priority: 0, active: true}
	polling := &fakeTransport{name: core.ChannelPolling, priority: 3}
	mux, _, _, _ := newTestMux(t, primary, polling)

	// Polling activates unconditionally, even though primary still claims active.
	mux.OnConnectivityLost()
	req.True(polling.Active())
}

func TestMultiplexer_ConnectivityRestoredStopsPolling(t *testing.T) {
	req := require.New(t)
	primary := &fakeTransport{name: core.ChannelDataChannel, priority: 0}
	polling := &fakeTransport{name: core.ChannelPolling, priority: 3}
	mux, _, _, _ := newTestMux(t, primary, polling)

	mux.OnConnectivityLost()
	req.True(polling.Active())

	mux.OnConnectivityRestored()
	req.True(primary.Active(), "inactive channels re-attempted")
	req.False(polling.Active(), "polling stops once a low-latency channel is back")
}

func TestMultiplexer_OfflineOnlineNoDuplicateExecution(t *testing.T) {
	req := require.New(t)
	primary := &fakeTransport{name: core.ChannelDataChannel, priority: 0, active: true}
	polling := &fakeTransport{name: core.ChannelPolling, priority: 3}
	mux, _, _, handled := newTestMux(t, primary, polling)

	mux.OnConnectivityLost()
	msg := domain.Message{ID: "m9", Command: domain.CmdMuteAllStudents}

	// Arrived via polling just before primary reconnected...
	mux.HandleInbound(msg, core.ChannelPolling)
	mux.OnConnectivityRestored()
	// ...and again via the reconnected primary.
	mux.HandleInbound(msg, core.ChannelDataChannel)

	req.Equal(1, *handled)
}

func TestMultiplexer_DestroyDeactivatesAll(t *testing.T) {
	req := require.New(t)
	primary := &fakeTransport{name: core.ChannelDataChannel, priority: 0, active: true}
	polling := &fakeTransport{name: core.ChannelPolling, priority: 3, active: true}
	mux, _, _, handled := newTestMux(t, primary, polling)

	mux.Destroy()
	req.False(primary.Active())
	req.False(polling.Active())

	// Inbound after teardown is ignored.
	mux.HandleInbound(domain.Message{ID: "late", Command: domain.CmdMuteAllStudents}, core.ChannelPolling)
	req.Equal(0, *handled)
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeFetcher) FetchState(context.Context) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return map[string]any{"session_status": "active"}, nil
}

func TestMultiplexer_ResyncFeedsInboundPath(t *testing.T) {
	req := require.New(t)
	router := NewRouter(&fakeSink{}, nil)
	var synced map[string]any
	router.Register(domain.CmdSyncState, func(msg domain.Message) error {
		synced = msg.Data
		return nil
	})
	fetcher := &fakeFetcher{}
	mux := NewMultiplexer(nil, core.NewDeduplicator(100), router, nil, fetcher, &fakeSink{}, time.Hour)
	defer mux.Destroy()

	mux.OnConnectivityRestored() // triggers an immediate resync

	req.Equal(1, fetcher.calls)
	req.Equal("active", synced["session_status"])
}
