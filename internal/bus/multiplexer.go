package bus

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/veselov/meetsync/internal/core"
	"github.com/veselov/meetsync/internal/domain"
)

var ErrNoActiveChannel = errors.New("no active transport channel")

// StateFetcher pulls the authoritative session snapshot for periodic resync.
type StateFetcher interface {
	FetchState(ctx context.Context) (map[string]any, error)
}

// Multiplexer owns the ordered channel list and exposes a single inbound
// funnel and a single Deliver surface. Ordering across channels is not
// guaranteed; dedup plus idempotent apply is what makes that safe.
type Multiplexer struct {
	mu       sync.Mutex
	channels []core.Transport // sorted by priority, lowest first

	dedup    *core.Deduplicator
	router   *Router
	acks     *AckSender
	fetcher  StateFetcher
	notifier core.PresentationSink

	resyncInterval time.Duration
	online         atomic.Bool
	destroyed      atomic.Bool

	lastContact atomic.Int64 // unix nano of last inbound or successful resync
	degraded    atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewMultiplexer(channels []core.Transport, dedup *core.Deduplicator, router *Router, acks *AckSender, fetcher StateFetcher, notifier core.PresentationSink, resyncInterval time.Duration) *Multiplexer {
	if resyncInterval <= 0 {
		resyncInterval = 30 * time.Second
	}
	sorted := make([]core.Transport, len(channels))
	copy(sorted, channels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })

	m := &Multiplexer{
		channels:       sorted,
		dedup:          dedup,
		router:         router,
		acks:           acks,
		fetcher:        fetcher,
		notifier:       notifier,
		resyncInterval: resyncInterval,
	}
	m.online.Store(true)
	m.lastContact.Store(time.Now().UnixNano())
	return m
}

// HandleInbound is the MessageSink shared by every channel: dedup first,
// mark unconditionally (even unrecognized commands), route, acknowledge.
func (m *Multiplexer) HandleInbound(msg domain.Message, channel string) {
	if m.destroyed.Load() {
		return
	}
	m.lastContact.Store(time.Now().UnixNano())
	m.degraded.Store(false)

	if m.dedup.Seen(msg.ID) {
		log.Debug().Str("module", "bus.mux").
			Str("message_id", string(msg.ID)).
			Str("channel", channel).
			Msg("duplicate delivery absorbed")
		return
	}
	m.dedup.MarkSeen(msg.ID)

	log.Info().Str("module", "bus.mux").
		Str("message_id", string(msg.ID)).
		Str("command", msg.Command).
		Str("channel", channel).
		Msg("message received")

	m.router.Dispatch(msg)

	if msg.RequiresAck && m.acks != nil {
		m.acks.Acknowledge(msg.ID, map[string]any{"received_via": channel})
	}
}

// ActivateAll brings up every channel independently; one channel's failure
// never blocks the others.
func (m *Multiplexer) ActivateAll(ctx context.Context) {
	m.mu.Lock()
	channels := make([]core.Transport, len(m.channels))
	copy(channels, m.channels)
	m.mu.Unlock()

	for _, ch := range channels {
		go func(ch core.Transport) {
			if err := ch.Activate(ctx); err != nil {
				log.Warn().Err(err).Str("module", "bus.mux").Str("channel", ch.Name()).Msg("channel activation failed")
				return
			}
			log.Info().Str("module", "bus.mux").Str("channel", ch.Name()).Int("priority", ch.Priority()).Msg("channel active")
		}(ch)
	}
}

// Deliver sends through the preferred active channel only, never fanning
// out; a channel that errors is deactivated and the next one is tried.
func (m *Multiplexer) Deliver(msg domain.Message) error {
	if m.destroyed.Load() {
		return ErrNoActiveChannel
	}
	m.mu.Lock()
	channels := make([]core.Transport, len(m.channels))
	copy(channels, m.channels)
	m.mu.Unlock()

	for _, ch := range channels {
		if !ch.Active() {
			continue
		}
		if err := ch.TrySend(msg); err != nil {
			if errors.Is(err, core.ErrSendUnsupported) {
				continue
			}
			log.Warn().Err(err).Str("module", "bus.mux").Str("channel", ch.Name()).Msg("send failed, deactivating channel")
			ch.Deactivate()
			continue
		}
		log.Debug().Str("module", "bus.mux").
			Str("message_id", string(msg.ID)).
			Str("channel", ch.Name()).
			Msg("message delivered")
		return nil
	}
	return ErrNoActiveChannel
}

// OnConnectivityLost activates polling unconditionally: individual channel
// failure detection can lag real connectivity changes.
func (m *Multiplexer) OnConnectivityLost() {
	if m.destroyed.Load() {
		return
	}
	m.online.Store(false)
	log.Warn().Str("module", "bus.mux").Msg("connectivity lost, enabling polling fallback")
	if ch := m.channel(core.ChannelPolling); ch != nil {
		if err := ch.Activate(m.runCtx()); err != nil {
			log.Error().Err(err).Str("module", "bus.mux").Msg("polling fallback activation failed")
		}
	}
}

// OnConnectivityRestored re-attempts every inactive channel, stops polling
// once a low-latency channel is back, and resyncs immediately.
func (m *Multiplexer) OnConnectivityRestored() {
	if m.destroyed.Load() {
		return
	}
	m.online.Store(true)
	log.Info().Str("module", "bus.mux").Msg("connectivity restored")

	m.mu.Lock()
	channels := make([]core.Transport, len(m.channels))
	copy(channels, m.channels)
	m.mu.Unlock()

	for _, ch := range channels {
		if ch.Active() || ch.Name() == core.ChannelPolling {
			continue
		}
		if err := ch.Activate(m.runCtx()); err != nil {
			log.Warn().Err(err).Str("module", "bus.mux").Str("channel", ch.Name()).Msg("channel reactivation failed")
		}
	}

	if m.lowLatencyActive() {
		if ch := m.channel(core.ChannelPolling); ch != nil && ch.Active() {
			ch.Deactivate()
			log.Info().Str("module", "bus.mux").Msg("polling fallback disabled")
		}
	}

	m.resync()
}

// Run drives the periodic full resync, the correctness backstop bounding
// the staleness window for commands every channel missed.
func (m *Multiplexer) Run(ctx context.Context) {
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	runCtx := m.ctx
	m.mu.Unlock()

	ticker := time.NewTicker(m.resyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-runCtx.Done():
			log.Info().Str("module", "bus.mux").Msg("resync loop stopped")
			return
		case <-ticker.C:
			if m.destroyed.Load() {
				return
			}
			if m.online.Load() {
				m.resync()
			}
			m.checkDegraded()
		}
	}
}

func (m *Multiplexer) resync() {
	if m.fetcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	state, err := m.fetcher.FetchState(ctx)
	if err != nil {
		log.Warn().Err(err).Str("module", "bus.mux").Msg("state resync failed")
		return
	}
	// Feed through the same path as any channel, tagged as a sync message.
	m.HandleInbound(domain.Message{
		ID:        domain.MessageID("resync-" + uuid.NewString()),
		Command:   domain.CmdSyncState,
		Data:      state,
		Timestamp: time.Now(),
	}, core.ChannelResync)
}

// checkDegraded surfaces the one user-visible failure: no channel and no
// resync has delivered anything for an extended period.
func (m *Multiplexer) checkDegraded() {
	if m.anyActive() {
		return
	}
	stale := time.Since(time.Unix(0, m.lastContact.Load()))
	if stale > 2*m.resyncInterval && !m.degraded.Swap(true) {
		log.Error().Str("module", "bus.mux").Dur("stale", stale).Msg("all channels down, session state stale")
		if m.notifier != nil {
			m.notifier.Notify("connection to the session has been lost", domain.NotifyError)
		}
	}
}

// Destroy deactivates every channel and stops the resync loop.
func (m *Multiplexer) Destroy() {
	m.destroyed.Store(true)
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	channels := make([]core.Transport, len(m.channels))
	copy(channels, m.channels)
	m.mu.Unlock()

	for _, ch := range channels {
		ch.Deactivate()
	}
	log.Info().Str("module", "bus.mux").Msg("multiplexer destroyed")
}

func (m *Multiplexer) channel(name string) core.Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.channels {
		if ch.Name() == name {
			return ch
		}
	}
	return nil
}

// lowLatencyActive reports whether the primary or secondary channel is up.
func (m *Multiplexer) lowLatencyActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.channels {
		if ch.Priority() <= 1 && ch.Active() {
			return true
		}
	}
	return false
}

func (m *Multiplexer) anyActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.channels {
		if ch.Active() {
			return true
		}
	}
	return false
}

func (m *Multiplexer) runCtx() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		return m.ctx
	}
	return context.Background()
}
