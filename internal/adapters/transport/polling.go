package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/veselov/meetsync/internal/core"
	"github.com/veselov/meetsync/internal/domain"
)

// PollingChannel is the last-resort channel: a periodic GET draining the
// server's pending command queue. Request failures are logged and the next
// tick retries; the channel itself never goes down on its own.
type PollingChannel struct {
	api      *APIClient
	sink     core.MessageSink
	interval time.Duration
	active   atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewPollingChannel(api *APIClient, sink core.MessageSink, interval time.Duration) *PollingChannel {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &PollingChannel{api: api, sink: sink, interval: interval}
}

func (p *PollingChannel) Name() string  { return core.ChannelPolling }
func (p *PollingChannel) Priority() int { return 3 }
func (p *PollingChannel) Active() bool  { return p.active.Load() }

func (p *PollingChannel) Activate(ctx context.Context) error {
	if p.active.Load() {
		return nil
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	p.active.Store(true)

	go p.run(pollCtx)
	log.Info().Str("module", "transport.polling").Dur("interval", p.interval).Msg("polling started")
	return nil
}

func (p *PollingChannel) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.active.Load() {
				return
			}
			p.poll(ctx)
		}
	}
}

func (p *PollingChannel) poll(ctx context.Context) {
	commands, err := p.api.FetchCommands(ctx)
	if err != nil {
		log.Warn().Err(err).Str("module", "transport.polling").Msg("poll failed")
		return
	}
	for _, msg := range commands {
		p.sink(msg, core.ChannelPolling)
	}
}

// TrySend falls back to a plain HTTP post, the only outbound path left when
// polling is the sole live channel.
func (p *PollingChannel) TrySend(msg domain.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return p.api.PostCommand(ctx, msg)
}

func (p *PollingChannel) Deactivate() {
	p.active.Store(false)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	log.Info().Str("module", "transport.polling").Msg("polling stopped")
}
