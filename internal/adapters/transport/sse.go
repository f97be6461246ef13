package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/veselov/meetsync/internal/core"
	"github.com/veselov/meetsync/internal/domain"
)

// SSEChannel is the server-push channel: a long-lived streaming GET carrying
// newline-delimited or `data:`-framed JSON messages. Reconnects with
// exponential backoff; after the attempt cap it stays degraded until the
// next Activate (triggered manually or by a connectivity signal).
type SSEChannel struct {
	api  *APIClient
	sink core.MessageSink

	maxAttempts int
	active      atomic.Bool
	degraded    atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewSSEChannel(api *APIClient, sink core.MessageSink, maxAttempts int) *SSEChannel {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &SSEChannel{api: api, sink: sink, maxAttempts: maxAttempts}
}

func (s *SSEChannel) Name() string   { return core.ChannelServerPush }
func (s *SSEChannel) Priority() int  { return 2 }
func (s *SSEChannel) Active() bool   { return s.active.Load() }
func (s *SSEChannel) Degraded() bool { return s.degraded.Load() }

// Activate resets the backoff state and starts the stream loop.
func (s *SSEChannel) Activate(ctx context.Context) error {
	if s.active.Load() {
		return nil
	}
	streamCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.degraded.Store(false)
	s.active.Store(true)
	go s.run(streamCtx)
	return nil
}

func (s *SSEChannel) run(ctx context.Context) {
	defer s.active.Store(false)

	for attempt := 0; ; {
		if err := s.stream(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			if attempt >= s.maxAttempts {
				s.degraded.Store(true)
				log.Error().Str("module", "transport.sse").Int("attempts", attempt).Msg("reconnect attempts exhausted, channel degraded")
				return
			}
			delay := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			log.Warn().Err(err).Str("module", "transport.sse").Int("attempt", attempt).Dur("delay", delay).Msg("stream lost, backing off")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		// Clean EOF: the server closed the stream; reconnect immediately
		// without consuming a backoff attempt.
		attempt = 0
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *SSEChannel) stream(ctx context.Context) error {
	body, err := s.api.OpenEventStream(ctx)
	if err != nil {
		return err
	}
	defer body.Close()
	log.Info().Str("module", "transport.sse").Msg("event stream open")

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") ||
			strings.HasPrefix(line, "event:") || strings.HasPrefix(line, "id:") || strings.HasPrefix(line, "retry:") {
			continue
		}
		line = strings.TrimPrefix(line, "data:")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var msg domain.Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			log.Warn().Err(err).Str("module", "transport.sse").Msg("bad stream line dropped")
			continue
		}
		s.sink(msg, core.ChannelServerPush)
	}
	return scanner.Err()
}

// TrySend: server-push is receive-only.
func (s *SSEChannel) TrySend(domain.Message) error {
	return core.ErrSendUnsupported
}

func (s *SSEChannel) Deactivate() {
	s.active.Store(false)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
