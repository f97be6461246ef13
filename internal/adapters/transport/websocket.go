package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/veselov/meetsync/internal/core"
	"github.com/veselov/meetsync/internal/domain"
)

// WSChannel is the socket pub/sub channel: one persistent connection to the
// session server's meeting endpoint, read in a pump goroutine.
type WSChannel struct {
	url    string
	sink   core.MessageSink
	active atomic.Bool

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
}

func NewWSChannel(url string, sink core.MessageSink) *WSChannel {
	return &WSChannel{url: url, sink: sink}
}

func (w *WSChannel) Name() string  { return core.ChannelWebSocket }
func (w *WSChannel) Priority() int { return 1 }
func (w *WSChannel) Active() bool  { return w.active.Load() }

func (w *WSChannel) Activate(ctx context.Context) error {
	if w.active.Load() {
		return nil
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.conn = conn
	w.cancel = cancel
	w.mu.Unlock()
	w.active.Store(true)

	go w.readPump(pumpCtx, conn)
	log.Info().Str("module", "transport.ws").Str("url", w.url).Msg("websocket connected")
	return nil
}

func (w *WSChannel) readPump(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		w.active.Store(false)
		conn.Close()
		log.Info().Str("module", "transport.ws").Msg("readPump closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Warn().Err(err).Str("module", "transport.ws").Msg("readPump read error")
				return
			}
			var msg domain.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Warn().Err(err).Str("module", "transport.ws").Msg("bad json frame dropped")
				continue
			}
			w.sink(msg, core.ChannelWebSocket)
		}
	}
}

func (w *WSChannel) TrySend(msg domain.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active.Load() || w.conn == nil {
		return errors.New("websocket inactive")
	}
	if err := w.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	return w.conn.WriteJSON(msg)
}

func (w *WSChannel) Deactivate() {
	w.active.Store(false)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}
