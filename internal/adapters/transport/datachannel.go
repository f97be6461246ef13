package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/veselov/meetsync/internal/core"
	"github.com/veselov/meetsync/internal/domain"
)

var ErrNoPublisher = errors.New("data channel publisher not bound")

// DataChannel is the primary, lowest-latency channel. It rides the media
// session: the SDK adapter feeds inbound payloads through Inject and
// provides the outbound publish func. No connection of its own to manage.
type DataChannel struct {
	sink   core.MessageSink
	active atomic.Bool

	mu      sync.RWMutex
	publish func(payload []byte) error
}

func NewDataChannel(sink core.MessageSink) *DataChannel {
	return &DataChannel{sink: sink}
}

func (d *DataChannel) Name() string  { return core.ChannelDataChannel }
func (d *DataChannel) Priority() int { return 0 }
func (d *DataChannel) Active() bool  { return d.active.Load() }

// BindPublisher wires the media SDK's raw payload send.
func (d *DataChannel) BindPublisher(fn func(payload []byte) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.publish = fn
}

func (d *DataChannel) Activate(context.Context) error {
	d.active.Store(true)
	return nil
}

func (d *DataChannel) Deactivate() {
	d.active.Store(false)
}

// Inject decodes one raw payload from the media session and hands it to the
// shared inbound path. Malformed payloads are logged and dropped.
func (d *DataChannel) Inject(payload []byte) {
	if !d.active.Load() {
		return
	}
	var msg domain.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Warn().Err(err).Str("module", "transport.datachannel").Msg("malformed payload dropped")
		return
	}
	d.sink(msg, core.ChannelDataChannel)
}

func (d *DataChannel) TrySend(msg domain.Message) error {
	if !d.active.Load() {
		return errors.New("data channel inactive")
	}
	d.mu.RLock()
	publish := d.publish
	d.mu.RUnlock()
	if publish == nil {
		return ErrNoPublisher
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return publish(b)
}
