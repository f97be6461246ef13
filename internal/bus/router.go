package bus

import (
	"github.com/rs/zerolog/log"

	"github.com/veselov/meetsync/internal/core"
	"github.com/veselov/meetsync/internal/domain"
)

// HandlerFunc processes one command message. Errors are logged at the
// router, never propagated; one bad command must not take down the bus.
type HandlerFunc func(msg domain.Message) error

// Router maps command names to handlers. Unrecognized commands fall through
// to a default handler that surfaces any human-readable payload message.
type Router struct {
	handlers map[string]HandlerFunc
	notifier core.PresentationSink
	limiter  *CommandRateLimiter
}

func NewRouter(notifier core.PresentationSink, limiter *CommandRateLimiter) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		notifier: notifier,
		limiter:  limiter,
	}
}

func (r *Router) Register(command string, h HandlerFunc) {
	r.handlers[command] = h
}

func (r *Router) Dispatch(msg domain.Message) {
	if r.limiter != nil && !r.limiter.Allow(msg.Command) {
		log.Warn().Str("module", "bus.router").Str("command", msg.Command).Msg("command rate limited, dropped")
		return
	}

	h, ok := r.handlers[msg.Command]
	if !ok {
		r.handleUnknown(msg)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("module", "bus.router").Str("command", msg.Command).Any("panic", rec).Msg("handler panicked")
		}
	}()
	if err := h(msg); err != nil {
		log.Error().Err(err).Str("module", "bus.router").
			Str("command", msg.Command).
			Str("message_id", string(msg.ID)).
			Msg("handler failed")
	}
}

func (r *Router) handleUnknown(msg domain.Message) {
	log.Warn().Str("module", "bus.router").Str("command", msg.Command).Msg("unknown command")
	if text := msg.DataString("message"); text != "" && r.notifier != nil {
		r.notifier.Notify(text, domain.NotifyInfo)
	}
}
