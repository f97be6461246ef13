package bus

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/veselov/meetsync/internal/domain"
)

// AckPoster posts receipt confirmations to the session server.
type AckPoster interface {
	PostAcknowledgment(ctx context.Context, ack domain.Acknowledgment) error
}

// AckSender confirms receipt of messages that ask for it. Fire-and-forget:
// failures are logged, never retried, and never block command processing.
// Acknowledgment is telemetry, not a delivery guarantee.
type AckSender struct {
	poster  AckPoster
	localID domain.ParticipantID
	timeout time.Duration
}

func NewAckSender(poster AckPoster, localID domain.ParticipantID, timeout time.Duration) *AckSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AckSender{poster: poster, localID: localID, timeout: timeout}
}

func (a *AckSender) Acknowledge(id domain.MessageID, responseData map[string]any) {
	ack := domain.Acknowledgment{
		MessageID:      id,
		ParticipantID:  a.localID,
		AcknowledgedAt: time.Now(),
		ResponseData:   responseData,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.poster.PostAcknowledgment(ctx, ack); err != nil {
			log.Warn().Err(err).Str("module", "bus.ack").Str("message_id", string(id)).Msg("acknowledgment failed")
			return
		}
		log.Debug().Str("module", "bus.ack").Str("message_id", string(id)).Msg("acknowledged")
	}()
}
