package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/veselov/meetsync/internal/config"
	"github.com/veselov/meetsync/internal/domain"
	"github.com/veselov/meetsync/internal/session"
)

// consoleSink renders presentation callbacks as log lines. A real embedding
// drives UI widgets from these instead.
type consoleSink struct{}

func (consoleSink) OnCameraStateChanged(id domain.ParticipantID, hasVideo bool) {
	log.Info().Str("module", "client").Str("participant", string(id)).Bool("visible", hasVideo).Msg("camera state")
}

func (consoleSink) OnMicrophoneStateChanged(id domain.ParticipantID, hasAudio bool) {
	log.Info().Str("module", "client").Str("participant", string(id)).Bool("audible", hasAudio).Msg("microphone state")
}

func (consoleSink) OnScreenShareStateChanged(id domain.ParticipantID, hasShare bool) {
	log.Info().Str("module", "client").Str("participant", string(id)).Bool("visible", hasShare).Msg("screen share state")
}

func (consoleSink) Notify(message string, level domain.NotifyLevel) {
	log.Info().Str("module", "client").Str("level", string(level)).Msg(message)
}

func (consoleSink) SessionEnded(redirectURL string) {
	log.Info().Str("module", "client").Str("redirect", redirectURL).Msg("session ended")
}

// consoleControls stands in for the media SDK's local track controls.
type consoleControls struct{}

func (consoleControls) SetMicrophoneEnabled(_ context.Context, enabled bool) error {
	log.Info().Str("module", "client").Bool("enabled", enabled).Msg("local microphone toggled")
	return nil
}

func (consoleControls) SetCameraEnabled(_ context.Context, enabled bool) error {
	log.Info().Str("module", "client").Bool("enabled", enabled).Msg("local camera toggled")
	return nil
}

func (consoleControls) Disconnect() {
	log.Info().Str("module", "client").Msg("disconnect requested")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	s := session.New(cfg, session.Deps{
		Sink:     consoleSink{},
		Controls: consoleControls{},
	})
	s.Start(ctx)
	log.Info().
		Str("session", cfg.SessionID).
		Str("participant", cfg.ParticipantID).
		Str("role", cfg.Role).
		Msg("Meetsync client started")

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	s.Destroy()
	log.Info().Msg("Client exited gracefully")
}
