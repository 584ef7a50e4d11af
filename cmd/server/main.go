package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/variouspotatoes/discord-music-player/internal/adapters/http"
	"github.com/variouspotatoes/discord-music-player/internal/adapters/resolver"
	"github.com/variouspotatoes/discord-music-player/internal/adapters/voice"
	"github.com/variouspotatoes/discord-music-player/internal/app"
	"github.com/variouspotatoes/discord-music-player/internal/config"
	"github.com/variouspotatoes/discord-music-player/internal/core"
	"github.com/variouspotatoes/discord-music-player/internal/domain"
	"github.com/variouspotatoes/discord-music-player/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	m := metrics.New()

	newConn := func(room domain.RoomID, channel domain.ChannelID) core.VoiceConnection {
		return voice.NewGateway(cfg.GatewayURL, room, channel, cfg.HeartbeatPeriod)
	}
	newEngine := func(sink core.FrameSink) core.PlaybackEngine {
		return core.NewEngine(sink, cfg.FrameInterval)
	}
	registry := app.NewRegistry(newConn, newEngine, app.SessionOptions{
		IdleLeaveAfter: cfg.IdleLeaveAfter,
		Metrics:        m,
	})
	resolverClient := resolver.New(cfg.ResolverURL, cfg.ResolveTimeout)

	r := router.SetupRouter(cfg, registry, resolverClient, m)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("player server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	registry.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
