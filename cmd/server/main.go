package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/vigia-cam/vigia/internal/adapters/http"
	wssignal "github.com/vigia-cam/vigia/internal/adapters/signal"
	"github.com/vigia-cam/vigia/internal/auth"
	"github.com/vigia-cam/vigia/internal/config"
	"github.com/vigia-cam/vigia/internal/relay"
)

// Demo credentials matching the bundled web client. In production load
// these from the environment or a real user store.
func demoCameras() auth.Credentials {
	return auth.Credentials{
		"Cam_1": auth.HashPassword("cam1_123"),
		"Cam_2": auth.HashPassword("cam2_123"),
	}
}

func demoViewers() auth.Credentials {
	return auth.Credentials{
		"User_1": auth.HashPassword("user1_123"),
		"User_2": auth.HashPassword("user2_123"),
		"Ad_min": auth.HashPassword("administrator123"),
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	authSvc := auth.NewService(demoCameras(), demoViewers(), cfg.SessionTTL)
	go authSvc.RunSweeper(ctx, cfg.SweepInterval)

	registry := relay.NewRegistry()
	ctl := wssignal.NewController(registry, authSvc, cfg)

	r := router.SetupRouter(ctx, cfg, authSvc, registry, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("vigia signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
