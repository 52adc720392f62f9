package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aliuyar1234/pmdash/internal/app"
	"github.com/aliuyar1234/pmdash/internal/audit"
	"github.com/aliuyar1234/pmdash/internal/config"
	"github.com/aliuyar1234/pmdash/internal/retention"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		os.Exit(runAdmin(os.Args[2:]))
	}
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		return 1
	}

	job := retention.NewJob(application.DB, audit.NewWriter(application.DB), cfg.InviteRetentionDays)
	scheduler, err := retention.Schedule(job, cfg.IsDev())
	if err != nil {
		log.Error().Err(err).Msg("Failed to schedule retention job")
		application.DB.Close()
		return 1
	}
	scheduler.Start()

	serveErr := make(chan error, 1)
	go func() { serveErr <- application.Start() }()

	code := 0
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server error")
			code = 1
		}
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal")
	}

	// Let a running purge finish before the pool goes away.
	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
		code = 1
	}
	return code
}
