package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aliuyar1234/pmdash/internal/config"
	"github.com/aliuyar1234/pmdash/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// App holds the application state
type App struct {
	Config   *config.Config
	DB       *pgxpool.Pool
	Router   http.Handler
	Services Services

	server *http.Server
}

// New creates and initializes a new application instance
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	setupLogger(cfg.LogLevel, cfg.IsDev())

	log.Info().Str("app", cfg.AppName).Msg("Initializing application")
	log.Info().Interface("config", cfg.RedactedValues()).Msg("Configuration loaded")

	log.Info().Msg("Connecting to database...")
	pool, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Msg("Database connection established")

	if cfg.IsDev() {
		log.Info().Msg("Development mode: running migrations automatically")
		if err := db.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	} else {
		log.Info().Msg("Production mode: migrations must be run manually")
	}

	services, err := NewServices(cfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	router := NewRouter(pool, cfg, services)

	app := &App{
		Config:   cfg,
		DB:       pool,
		Router:   router,
		Services: services,
		server: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}

	log.Info().Msg("Application initialized successfully")
	return app, nil
}

// Start serves HTTP until Shutdown is called. It returns
// http.ErrServerClosed after a clean shutdown.
func (a *App) Start() error {
	log.Info().Str("addr", a.server.Addr).Msg("Starting HTTP server")
	return a.server.ListenAndServe()
}

// Shutdown stops accepting requests, drains in-flight ones, disconnects
// chat sessions and closes the database pool.
func (a *App) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down application")

	err := a.server.Shutdown(ctx)
	if a.Services.Hub != nil {
		if hubErr := a.Services.Hub.Close(); hubErr != nil {
			err = errors.Join(err, hubErr)
		}
	}
	if a.DB != nil {
		log.Info().Msg("Closing database connection")
		a.DB.Close()
	}
	return err
}

// setupLogger configures the global logger. Dev gets console output,
// everything else structured JSON.
func setupLogger(level string, dev bool) {
	if dev {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Debug().Str("level", level).Msg("Logger configured")
}
