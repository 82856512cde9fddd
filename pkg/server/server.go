// Package server composes the OpenLot marketplace: config, telemetry, the
// session store, the archive driver, the auction engine, and the HTTP
// router. It lives in pkg/ so the engine can also be embedded by callers
// that bring their own transport.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openlot/openlot/marketplace/internal/api"
	"github.com/openlot/openlot/marketplace/internal/api/handlers"
	"github.com/openlot/openlot/marketplace/internal/archive"
	"github.com/openlot/openlot/marketplace/internal/auction"
	"github.com/openlot/openlot/marketplace/internal/config"
	"github.com/openlot/openlot/marketplace/internal/store"
	"github.com/openlot/openlot/marketplace/internal/telemetry"
)

// Server holds the initialized marketplace.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Engine is the auction engine, usable directly as a library.
	Engine *auction.Engine

	// Archiver is the archive & pattern engine.
	Archiver *archive.Archiver

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc flushes telemetry and closes the archive driver.
	ShutdownFunc func(context.Context) error
}

// New initializes all marketplace components from the environment.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the marketplace with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	driver, err := newArchiveDriver(ctx, cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("init archive driver: %w", err)
	}

	archiver := archive.NewArchiver(driver, archive.WithRetention(
		time.Duration(cfg.Archive.AuctionRetentionDays)*24*time.Hour,
		time.Duration(cfg.Archive.PatternRetentionDays)*24*time.Hour,
	))

	sessions := store.NewMemoryStore()
	engine := auction.New(sessions, auction.WithBidTimeout(cfg.Auction.DefaultBidTimeout))

	h := handlers.New(engine, archiver)

	log.Info().
		Str("archive_backend", driver.Kind()).
		Int("port", cfg.Port).
		Msg("Marketplace initialized")

	return &Server{
		Handler:  api.NewRouter(cfg, h),
		Engine:   engine,
		Archiver: archiver,
		Port:     cfg.Port,
		ShutdownFunc: func(ctx context.Context) error {
			if err := driver.Close(ctx); err != nil {
				return err
			}
			return shutdownTelemetry(ctx)
		},
	}, nil
}

// newArchiveDriver selects the archive backend from config.
func newArchiveDriver(ctx context.Context, cfg config.ArchiveConfig) (archive.Driver, error) {
	switch cfg.Backend {
	case "", "memory":
		return archive.NewMemoryDriver(), nil
	case "postgres":
		return archive.NewPostgresDriver(ctx, cfg.PostgresURL)
	case "mongo":
		return archive.NewMongoDriver(ctx, cfg.MongoURL, cfg.MongoDB)
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}
