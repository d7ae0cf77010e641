package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/photosync/proofing/internal/config"
	"github.com/photosync/proofing/internal/handlers"
	custommw "github.com/photosync/proofing/internal/middleware"
	"github.com/photosync/proofing/internal/observability"
	"github.com/photosync/proofing/internal/repository"
	"github.com/photosync/proofing/internal/services"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		observability.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	observability.GetLogger().SetLevel(observability.ParseLevel(cfg.LogLevel))

	telemetry, err := observability.Initialize(context.Background(), observability.NewConfig(
		"proofing-server", version, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.Environment, cfg.Telemetry.Enabled,
	))
	if err != nil {
		observability.WithError(err).Warn("Telemetry unavailable, continuing without it")
	}

	// Initialize database
	var db *repository.DB
	if cfg.UsePostgres() {
		observability.Info("Using PostgreSQL database")
		db, err = repository.NewPostgresDB(cfg.DatabaseURL)
	} else {
		observability.WithField("path", cfg.DatabasePath).Info("Using SQLite database")
		db, err = repository.NewSQLiteDB(cfg.DatabasePath)
	}
	if err != nil {
		observability.WithError(err).Error("Failed to initialize database")
		os.Exit(1)
	}
	defer db.Close()

	metrics, err := observability.NewProofingMetrics()
	if err != nil {
		observability.WithError(err).Warn("Business metrics unavailable")
	}
	httpMetrics, err := observability.NewHTTPMetrics()
	if err != nil {
		observability.WithError(err).Warn("HTTP metrics unavailable")
	}

	// Collaborators
	catalog := services.NewCatalogClient(cfg.Catalog)

	var notifier services.Notifier = services.LogNotifier{}
	if cfg.SMTP.Enabled() {
		notifier = services.NewSMTPService(cfg.SMTP)
		observability.WithField("host", cfg.SMTP.Host).Info("Mail delivery enabled")
	} else {
		observability.Warn("SMTP not configured, client mail will only be logged")
	}

	// Services
	clients := services.NewClientDirectory(repository.NewClientRepository(db))
	sessions := services.NewSessionService(
		repository.NewSessionRepository(db),
		repository.NewSessionGrantRepository(db),
		clients,
		catalog,
		notifier,
		services.NewLinkBuilder(cfg.PublicBaseURL),
		cfg.Sessions.Lifetime(),
	)
	sessions.SetMetrics(metrics)

	replacements := services.NewReplacementService(repository.NewImageReplacementRepository(db))
	albumViews := services.NewAlbumViewService(sessions, replacements, catalog)

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := services.NewEventHub()
	go hub.Run(hubCtx)

	reconciler := services.NewEditReconciler(
		catalog,
		replacements,
		repository.NewEditNotificationRepository(db),
		repository.NewJobLeaseRepository(db),
		sessions,
		notifier,
		services.ReconcilerConfig{
			Interval:         cfg.Reconciler.Interval(),
			IdleThreshold:    cfg.Reconciler.IdleThreshold(),
			LeaseTTL:         cfg.Reconciler.LeaseTTL(),
			AlbumTimeout:     cfg.Reconciler.AlbumTimeout(),
			SessionRetention: cfg.Reconciler.SessionRetention(),
			EditMarker:       cfg.Reconciler.EditMarker,
		},
	)
	reconciler.SetEvents(hub)
	reconciler.SetMetrics(metrics)

	if cfg.Reconciler.Enabled && cfg.Reconciler.AutoStart {
		reconciler.Start()
	}

	// Handlers
	h := &handlers.Handlers{
		Health:   handlers.NewHealthHandler(db),
		Sessions: handlers.NewSessionHandler(sessions),
		Albums:   handlers.NewAlbumHandler(albumViews),
		Admin:    handlers.NewAdminHandler(sessions, reconciler),
		Events:   handlers.NewEventsHandler(hub, cfg.Security.AllowedOrigins),
	}

	// Setup router
	r := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", cfg.Security.APIKeyHeader},
		MaxAge:         300,
	})

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.TracingMiddleware("proofing-server"))
	if httpMetrics != nil {
		r.Use(observability.MetricsMiddleware(httpMetrics))
	}
	r.Use(corsHandler.Handler)

	h.Register(r, custommw.AdminAuth(cfg.Security))

	// Create server
	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		observability.WithFields(map[string]interface{}{
			"address": cfg.ServerAddress,
			"version": version,
		}).Info("Proofing server starting")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observability.WithError(err).Error("Server error")
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	observability.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reconciler.Stop()
	if err := srv.Shutdown(ctx); err != nil {
		observability.WithError(err).Error("Server forced to shutdown")
	}
	stopHub()
	sessions.Wait()

	if telemetry != nil {
		if err := telemetry.Shutdown(ctx); err != nil {
			observability.WithError(err).Warn("Telemetry shutdown failed")
		}
	}

	observability.Info("Server stopped")
}
