package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/incidentetl/internal/api"
	"github.com/rpattn/incidentetl/internal/archive"
	"github.com/rpattn/incidentetl/internal/config"
	"github.com/rpattn/incidentetl/internal/db"
	"github.com/rpattn/incidentetl/internal/ingestion"
	"github.com/rpattn/incidentetl/internal/logging"
	"github.com/rpattn/incidentetl/internal/metrics"
	"github.com/rpattn/incidentetl/internal/repository"
)

func main() {
	configDir := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	if err := run(*configDir); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configDir string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	logging.Init(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logger := logging.New("server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run migrations
	if err := db.RunMigrations(cfg.Database, db.Up); err != nil {
		return err
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer conn.Close()

	store, err := archive.Open(ctx, cfg.Archive)
	if err != nil {
		return err
	}

	opts, err := ingestion.OptionsFromConfig(cfg.Ingestion)
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder(true)
	incidentRepo := repository.NewIncidentRepository(conn.Pool)
	logRepo := repository.NewIngestionLogRepository(conn.Pool)

	service := ingestion.NewService(
		ingestion.NewLoader(conn.Pool, cfg.Ingestion.BatchTimeout),
		logRepo,
		opts,
		ingestion.WithArchive(store),
		ingestion.WithMetrics(recorder),
	)

	router := api.NewRouter(api.RouterDeps{
		Incidents:      api.NewIncidentHandler(incidentRepo, service.Coercer()),
		Ingestion:      ingestion.NewHTTPHandler(service, cfg.Server.MaxUploadBytes),
		Metrics:        recorder.Handler(),
		Health:         conn.Pool.Ping,
		Logger:         logging.New("http"),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", cfg.Server.Addr), slog.String("archive", cfg.Archive.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server exited")
	return nil
}
