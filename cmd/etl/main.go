package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/agri-data-etl/internal/adapter/csvsource"
	httpadapter "github.com/couchcryptid/agri-data-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/agri-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/agri-data-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/agri-data-etl/internal/config"
	"github.com/couchcryptid/agri-data-etl/internal/domain"
	"github.com/couchcryptid/agri-data-etl/internal/observability"
	"github.com/couchcryptid/agri-data-etl/internal/pipeline"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rules, err := loadRules(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to load rules", "error", err, "rules_file", cfg.RulesFile)
		os.Exit(1)
	}
	transformer, err := pipeline.NewTransformer(rules, logger)
	if err != nil {
		logger.Error("invalid rules", "error", err, "rules_file", cfg.RulesFile)
		os.Exit(1)
	}

	fields, err := sqlite.Open(cfg.FieldDBPath, cfg.FieldQuery, cfg.FieldColumnRenames, logger)
	if err != nil {
		logger.Error("failed to open field database", "error", err)
		os.Exit(1)
	}
	weather := csvsource.New(cfg.WeatherCSVURL, cfg.FetchTimeout, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)

	p := pipeline.New(fields, weather, transformer, writer, logger, metrics, cfg.RunInterval)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ETL pipeline. With RUN_INTERVAL=0 it returns after one run.
	exitCode := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
			exitCode = 1
		}
		stop()
	}()

	<-ctx.Done()
	<-done
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := fields.Close(); err != nil {
		logger.Error("field database close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// loadRules reads the rules file and folds in the station map table when
// STATION_MAP_URL is set.
func loadRules(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.Rules, error) {
	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		return domain.Rules{}, err
	}
	if cfg.StationMapURL == "" {
		return rules, nil
	}
	stations, err := csvsource.LoadStationMap(ctx, csvsource.New(cfg.StationMapURL, cfg.FetchTimeout, logger))
	if err != nil {
		return domain.Rules{}, err
	}
	logger.Info("station map loaded", "source", cfg.StationMapURL, "fields", len(stations))
	return config.WithStations(rules, stations), nil
}
