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

	"github.com/JonMunkholm/rolodex/internal/config"
	"github.com/JonMunkholm/rolodex/internal/core"
	_ "github.com/JonMunkholm/rolodex/internal/core/formats" // register formats
	"github.com/JonMunkholm/rolodex/internal/logging"
	"github.com/JonMunkholm/rolodex/internal/normalize"
	"github.com/JonMunkholm/rolodex/internal/store"
	"github.com/JonMunkholm/rolodex/internal/web"
)

func main() {
	// Overload lets .env win over inherited variables.
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{
		Driver: cfg.Store.Driver,
		DSN:    cfg.DSN(),
		Pool: store.PoolConfig{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		},
	})
	if err != nil {
		slog.Error("failed to open contact store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer st.Close()
	slog.Info("contact store ready", "driver", cfg.Store.Driver)

	normalizer, err := normalize.FromConfig(cfg.LLM)
	if err != nil {
		slog.Error("failed to create normalizer", "error", err)
		os.Exit(1)
	}

	opts := serviceOptions(cfg)
	if cfg.Store.Driver == store.DriverSQLite {
		opts.NewID = store.NewULID
	}
	service := core.NewService(st, normalizer, opts)

	formats := make([]string, 0, core.FormatCount())
	for _, f := range core.Formats() {
		formats = append(formats, string(f.Type))
	}
	slog.Info("formats registered", "formats", formats, "llm", cfg.LLM.APIKey != "")

	server := web.NewServer(service, cfg)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.WaitForImports(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time, cancelling", "error", err)
				service.CancelAll()
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func serviceOptions(cfg *config.Config) core.Options {
	return core.Options{
		Limits: core.Limits{
			MaxContacts:      cfg.Import.MaxContacts,
			MaxRecordTokens:  cfg.Import.MaxRecordTokens,
			ApproachingRatio: cfg.Import.ApproachingRatio,
		},
		MaxBatchRows:         cfg.Import.BatchRows,
		Concurrency:          cfg.Import.Concurrency,
		SaveBatchSize:        cfg.Import.SaveBatchSize,
		PreviewDelay:         cfg.Import.PreviewDelay,
		BatchDelay:           cfg.Import.BatchDelay,
		CompleteDelay:        cfg.Import.CompleteDelay,
		MaxConcurrentImports: cfg.Import.MaxConcurrent,
		MaxWait:              cfg.Import.MaxWaitTime,
		ImportTimeout:        cfg.Import.Timeout,
		SessionTTL:           cfg.Import.SessionTTL,
	}
}
