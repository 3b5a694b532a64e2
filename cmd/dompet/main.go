package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"dompet/internal/backend"
	"dompet/internal/cache"
	"dompet/internal/cli"
	apphttp "dompet/internal/http"
	"dompet/internal/log"
	"dompet/internal/sheets"
	gsheet "dompet/internal/sheets/google"
	"dompet/internal/store"
)

const cacheCleanupInterval = 10 * time.Minute

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend)).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend",
			log.FieldErrorType, log.ErrorTypeStorage,
			log.FieldError, err,
			"backend", cfg.DataBackend)
		os.Exit(1)
	}

	ledgerStore := store.New(res.Blobs, store.Options{
		Namespace: cfg.StorageNamespace,
		Notifier:  res.Notifier,
		Logger:    logger.WithComponent(log.ComponentStore),
	})
	if err := ledgerStore.Load(ctx); err != nil {
		logger.Error("Failed to load ledger", log.FieldOperation, log.OpLoad, log.FieldError, err)
		os.Exit(1)
	}

	cacheManager := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	cacheManager.Register(res.Cache)
	cacheManager.StartCleanup(cacheCleanupInterval)

	var exporter sheets.LedgerExporter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsFile: cfg.GoogleCredentialsFile,
		})
		if err != nil {
			logger.Warn("Google Sheets export disabled",
				log.FieldErrorType, log.ErrorTypeConfiguration,
				log.FieldError, err)
		} else {
			exporter = client
			logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, ledgerStore, apphttp.Options{
		Exporter: exporter,
		Ready:    res.Ready,
		Logger:   logger.WithComponent(log.ComponentHTTP),
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	runCtx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	go watchChanges(runCtx, logger, ledgerStore, res)

	logger.Info("Starting dompet server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp", cfg.AMQPEnabled(),
		"sheets", exporter != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(runCtx, done)
	logger.Info("Server stopped gracefully")
}

// watchChanges reloads collections written by other instances until ctx is
// cancelled.
func watchChanges(ctx context.Context, logger *log.Logger, s *store.Store, res *backend.BackendResult) {
	err := s.Watch(ctx, res.Subscriber)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Change subscription stopped",
			log.FieldOperation, log.OpReload,
			log.FieldError, err)
	}
}
