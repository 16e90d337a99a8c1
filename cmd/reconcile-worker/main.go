package main

import (
	"context"
	"os"
	"time"

	"kas/internal/cli"
	"kas/internal/log"
	"kas/internal/services"
)

func main() {
	cfg := cli.LoadConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting reconcile-worker")
	cli.MustValidate(cfg, logger)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	l, err := cli.OpenLedger(ctx, cfg, logger, true)
	if err != nil {
		logger.Error("Failed to open ledger", log.FieldError, err, "backend", cfg.DataBackend, "lock", cfg.LedgerLock)
		os.Exit(1)
	}
	defer l.Close()

	// Reconciled months are announced so kas-worker refreshes the export.
	svcCfg := services.LedgerServiceConfig{PhoneRegion: cfg.PhoneRegion, Logger: logger}
	if publisher := cli.OptionalPublisher(cfg, logger); publisher != nil {
		defer publisher.Close()
		svcCfg.Publisher = publisher
	}
	ledgerService := services.NewLedgerService(l.Engine, l.Store, l.Store, svcCfg)

	processor := services.NewReconcileProcessor(l.Store, ledgerService, services.ReconcileProcessorConfig{
		Interval: cfg.ReconcileInterval,
	}, logger)

	logger.Info("Reconcile processor configured",
		"interval", cfg.ReconcileInterval,
		"backend", cfg.DataBackend,
		"lock", cfg.LedgerLock)

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start reconcile processor", log.FieldError, err)
		os.Exit(1)
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := processor.Stop(shutdownCtx); err != nil {
		logger.Warn("Reconcile processor did not stop cleanly", log.FieldError, err)
	}
	logger.Info("Reconcile worker stopped")
}
