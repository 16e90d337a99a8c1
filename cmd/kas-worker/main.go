package main

import (
	"os"

	"kas/internal/amqp"
	"kas/internal/backend"
	"kas/internal/cli"
	"kas/internal/log"
	"kas/internal/sheets"
	gsheet "kas/internal/sheets/google"
	memsheet "kas/internal/sheets/memory"
	"kas/internal/worker"
)

func main() {
	cfg := cli.LoadConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting kas-worker")
	cli.MustValidate(cfg, logger)

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required: the worker consumes ledger events")
		os.Exit(1)
	}
	if cfg.DataBackend == string(backend.MemoryBackend) {
		logger.Warn("Memory backend is private to this process; exports will only see its own data")
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	// Exports only read, so no ledger lock is taken.
	l, err := cli.OpenLedger(ctx, cfg, logger, false)
	if err != nil {
		logger.Error("Failed to open ledger", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer l.Close()

	var exporter sheets.SummaryExporter
	if cfg.GoogleSpreadsheetID != "" {
		if err := cfg.ValidateSheets(); err != nil {
			logger.Error("Sheets configuration invalid", log.FieldError, err)
			os.Exit(1)
		}
		client, err := gsheet.NewClient(ctx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		exporter = memsheet.New()
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, summaries kept in memory")
	}

	summaryWorker := worker.NewSummaryWorker(l.Engine, exporter, l.Store, logger)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	logger.Info("Performing startup sync check...")
	if err := summaryWorker.StartupSyncCheck(ctx); err != nil {
		// Later events catch up the owners that failed here.
		logger.Error("Failed startup sync check", log.FieldError, err)
	}

	if err := amqpClient.RunConsumer(ctx, summaryWorker.HandleLedgerChanged); err != nil && !cli.IsShutdown(err) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
