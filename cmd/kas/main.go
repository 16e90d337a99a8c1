package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"kas/internal/auth"
	"kas/internal/cache"
	"kas/internal/cli"
	apphttp "kas/internal/http"
	"kas/internal/log"
	"kas/internal/services"
)

func main() {
	cfg := cli.LoadConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)
	cli.MustValidate(cfg, logger)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	l, err := cli.OpenLedger(ctx, cfg, logger, true)
	if err != nil {
		logger.Error("Failed to open ledger", log.FieldError, err, "backend", cfg.DataBackend, "lock", cfg.LedgerLock)
		os.Exit(1)
	}
	defer l.Close()

	summaries := cache.NewSummaryCache(cfg.SummaryCacheSize, cfg.SummaryCacheTTL)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(summaries)
	cacheManager.StartCleanup(time.Minute)
	defer cacheManager.Stop()

	svcCfg := services.LedgerServiceConfig{
		Summaries:   summaries,
		Revisions:   l.Store,
		PhoneRegion: cfg.PhoneRegion,
		Logger:      logger,
	}
	if publisher := cli.OptionalPublisher(cfg, logger); publisher != nil {
		defer publisher.Close()
		svcCfg.Publisher = publisher
	}
	ledgerService := services.NewLedgerService(l.Engine, l.Store, l.Store, svcCfg)

	srv, err := apphttp.NewServer(apphttp.ServerConfig{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Logger:             logger,
		Store:              l.Store,
		Summaries:          summaries,
	}, ledgerService, auth.NewJWT(cfg.JWTSecret, cfg.JWTTTL))
	if err != nil {
		logger.Error("Failed to initialize HTTP server", log.FieldError, err)
		os.Exit(1)
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	}()

	logger.Info("Starting kas server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"lock", cfg.LedgerLock,
		"timezone", cfg.LedgerTimezone)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		cancel()
		<-stopped
		l.Close()
		os.Exit(1)
	}

	<-stopped
	logger.Info("Server stopped gracefully")
}
