// Package cli holds the start-up steps shared by the kas binaries.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"kas/internal/amqp"
	"kas/internal/backend"
	"kas/internal/config"
	"kas/internal/ledger"
	"kas/internal/log"
)

// LoadConfig loads the .env file, when present, and the environment.
func LoadConfig() *config.Config {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()
	return config.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// MustValidate exits the process when cfg is invalid.
func MustValidate(cfg *config.Config, logger *log.Logger) {
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
}

// Ledger is an opened store with the engine built on top of it.
type Ledger struct {
	Store  backend.Backend
	Engine *ledger.Service

	cleanups []backend.CleanupFunc
	logger   *log.Logger
}

// OpenLedger creates the configured store and, when withLock is set, the
// configured per-owner lock, and builds the engine over them.
func OpenLedger(ctx context.Context, cfg *config.Config, logger *log.Logger, withLock bool) (*Ledger, error) {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	factory := backend.NewFactory(logger)

	store, err := factory.CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, err
	}
	l := &Ledger{Store: store.Backend, logger: logger}
	l.addCleanup(store.Cleanup)

	opts := []ledger.Option{ledger.WithLocation(cfg.Location()), ledger.WithLogger(logger)}
	if withLock {
		locker, err := factory.CreateLocker(ctx, backendCfg)
		if err != nil {
			l.Close()
			return nil, err
		}
		l.addCleanup(locker.Cleanup)
		if locker.Locker != nil {
			opts = append(opts, ledger.WithLocker(locker.Locker))
		}
	}
	l.Engine = ledger.NewService(store.Backend, store.Backend, opts...)
	return l, nil
}

func (l *Ledger) addCleanup(fn backend.CleanupFunc) {
	if fn != nil {
		l.cleanups = append(l.cleanups, fn)
	}
}

// Close releases everything OpenLedger acquired, newest first.
func (l *Ledger) Close() {
	for i := len(l.cleanups) - 1; i >= 0; i-- {
		if err := l.cleanups[i](); err != nil {
			l.logger.Error("Cleanup failed", log.FieldError, err)
		}
	}
	l.cleanups = nil
}

// OptionalPublisher connects to AMQP when it is configured. A nil client
// means events are disabled; connection failures are logged, not fatal.
func OptionalPublisher(cfg *config.Config, logger *log.Logger) *amqp.Client {
	if !cfg.AMQPEnabled() {
		logger.Info("AMQP disabled - ledger events will not be published")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, ledger events disabled", log.FieldError, err)
		return nil
	}
	logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
	return client
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// IsShutdown reports whether err only says the process is stopping.
func IsShutdown(err error) bool {
	return errors.Is(err, context.Canceled)
}
