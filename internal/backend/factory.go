package backend

import (
	"context"
	"fmt"

	"kas/internal/lock"
	"kas/internal/log"
	"kas/internal/storage"
	"kas/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if !config.Type.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", config.Type)
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Backend: repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context) (*BackendResult, error) {
	store := memory.New()

	f.logger.InfoContext(ctx, "Initialized memory backend")

	return &BackendResult{
		Backend: store,
		Cleanup: store.Close,
	}, nil
}

// CreateLocker implements Factory.CreateLocker
func (f *DefaultFactory) CreateLocker(ctx context.Context, config Config) (*LockerResult, error) {
	switch config.Lock {
	case "", NoLock:
		return &LockerResult{}, nil
	case LocalLock:
		f.logger.InfoContext(ctx, "Using in-process ledger lock")
		return &LockerResult{Locker: &lock.Local{}}, nil
	case RedisLock:
		rdb, err := lock.Dial(ctx, config.RedisAddress)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		f.logger.InfoContext(ctx, "Using Redis ledger lock",
			"address", config.RedisAddress,
			"ttl", config.LockTTL,
			"wait", config.LockWait)
		return &LockerResult{
			Locker:  lock.NewRedis(rdb, config.LockTTL, config.LockWait, f.logger),
			Cleanup: rdb.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported lock type: %s", config.Lock)
	}
}
