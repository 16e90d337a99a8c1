package backend

import (
	"context"
	"time"

	"kas/internal/ledger"
)

// Backend is a ledger store: transactions, students and the housekeeping
// the binaries need.
type Backend interface {
	ledger.TransactionStore
	ledger.StudentRegistry
	ledger.RevisionSource
	ListOwners(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// LockerResult contains the ledger locker and optional cleanup function. A
// nil Locker means passes are not serialised.
type LockerResult struct {
	Locker  ledger.Locker
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	// CreateLocker creates the per-owner reconciliation lock
	CreateLocker(ctx context.Context, config Config) (*LockerResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Lock
	Lock         LockType
	RedisAddress string
	LockTTL      time.Duration
	LockWait     time.Duration
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// LockType selects how reconciliation passes are serialised.
type LockType string

const (
	NoLock    LockType = "none"
	LocalLock LockType = "local"
	RedisLock LockType = "redis"
)

func (lt LockType) IsValid() bool {
	switch lt {
	case NoLock, LocalLock, RedisLock:
		return true
	default:
		return false
	}
}
