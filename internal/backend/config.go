package backend

import (
	"fmt"

	"kas/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}
	lockType := LockType(appConfig.LedgerLock)
	if lockType == "" {
		lockType = NoLock
	}

	cfg := Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		Lock:         lockType,
		RedisAddress: appConfig.RedisAddress,
		LockTTL:      appConfig.LockTTL,
		LockWait:     appConfig.LockWait,
	}
	return cfg, cfg.Validate()
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}

	if !c.Lock.IsValid() {
		return fmt.Errorf("invalid lock type: %s", c.Lock)
	}
	if c.Lock == RedisLock {
		if c.RedisAddress == "" {
			return fmt.Errorf("Redis address is required for redis lock")
		}
		if c.LockTTL <= 0 {
			return fmt.Errorf("lock TTL must be positive for redis lock")
		}
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
