package storage

import (
	"path/filepath"

	"distill-client/internal/config"
	"distill-client/pkg/logger"
)

// Open builds the backend named by cfg.Type. A backend that fails to
// initialize is replaced by an in-memory one so the client still starts.
func Open(cfg config.StorageConfig) Backend {
	var backend Backend

	switch cfg.Type {
	case "disk":
		backend = NewDiskStorage(cfg.DataDir, cfg.CacheSize)
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "client.db")
		}
		backend = NewSQLiteStorage(path)
	default:
		backend = NewMemoryStorage()
	}

	if err := backend.Init(); err != nil {
		logger.Errorf("Failed to initialize %s storage, falling back to memory: %v", cfg.Type, err)
		backend = NewMemoryStorage()
		backend.Init()
	}

	return backend
}
