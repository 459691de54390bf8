package storage

import (
	"fmt"

	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/models"
)

// NewStore opens the durable store selected by storage.db_type.
func NewStore(cfg models.MStorageConfig, log *logger.Logger) (interfaces.IKeyValueStore, error) {
	switch cfg.DBType {
	case "sqlite":
		s, err := NewSQLiteStore(cfg.DBPath, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgresStore(cfg.DBConnectionString, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DBType)
	}
}
