package core

import (
	"context"
	"fmt"
	"time"

	"labstock/internal/infra/persistence/memory"
	"labstock/internal/infra/persistence/postgres"
	"labstock/internal/infra/persistence/sqlite"
	"labstock/internal/infra/persistence/sqlstore"
	"labstock/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StoreConfig selects and configures the persistent store.
type StoreConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	// NowFunc overrides the record timestamp clock; nil uses time.Now.
	NowFunc func() time.Time
}

// OpenPersistentStore opens the backend described by cfg. An empty driver
// selects sqlite. SQL backends are migrated before they are returned.
func OpenPersistentStore(ctx context.Context, cfg StoreConfig, engine *domain.RulesEngine) (domain.PersistentStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	switch cfg.Driver {
	case StorageMemory:
		return memory.NewStore(engine, memory.WithNowFunc(cfg.NowFunc)), nil
	case "", StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, engine, sqlstore.WithNowFunc(cfg.NowFunc))
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN, engine, sqlstore.WithNowFunc(cfg.NowFunc))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
