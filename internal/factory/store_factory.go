package factory

import (
	"context"
	"fmt"

	"github.com/mikey/llm-inbox-triage/internal/adapters/dedup"
	"github.com/mikey/llm-inbox-triage/internal/adapters/store"
	"github.com/mikey/llm-inbox-triage/internal/config"
	"github.com/mikey/llm-inbox-triage/internal/core"
	"go.uber.org/zap"
)

// StoreFactory creates the pattern store and dedup backend based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore creates the store selected by store.type
func (f *StoreFactory) CreateStore() (store.Store, error) {
	storeType := f.cfg.GetString("store.type")
	cleanupFreq, err := f.cfg.GetDuration("store.cleanup_frequency")
	if err != nil {
		return nil, err
	}
	retention, err := f.cfg.GetDuration("dedup.retention")
	if err != nil {
		return nil, err
	}

	switch storeType {
	case "memory":
		return store.NewMemoryStore(f.logger, cleanupFreq, retention), nil
	case "sqlite":
		return store.NewSQLiteStore(f.cfg.GetString("store.sqlite_path"), f.logger, cleanupFreq, retention)
	case "mysql":
		return store.NewMySQLStore(f.cfg.GetString("store.mysql_dsn"), f.logger, cleanupFreq, retention)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}

// CreateDedup returns the dedup backend selected by dedup.type. The "store"
// type reuses the pattern store's processed_messages table.
func (f *StoreFactory) CreateDedup(ctx context.Context, s store.Store) (core.DedupStore, error) {
	dedupType := f.cfg.GetString("dedup.type")

	switch dedupType {
	case "", "store":
		return s, nil
	case "redis":
		retention, err := f.cfg.GetDuration("dedup.retention")
		if err != nil {
			return nil, err
		}
		client, err := dedup.Connect(ctx,
			f.cfg.GetString("dedup.redis_addr"),
			f.cfg.GetString("dedup.redis_password"),
			f.cfg.GetInt("dedup.redis_db"))
		if err != nil {
			return nil, err
		}
		f.logger.Info("Using Redis dedup", zap.String("addr", f.cfg.GetString("dedup.redis_addr")))
		return dedup.NewRedisDedup(client, f.cfg.GetString("dedup.key_prefix"), retention, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported dedup type: %s", dedupType)
	}
}
