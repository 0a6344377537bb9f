package scheduler

import (
	"context"

	"github.com/overlaylabs/copresence/internal/logger"
	"github.com/overlaylabs/copresence/internal/registry"
	redisstore "github.com/overlaylabs/copresence/internal/store/redis"
)

// StoreSyncer seeds the session registry from persisted rows on startup so
// presence survives process restarts. Sessions that went invalid while the
// process was down are skipped by the registry.
type StoreSyncer struct {
	store    *redisstore.Store
	registry *registry.Registry
	logger   logger.Logger
}

// NewStoreSyncer creates a new store syncer
func NewStoreSyncer(
	store *redisstore.Store,
	reg *registry.Registry,
	log logger.Logger,
) *StoreSyncer {
	return &StoreSyncer{
		store:    store,
		registry: reg,
		logger:   log,
	}
}

// Sync loads persisted sessions into the registry.
func (ss *StoreSyncer) Sync(ctx context.Context) error {
	ss.logger.Info("syncing sessions from redis to registry")

	sessions, err := ss.store.ListSessions(ctx)
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		ss.logger.Info("no sessions found in redis")
		return nil
	}

	loaded := ss.registry.Load(sessions)

	ss.logger.Info("synced sessions from redis",
		logger.Int("persisted", len(sessions)),
		logger.Int("loaded", loaded))

	return nil
}
