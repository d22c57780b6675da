package storage

import (
	"context"
	"fmt"

	"github.com/annel0/voxel-world/internal/config"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/world"
)

// Open создаёт хранилище по конфигурации. Если задан redis.addr, перед ним ставится кеш.
func Open(ctx context.Context, cfg config.StorageConfig) (world.ChunkStore, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	log := logging.GetStorageLogger()

	var (
		store world.ChunkStore
		err   error
	)
	switch cfg.Backend {
	case "memory":
		store = NewMemoryChunkStore()
	case "", "file":
		store, err = NewFileChunkStore(cfg.Path)
	case "badger":
		store, err = NewBadgerChunkStore(cfg.Path)
	case "mysql":
		store, err = NewMariaChunkStore(ctx, cfg.MariaDSN)
	case "mongo":
		store, err = NewMongoChunkStore(ctx, MongoConfig{URI: cfg.MongoURI, Database: cfg.MongoDB})
	default:
		return nil, fmt.Errorf("неизвестный backend хранилища %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("хранилище %s: %w", cfg.Backend, err)
	}
	log.Info("Хранилище чанков: %s", cfg.Backend)

	if cfg.Redis.Addr == "" {
		return store, nil
	}
	cached, err := NewCachedChunkStore(ctx, store, RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Redis.TTL,
	})
	if err != nil {
		// без кеша мир работает, только медленнее
		log.Warn("Кеш Redis недоступен, работаем без него: %v", err)
		return store, nil
	}
	log.Info("Кеш чанков Redis: %s", cfg.Redis.Addr)
	return cached, nil
}
