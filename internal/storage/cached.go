package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/world"
)

// RedisOptions - параметры кеша
type RedisOptions struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни записей
}

// CachedChunkStore держит горячие записи в Redis перед основным хранилищем.
// Запись идёт сначала в основное хранилище; сбои кеша не считаются ошибкой.
type CachedChunkStore struct {
	backend   world.ChunkStore
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	log       *logging.Logger
}

// NewCachedChunkStore подключается к Redis и оборачивает backend
func NewCachedChunkStore(ctx context.Context, backend world.ChunkStore, opts RedisOptions) (*CachedChunkStore, error) {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "voxel:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &CachedChunkStore{
		backend:   backend,
		client:    client,
		keyPrefix: opts.KeyPrefix,
		ttl:       opts.TTL,
		log:       logging.GetStorageLogger(),
	}, nil
}

func (s *CachedChunkStore) key(coord world.ChunkCoord) string {
	return s.keyPrefix + chunkKey(coord)
}

func (s *CachedChunkStore) SaveChunk(ctx context.Context, coord world.ChunkCoord, voxels []byte) error {
	if err := s.backend.SaveChunk(ctx, coord, voxels); err != nil {
		// старое значение в кеше больше не верно
		s.client.Del(ctx, s.key(coord))
		return err
	}
	rec, err := EncodeChunk(coord, voxels)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(coord), rec, s.ttl).Err(); err != nil {
		s.log.Warn("Redis: не удалось обновить кеш чанка %s: %v", coord, err)
		// иначе следующее чтение вернёт прежнюю запись
		if err := s.client.Del(ctx, s.key(coord)).Err(); err != nil {
			s.log.Error("Redis: в кеше осталась устаревшая запись чанка %s: %v", coord, err)
		}
	}
	return nil
}

func (s *CachedChunkStore) LoadChunk(ctx context.Context, coord world.ChunkCoord) ([]byte, bool, error) {
	rec, err := s.client.Get(ctx, s.key(coord)).Bytes()
	switch {
	case err == nil:
		voxels, derr := DecodeChunk(coord, rec)
		if derr == nil {
			return voxels, true, nil
		}
		s.log.Warn("Redis: %v, читаем из основного хранилища", derr)
		s.client.Del(ctx, s.key(coord))
	case !errors.Is(err, redis.Nil):
		s.log.Warn("Redis: ошибка чтения чанка %s: %v", coord, err)
	}

	voxels, found, err := s.backend.LoadChunk(ctx, coord)
	if err != nil || !found {
		return voxels, found, err
	}
	if rec, err := EncodeChunk(coord, voxels); err == nil {
		if err := s.client.Set(ctx, s.key(coord), rec, s.ttl).Err(); err != nil {
			s.log.Debug("Redis: не удалось прогреть кеш чанка %s: %v", coord, err)
		}
	}
	return voxels, true, nil
}

// Close закрывает клиент Redis и основное хранилище
func (s *CachedChunkStore) Close() error {
	return errors.Join(s.client.Close(), s.backend.Close())
}
