package storage

import (
	"context"
	"sync"

	"github.com/annel0/voxel-world/internal/world"
)

// MemoryChunkStore держит записи в памяти процесса (тесты, временные миры)
type MemoryChunkStore struct {
	mu      sync.RWMutex
	records map[world.ChunkCoord][]byte
}

// NewMemoryChunkStore создаёт пустое хранилище
func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{records: make(map[world.ChunkCoord][]byte)}
}

func (s *MemoryChunkStore) SaveChunk(_ context.Context, coord world.ChunkCoord, voxels []byte) error {
	rec, err := EncodeChunk(coord, voxels)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.records[coord] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryChunkStore) LoadChunk(_ context.Context, coord world.ChunkCoord) ([]byte, bool, error) {
	s.mu.RLock()
	rec, ok := s.records[coord]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	voxels, err := DecodeChunk(coord, rec)
	if err != nil {
		return nil, false, err
	}
	return voxels, true, nil
}

// Len возвращает число сохранённых чанков
func (s *MemoryChunkStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryChunkStore) Close() error { return nil }
