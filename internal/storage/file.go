package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/annel0/voxel-world/internal/world"
)

// FileChunkStore хранит каждый чанк отдельным файлом chunk_<x>_<z>.vxc.
// Запись атомарна: временный файл переименовывается поверх старого.
type FileChunkStore struct {
	dir string
}

// NewFileChunkStore создаёт каталог при необходимости
func NewFileChunkStore(dir string) (*FileChunkStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог мира %s: %w", dir, err)
	}
	return &FileChunkStore{dir: dir}, nil
}

func (s *FileChunkStore) path(coord world.ChunkCoord) string {
	return filepath.Join(s.dir, fmt.Sprintf("chunk_%d_%d.vxc", coord.X, coord.Z))
}

func (s *FileChunkStore) SaveChunk(ctx context.Context, coord world.ChunkCoord, voxels []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := EncodeChunk(coord, voxels)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".chunk-*.tmp")
	if err != nil {
		return fmt.Errorf("чанк %s: %w", coord, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(rec); err != nil {
		tmp.Close()
		return fmt.Errorf("чанк %s: запись: %w", coord, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("чанк %s: sync: %w", coord, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("чанк %s: %w", coord, err)
	}
	if err := os.Rename(tmp.Name(), s.path(coord)); err != nil {
		return fmt.Errorf("чанк %s: переименование: %w", coord, err)
	}
	return nil
}

func (s *FileChunkStore) LoadChunk(ctx context.Context, coord world.ChunkCoord) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(s.path(coord))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("чанк %s: %w", coord, err)
	}
	voxels, err := DecodeChunk(coord, data)
	if err != nil {
		return nil, false, err
	}
	return voxels, true, nil
}

func (s *FileChunkStore) Close() error { return nil }
