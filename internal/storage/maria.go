package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/annel0/voxel-world/internal/world"
)

// MariaChunkStore хранит записи чанков в таблице voxel_chunks MariaDB/MySQL.
type MariaChunkStore struct {
	db *sql.DB
}

// NewMariaChunkStore подключается к базе и создаёт таблицу, если её нет.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
func NewMariaChunkStore(ctx context.Context, dsn string) (*MariaChunkStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	// Проверяем соединение
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	s := &MariaChunkStore{db: db}
	if err := s.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}
	return s, nil
}

// createTable создает таблицу voxel_chunks, если она не существует.
func (s *MariaChunkStore) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS voxel_chunks (
			cx         INT        NOT NULL,
			cz         INT        NOT NULL,
			data       MEDIUMBLOB NOT NULL,
			updated_at TIMESTAMP  DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE  CURRENT_TIMESTAMP,
			PRIMARY KEY (cx, cz)
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ошибка создания таблицы voxel_chunks: %w", err)
	}
	return nil
}

// SaveChunk использует INSERT ... ON DUPLICATE KEY UPDATE для перезаписи.
func (s *MariaChunkStore) SaveChunk(ctx context.Context, coord world.ChunkCoord, voxels []byte) error {
	rec, err := EncodeChunk(coord, voxels)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO voxel_chunks (cx, cz, data)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			data = VALUES(data),
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, coord.X, coord.Z, rec); err != nil {
		return fmt.Errorf("ошибка сохранения чанка %s: %w", coord, err)
	}
	return nil
}

func (s *MariaChunkStore) LoadChunk(ctx context.Context, coord world.ChunkCoord) ([]byte, bool, error) {
	var rec []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM voxel_chunks WHERE cx = ? AND cz = ?`, coord.X, coord.Z).Scan(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка загрузки чанка %s: %w", coord, err)
	}

	voxels, err := DecodeChunk(coord, rec)
	if err != nil {
		return nil, false, err
	}
	return voxels, true, nil
}

// Close закрывает пул соединений
func (s *MariaChunkStore) Close() error {
	return s.db.Close()
}
