package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/annel0/voxel-world/internal/world"
)

// ErrCorruptRecord - запись чанка повреждена или не того формата
var ErrCorruptRecord = errors.New("повреждённая запись чанка")

// Формат записи:
//
//	magic "VXC1" | version u8 | x i32 | z i32 | rawLen u32 | xxhash64(raw) u64 | zstd(raw)
const (
	recordMagic   = "VXC1"
	recordVersion = 1
	headerSize    = 4 + 1 + 4 + 4 + 4 + 8
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// EncodeChunk упаковывает воксели чанка в сжатую запись с контрольной суммой
func EncodeChunk(coord world.ChunkCoord, voxels []byte) ([]byte, error) {
	if len(voxels) != world.ChunkVolume {
		return nil, fmt.Errorf("чанк %s: размер %d, ожидалось %d", coord, len(voxels), world.ChunkVolume)
	}

	out := make([]byte, headerSize, headerSize+len(voxels)/8)
	copy(out, recordMagic)
	out[4] = recordVersion
	binary.LittleEndian.PutUint32(out[5:], uint32(int32(coord.X)))
	binary.LittleEndian.PutUint32(out[9:], uint32(int32(coord.Z)))
	binary.LittleEndian.PutUint32(out[13:], uint32(len(voxels)))
	binary.LittleEndian.PutUint64(out[17:], xxhash.Sum64(voxels))
	return encoder.EncodeAll(voxels, out), nil
}

// DecodeChunk распаковывает запись и проверяет координаты и контрольную сумму
func DecodeChunk(coord world.ChunkCoord, data []byte) ([]byte, error) {
	if len(data) < headerSize || string(data[:4]) != recordMagic {
		return nil, fmt.Errorf("чанк %s: неизвестный заголовок: %w", coord, ErrCorruptRecord)
	}
	if data[4] != recordVersion {
		return nil, fmt.Errorf("чанк %s: версия %d: %w", coord, data[4], ErrCorruptRecord)
	}
	x := int(int32(binary.LittleEndian.Uint32(data[5:])))
	z := int(int32(binary.LittleEndian.Uint32(data[9:])))
	if x != coord.X || z != coord.Z {
		return nil, fmt.Errorf("чанк %s: запись принадлежит (%d,%d): %w", coord, x, z, ErrCorruptRecord)
	}
	rawLen := binary.LittleEndian.Uint32(data[13:])
	if rawLen != world.ChunkVolume {
		return nil, fmt.Errorf("чанк %s: размер %d: %w", coord, rawLen, ErrCorruptRecord)
	}
	sum := binary.LittleEndian.Uint64(data[17:])

	raw, err := decoder.DecodeAll(data[headerSize:], make([]byte, 0, rawLen))
	if err != nil {
		return nil, fmt.Errorf("чанк %s: %v: %w", coord, err, ErrCorruptRecord)
	}
	if len(raw) != int(rawLen) || xxhash.Sum64(raw) != sum {
		return nil, fmt.Errorf("чанк %s: контрольная сумма не совпала: %w", coord, ErrCorruptRecord)
	}
	return raw, nil
}

// chunkKey - ключ чанка в KV-хранилищах
func chunkKey(coord world.ChunkCoord) string {
	return fmt.Sprintf("chunk:%d:%d", coord.X, coord.Z)
}
