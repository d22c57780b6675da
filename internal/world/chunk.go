package world

import (
	"fmt"
	"sync/atomic"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// Размеры чанка
const (
	ChunkSize   = 16
	ChunkHeight = 256
	ChunkVolume = ChunkSize * ChunkHeight * ChunkSize
	MaxLight    = 15
)

// ChunkCoord - координаты колонки чанка в мире
type ChunkCoord struct {
	X int `json:"x"`
	Z int `json:"z"`
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Z)
}

// Add смещает координату
func (c ChunkCoord) Add(dx, dz int) ChunkCoord {
	return ChunkCoord{X: c.X + dx, Z: c.Z + dz}
}

// Origin возвращает мировые координаты угла чанка (y = 0)
func (c ChunkCoord) Origin() vec.Vec3 {
	return vec.Vec3{X: c.X * ChunkSize, Z: c.Z * ChunkSize}
}

// ChebyshevDistance - расстояние в чанках по максимуму осей
func (c ChunkCoord) ChebyshevDistance(o ChunkCoord) int {
	dx, dz := c.X-o.X, c.Z-o.Z
	if dx < 0 {
		dx = -dx
	}
	if dz < 0 {
		dz = -dz
	}
	if dx > dz {
		return dx
	}
	return dz
}

// ChunkCoordOf возвращает чанк, содержащий мировую позицию
func ChunkCoordOf(pos vec.Vec3) ChunkCoord {
	return ChunkCoord{X: vec.FloorDiv(pos.X, ChunkSize), Z: vec.FloorDiv(pos.Z, ChunkSize)}
}

// LocalOf переводит мировую позицию в локальные координаты чанка
func LocalOf(pos vec.Vec3) (x, y, z int) {
	return vec.FloorMod(pos.X, ChunkSize), pos.Y, vec.FloorMod(pos.Z, ChunkSize)
}

// ChunkState - стадия жизненного цикла чанка
type ChunkState int32

const (
	StateRequested ChunkState = iota
	StateTerrainGenerated
	StateLightingInitialized
	StateActive
)

func (s ChunkState) String() string {
	switch s {
	case StateRequested:
		return "Requested"
	case StateTerrainGenerated:
		return "TerrainGenerated"
	case StateLightingInitialized:
		return "LightingInitialized"
	case StateActive:
		return "Active"
	default:
		return fmt.Sprintf("ChunkState(%d)", int32(s))
	}
}

// Chunk - колонка вокселей 16x256x16 с двумя каналами света и картой высот.
// До TerrainGenerated в чанк пишет только генератор, после - только поток симуляции.
type Chunk struct {
	Coord ChunkCoord // Неизменяемые координаты

	voxels     [ChunkVolume]byte
	SkyLight   *NibbleArray
	BlockLight *NibbleArray
	heightMap  [ChunkSize * ChunkSize]int16 // Y верхнего непрозрачного блока или -1

	state     atomic.Int32
	meshStale atomic.Bool
	modified  atomic.Bool
	disposed  atomic.Bool
}

// NewChunk создаёт пустой чанк в состоянии Requested
func NewChunk(coord ChunkCoord) *Chunk {
	c := &Chunk{
		Coord:      coord,
		SkyLight:   NewNibbleArray(ChunkVolume),
		BlockLight: NewNibbleArray(ChunkVolume),
	}
	for i := range c.heightMap {
		c.heightMap[i] = -1
	}
	return c
}

func voxelIndex(x, y, z int) int {
	return (x*ChunkHeight+y)*ChunkSize + z
}

func inChunkBounds(x, y, z int) bool {
	return x >= 0 && x < ChunkSize && y >= 0 && y < ChunkHeight && z >= 0 && z < ChunkSize
}

// InBounds проверяет локальные координаты
func (c *Chunk) InBounds(x, y, z int) bool {
	return inChunkBounds(x, y, z)
}

// GetBlock возвращает ID блока по локальным координатам (воздух вне границ)
func (c *Chunk) GetBlock(x, y, z int) block.ID {
	if !inChunkBounds(x, y, z) {
		return block.AirID
	}
	return block.ID(c.voxels[voxelIndex(x, y, z)])
}

// SetBlock устанавливает блок по локальным координатам.
// Помечает чанк изменённым; свет и меш не трогает.
func (c *Chunk) SetBlock(x, y, z int, id block.ID) bool {
	if !inChunkBounds(x, y, z) {
		return false
	}
	c.voxels[voxelIndex(x, y, z)] = byte(id)
	c.modified.Store(true)
	return true
}

// HeightAt возвращает Y верхнего непрозрачного блока колонки или -1
func (c *Chunk) HeightAt(x, z int) int {
	if x < 0 || x >= ChunkSize || z < 0 || z >= ChunkSize {
		return -1
	}
	return int(c.heightMap[x*ChunkSize+z])
}

// CanSeeSky - клетка выше верхнего непрозрачного блока своей колонки
func (c *Chunk) CanSeeSky(x, y, z int) bool {
	if x < 0 || x >= ChunkSize || z < 0 || z >= ChunkSize {
		return false
	}
	return y > int(c.heightMap[x*ChunkSize+z])
}

// UpdateHeightMap полностью пересчитывает карту высот
func (c *Chunk) UpdateHeightMap(reg block.Lookup) {
	for x := 0; x < ChunkSize; x++ {
		for z := 0; z < ChunkSize; z++ {
			c.UpdateColumnHeight(x, z, reg)
		}
	}
}

// UpdateColumnHeight пересчитывает высоту одной колонки
func (c *Chunk) UpdateColumnHeight(x, z int, reg block.Lookup) {
	if x < 0 || x >= ChunkSize || z < 0 || z >= ChunkSize {
		return
	}
	h := -1
	for y := ChunkHeight - 1; y >= 0; y-- {
		if reg.Lookup(block.ID(c.voxels[voxelIndex(x, y, z)])).Opaque() {
			h = y
			break
		}
	}
	c.heightMap[x*ChunkSize+z] = int16(h)
}

// Light возвращает канал света
func (c *Chunk) Light(lt LightType) *NibbleArray {
	if lt == LightSky {
		return c.SkyLight
	}
	return c.BlockLight
}

// ClearLight обнуляет оба канала
func (c *Chunk) ClearLight() {
	c.SkyLight.Clear()
	c.BlockLight.Clear()
}

// Voxels возвращает копию плотного массива вокселей
func (c *Chunk) Voxels() []byte {
	out := make([]byte, ChunkVolume)
	copy(out, c.voxels[:])
	return out
}

// LoadVoxels заменяет содержимое чанка сохранёнными данными
func (c *Chunk) LoadVoxels(data []byte) error {
	if len(data) != ChunkVolume {
		return fmt.Errorf("неверный размер данных чанка %s: %d, ожидалось %d", c.Coord, len(data), ChunkVolume)
	}
	copy(c.voxels[:], data)
	return nil
}

// State возвращает текущую стадию
func (c *Chunk) State() ChunkState {
	return ChunkState(c.state.Load())
}

// Advance переводит чанк на следующую стадию. Откат, повтор и пропуск стадий запрещены.
func (c *Chunk) Advance(to ChunkState) bool {
	for {
		cur := c.state.Load()
		if int32(to) != cur+1 {
			return false
		}
		if c.state.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}

func (c *Chunk) MarkMeshStale()    { c.meshStale.Store(true) }
func (c *Chunk) ClearMeshStale()   { c.meshStale.Store(false) }
func (c *Chunk) IsMeshStale() bool { return c.meshStale.Load() }
func (c *Chunk) IsModified() bool  { return c.modified.Load() }
func (c *Chunk) ClearModified()    { c.modified.Store(false) }

// Dispose помечает чанк выгруженным
func (c *Chunk) Dispose() {
	c.disposed.Store(true)
}

// IsDisposed - чанк выгружен из мира
func (c *Chunk) IsDisposed() bool {
	return c.disposed.Load()
}
