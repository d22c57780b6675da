package world

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/aquilax/go-perlin"

	"github.com/annel0/voxel-world/internal/world/block"
)

// TerrainGenerator заполняет воксели чанка в состоянии Requested.
// Может вызываться из рабочих горутин, поэтому не должен трогать другие чанки.
type TerrainGenerator interface {
	Generate(wctx *WorldContext, c *Chunk) error
}

// Константы высот для генерации
const (
	SeaLevel      = 62
	BaseHeight    = 48 // Минимальная высота поверхности
	HeightRange   = 40 // Разброс высоты от шума
	BeachMargin   = 2  // Песок у воды
	DirtDepth     = 3  // Толщина слоя земли
	TreeMinHeight = 4
)

// PerlinGenerator генерирует холмистый ландшафт с водой и деревьями
type PerlinGenerator struct {
	Seed        int64
	NoiseScale  float64 // Масштаб основного шума (высота)
	TreeDensity float64 // Вероятность дерева на траве

	noise *perlin.Perlin
}

// NewPerlinGenerator создаёт генератор шума Перлина с указанным сидом
func NewPerlinGenerator(seed int64) *PerlinGenerator {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return &PerlinGenerator{
		Seed:        seed,
		NoiseScale:  0.02,
		TreeDensity: 0.01,
		noise:       perlin.NewPerlin(alpha, beta, n, seed),
	}
}

// surfaceHeight возвращает высоту поверхности в мировой колонке
func (g *PerlinGenerator) surfaceHeight(wx, wz int) int {
	// Значение шума (от -1 до 1) приводим к диапазону от 0 до 1
	v := (g.noise.Noise2D(float64(wx)*g.NoiseScale, float64(wz)*g.NoiseScale) + 1.0) / 2.0
	h := BaseHeight + int(v*HeightRange)
	return min(max(h, 1), ChunkHeight-TreeMinHeight-4)
}

// Generate заполняет чанк
func (g *PerlinGenerator) Generate(wctx *WorldContext, c *Chunk) error {
	if c == nil {
		return fmt.Errorf("генератор: пустой чанк")
	}

	// Для каждого чанка свой детерминированный сид
	chunkSeed := g.Seed + int64(c.Coord.X)*341873128712 + int64(c.Coord.Z)*132897987541
	rng := rand.New(rand.NewSource(chunkSeed))

	origin := c.Coord.Origin()
	for x := 0; x < ChunkSize; x++ {
		for z := 0; z < ChunkSize; z++ {
			h := g.surfaceHeight(origin.X+x, origin.Z+z)
			g.fillColumn(c, x, z, h)

			// Деревья только внутри чанка, чтобы крона не вылезала к соседям
			if x < 2 || x > ChunkSize-3 || z < 2 || z > ChunkSize-3 {
				continue
			}
			if c.GetBlock(x, h, z) == block.GrassID && rng.Float64() < g.TreeDensity {
				g.placeTree(c, x, h+1, z, rng)
			}
		}
	}
	return nil
}

func (g *PerlinGenerator) fillColumn(c *Chunk, x, z, h int) {
	c.SetBlock(x, 0, z, block.BedrockID)
	for y := 1; y <= h; y++ {
		var id block.ID
		switch {
		case y <= h-DirtDepth:
			id = block.StoneID
		case h <= SeaLevel+BeachMargin-1:
			id = block.SandID
		case y == h:
			id = block.GrassID
		default:
			id = block.DirtID
		}
		c.SetBlock(x, y, z, id)
	}
	for y := h + 1; y <= SeaLevel; y++ {
		c.SetBlock(x, y, z, block.WaterID)
	}
}

// placeTree ставит ствол и крону; x/z должны быть не ближе двух блоков к краю
func (g *PerlinGenerator) placeTree(c *Chunk, x, y, z int, rng *rand.Rand) {
	height := TreeMinHeight + rng.Intn(3)
	top := y + height - 1
	for dy := -2; dy <= 1; dy++ {
		radius := 2
		if dy >= 0 {
			radius = 1
		}
		for dx := -radius; dx <= radius; dx++ {
			for dz := -radius; dz <= radius; dz++ {
				if c.GetBlock(x+dx, top+dy, z+dz) == block.AirID {
					c.SetBlock(x+dx, top+dy, z+dz, block.LeavesID)
				}
			}
		}
	}
	for ty := y; ty <= top; ty++ {
		c.SetBlock(x, ty, z, block.LogID)
	}
}

// FlatGenerator укладывает одинаковые слои снизу вверх
type FlatGenerator struct {
	Layers []block.ID
}

// NewFlatGenerator - бедрок, три слоя земли и трава
func NewFlatGenerator() *FlatGenerator {
	return &FlatGenerator{Layers: []block.ID{block.BedrockID, block.DirtID, block.DirtID, block.DirtID, block.GrassID}}
}

// Generate заполняет чанк
func (g *FlatGenerator) Generate(_ *WorldContext, c *Chunk) error {
	if len(g.Layers) > ChunkHeight {
		return fmt.Errorf("слишком много слоёв: %d", len(g.Layers))
	}
	for x := 0; x < ChunkSize; x++ {
		for z := 0; z < ChunkSize; z++ {
			for y, id := range g.Layers {
				c.SetBlock(x, y, z, id)
			}
		}
	}
	return nil
}

// NewGenerator выбирает генератор по имени из конфигурации
func NewGenerator(name string, seed int64) (TerrainGenerator, error) {
	switch strings.ToLower(name) {
	case "", "perlin":
		return NewPerlinGenerator(seed), nil
	case "flat":
		return NewFlatGenerator(), nil
	default:
		return nil, fmt.Errorf("неизвестный генератор %q", name)
	}
}
