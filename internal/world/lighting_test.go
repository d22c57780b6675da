package world

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// Факел в воздухе: блочный свет убывает на 1 с каждым блоком по вертикали
func TestTorchLightFalloff(t *testing.T) {
	torch := vec.Vec3{X: 8, Y: 100, Z: 8}
	ts, _ := newFlatWorld(t, 1, torch, nil)
	m := ts.Manager()

	require.True(t, m.SetBlock(torch, block.TorchID))
	drainLighting(m.Lighting())

	for d := 0; d <= 14; d++ {
		want := uint8(max(14-d, 0))
		assert.Equal(t, want, blockLightAt(m, torch.Add(vec.Vec3{Y: d})), "над факелом на %d", d)
		assert.Equal(t, want, blockLightAt(m, torch.Add(vec.Vec3{Y: -d})), "под факелом на %d", d)
	}
	assert.Equal(t, uint8(15), m.Lighting().GetCombinedLight(torch), "на открытом небе небесный свет сильнее")

	m.Lighting().SetSkySubtracted(15)
	assert.Equal(t, uint8(14), m.Lighting().GetCombinedLight(torch))
	assert.Equal(t, uint8(11), m.Lighting().GetCombinedLight(torch.Add(vec.Vec3{X: 3})))
}

// Снятие потолка: колонка под ним получает полный небесный свет
func TestCeilingRemovalRestoresSky(t *testing.T) {
	center := vec.Vec3{X: 8, Y: 50, Z: 8}
	ts, _ := newFlatWorld(t, 1, center, nil)
	m := ts.Manager()

	for x := 6; x <= 10; x++ {
		for z := 6; z <= 10; z++ {
			require.True(t, m.SetBlock(vec.Vec3{X: x, Y: 50, Z: z}, block.StoneID))
		}
	}
	drainLighting(m.Lighting())
	assert.Equal(t, uint8(12), skyAt(m, vec.Vec3{X: 8, Y: 49, Z: 8}), "под потолком свет приходит сбоку")

	require.True(t, m.SetBlock(center, block.AirID))
	drainLighting(m.Lighting())
	for y := 5; y <= 60; y++ {
		assert.Equal(t, uint8(15), skyAt(m, vec.Vec3{X: 8, Y: y, Z: 8}), "y=%d", y)
	}
	assert.Equal(t, uint8(0), skyAt(m, vec.Vec3{X: 8, Y: 4, Z: 8}), "трава непрозрачна")
}

// Переполнение очереди: лишнее задание отбрасывается с предупреждением
func TestLightingQueueOverflow(t *testing.T) {
	if testing.Short() {
		t.Skip("миллион заданий в коротком режиме не гоняем")
	}

	var buf bytes.Buffer
	logging.SetOutput(&buf)
	defer logging.SetOutput(os.Stdout)

	m := NewChunkManager(nil, NewFlatGenerator(), nil, DefaultManagerConfig())
	defer m.Close(context.Background())
	l := m.Lighting()

	far := vec.Vec3{X: 1_000_000, Y: 10, Z: 1_000_000}
	for i := 0; i < DefaultLightQueueCapacity; i++ {
		require.True(t, l.ScheduleUpdate(LightSky, UnitRegion(far)))
	}
	assert.False(t, l.ScheduleUpdate(LightSky, UnitRegion(far)), "миллион первое задание не помещается")

	stats := l.Stats()
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, DefaultLightQueueCapacity, stats.Pending)
	assert.True(t, strings.Contains(buf.String(), "Очередь освещения заполнена"), "предупреждение в логе: %q", buf.String())

	assert.Equal(t, DefaultLightQueueCapacity, l.ProcessPending(DefaultLightQueueCapacity))
	assert.Equal(t, 0, l.Pending())
}

func TestOversizedJobDropped(t *testing.T) {
	m := NewChunkManager(nil, NewFlatGenerator(), nil, DefaultManagerConfig())
	defer m.Close(context.Background())
	l := m.Lighting()

	big := NewRegion(vec.Vec3{}, vec.Vec3{X: 63, Y: 63, Z: 63})
	require.True(t, l.ScheduleUpdate(LightBlock, big))
	assert.Equal(t, 1, l.ProcessPending(0))
	assert.Equal(t, uint64(1), l.Stats().Oversized)

	assert.Equal(t, 8, l.ScheduleRegion(LightBlock, big), "ScheduleRegion режет регион на допустимые части")
}

func TestLightingIdempotent(t *testing.T) {
	ts, _ := newFlatWorld(t, 1, vec.Vec3{X: 8, Y: 64, Z: 8}, nil)
	m := ts.Manager()
	l := m.Lighting()
	require.True(t, m.SetBlock(vec.Vec3{X: 4, Y: 5, Z: 4}, block.GlowstoneID))
	drainLighting(l)

	c := m.GetChunk(ChunkCoord{})
	sky := c.SkyLight.Bytes()
	blk := c.BlockLight.Bytes()
	changed := l.Stats().CellsChanged

	l.ScheduleRegion(LightSky, ColumnRegion(c.Coord, 0))
	l.ScheduleRegion(LightBlock, ColumnRegion(c.Coord, 0))
	drainLighting(l)

	assert.Equal(t, changed, l.Stats().CellsChanged, "повторный пересчёт сошедшегося региона ничего не меняет")
	assert.Equal(t, sky, c.SkyLight.Bytes())
	assert.Equal(t, blk, c.BlockLight.Bytes())
}

func TestCombinedLightRange(t *testing.T) {
	ts, _ := newFlatWorld(t, 1, vec.Vec3{X: 8, Y: 64, Z: 8}, nil)
	m := ts.Manager()
	l := m.Lighting()
	require.True(t, m.SetBlock(vec.Vec3{X: 8, Y: 5, Z: 8}, block.TorchID))
	drainLighting(l)

	for _, sub := range []int{0, 7, 15, 40} {
		l.SetSkySubtracted(sub)
		for y := -2; y < ChunkHeight+2; y += 3 {
			for x := -20; x < 36; x += 5 {
				v := l.GetCombinedLight(vec.Vec3{X: x, Y: y, Z: 8})
				assert.LessOrEqual(t, v, uint8(MaxLight))
			}
		}
	}
	assert.Equal(t, uint8(MaxLight), l.GetCombinedLight(vec.Vec3{X: 8, Y: -1, Z: 8}), "вне мира")
	assert.Equal(t, uint8(MaxLight), l.GetCombinedLight(vec.Vec3{X: 5000, Y: 10, Z: 8}), "незагруженный чанк")
}

func TestNewChunkLitFromNeighbours(t *testing.T) {
	ts, _ := newFlatWorld(t, 0, vec.Vec3{X: 8, Y: 64, Z: 8}, nil)
	m := ts.Manager()
	assert.Equal(t, 1, m.Count())

	c := m.GetChunk(ChunkCoord{})
	require.NotNil(t, c)
	assert.Equal(t, StateLightingInitialized, c.State())
	assert.Equal(t, uint8(15), c.SkyLight.Get3D(0, 5, 0))
	assert.Equal(t, uint8(0), c.SkyLight.Get3D(0, 3, 0), "под землёй темно")
}
