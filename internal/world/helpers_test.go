package world

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// memStore - хранилище в памяти для тестов мира
type memStore struct {
	mu      sync.Mutex
	data    map[ChunkCoord][]byte
	saves   int
	loadErr error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[ChunkCoord][]byte)}
}

func (s *memStore) SaveChunk(_ context.Context, coord ChunkCoord, voxels []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[coord] = append([]byte(nil), voxels...)
	s.saves++
	return nil
}

func (s *memStore) LoadChunk(_ context.Context, coord ChunkCoord) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, false, s.loadErr
	}
	d, ok := s.data[coord]
	return d, ok, nil
}

func (s *memStore) Close() error { return nil }

type brokenEvent struct {
	pos vec.Vec3
	def block.Definition
}

// recordingEffects запоминает разрушенные блоки
type recordingEffects struct {
	broken []brokenEvent
}

func (e *recordingEffects) BlockBroken(pos vec.Vec3, def block.Definition) {
	e.broken = append(e.broken, brokenEvent{pos: pos, def: def})
}

// panicGenerator всегда падает
type panicGenerator struct{}

func (panicGenerator) Generate(*WorldContext, *Chunk) error { panic("сломанный генератор") }

type failingGenerator struct{}

func (failingGenerator) Generate(*WorldContext, *Chunk) error { return errors.New("нет данных") }

// newFlatWorld создаёт плоский мир (трава на y=4) с прогретыми чанками вокруг viewpoint
func newFlatWorld(t *testing.T, renderDistance int, viewpoint vec.Vec3, effects Effects) (*WorldTickSystem, *memStore) {
	t.Helper()
	store := newMemStore()
	cfg := DefaultManagerConfig()
	cfg.RenderDistance = renderDistance
	m := NewChunkManager(NewWorldContext(block.DefaultRegistry(), effects, 42), NewFlatGenerator(), store, cfg)
	ts := NewWorldTickSystem(m, DefaultTickConfig())
	require.NoError(t, ts.Warmup(context.Background(), viewpoint))
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return ts, store
}

// drainLighting обрабатывает очередь освещения до пустоты
func drainLighting(e *LightingEngine) {
	for e.Pending() > 0 {
		e.ProcessPending(0)
	}
}

// settle крутит тики, пока не опустеют очереди освещения и мешей
func settle(t *testing.T, ts *WorldTickSystem) {
	t.Helper()
	for i := 0; i < 100_000; i++ {
		ts.Tick()
		s := ts.Manager().Stats()
		if ts.Manager().Lighting().Pending() == 0 && s.PendingMeshes == 0 && s.PendingTerrain == 0 {
			return
		}
	}
	t.Fatal("очереди не опустели")
}

func skyAt(m *ChunkManager, p vec.Vec3) uint8 {
	c := m.GetChunk(ChunkCoordOf(p))
	x, y, z := LocalOf(p)
	return c.SkyLight.Get3D(x, y, z)
}

func blockLightAt(m *ChunkManager, p vec.Vec3) uint8 {
	c := m.GetChunk(ChunkCoordOf(p))
	x, y, z := LocalOf(p)
	return c.BlockLight.Get3D(x, y, z)
}
