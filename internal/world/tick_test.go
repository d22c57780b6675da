package world

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

type statsRecorder struct {
	stats []TickStats
}

func (r *statsRecorder) ObserveTick(s TickStats) { r.stats = append(r.stats, s) }

type panicEffects struct{}

func (panicEffects) BlockBroken(vec.Vec3, block.Definition) { panic("эффект упал") }

// faultyBus падает на первом событии указанного типа
type faultyBus struct {
	failType  string
	failed    bool
	published []string
}

func (b *faultyBus) Publish(_ context.Context, ev *eventbus.Envelope) error {
	if ev.EventType == b.failType && !b.failed {
		b.failed = true
		panic("шина недоступна")
	}
	b.published = append(b.published, ev.EventType)
	return nil
}

func (b *faultyBus) Subscribe(context.Context, eventbus.Filter, eventbus.Handler) (eventbus.Subscription, error) {
	return nil, nil
}
func (b *faultyBus) Metrics() eventbus.Stats { return eventbus.Stats{} }
func (b *faultyBus) Close() error            { return nil }

func TestTickPipelineBringsChunksToActive(t *testing.T) {
	m := NewChunkManager(nil, NewFlatGenerator(), nil, ManagerConfig{RenderDistance: 1})
	defer m.Close(context.Background())
	ts := NewWorldTickSystem(m, TickConfig{MaxLightingUpdates: 100_000})
	rec := &statsRecorder{}
	ts.AddObserver(rec)

	ts.SetViewpoint(vec.Vec3{X: 8, Y: 64, Z: 8})
	first := ts.Tick()
	assert.Equal(t, 9, first.TerrainReady, "ландшафт сгенерирован в первом тике")
	assert.Equal(t, 9, first.LightingInitialized)
	assert.Equal(t, 9, first.MeshesMarked, "меши новых чанков устарели в том же тике")
	assert.Equal(t, 9, first.LoadedChunks)

	settle(t, ts)
	for _, c := range m.LoadedChunks() {
		assert.Equal(t, StateActive, c.State())
		assert.True(t, c.IsMeshStale())
	}
	assert.Equal(t, int(ts.TickCount()), len(rec.stats), "наблюдатель получает каждый тик")
	assert.Equal(t, uint64(1), rec.stats[0].Tick)
}

func TestTickIsolatesStepPanics(t *testing.T) {
	m := NewChunkManager(NewWorldContext(nil, panicEffects{}, 1), NewFlatGenerator(), nil, ManagerConfig{RenderDistance: 0})
	defer m.Close(context.Background())
	ts := NewWorldTickSystem(m, DefaultTickConfig())
	require.NoError(t, ts.Warmup(context.Background(), vec.Vec3{}))

	ts.QueueBlockUpdate(BlockUpdateJob{Pos: vec.Vec3{X: 2, Y: 4, Z: 2}, Block: block.AirID, Breaking: true})
	stats := ts.Tick()

	assert.Equal(t, 1, stats.Faults)
	assert.Equal(t, uint64(1), ts.Faults())
	assert.Equal(t, 1, stats.MeshesMarked, "шаги после сбоя выполняются")
	assert.Equal(t, block.AirID, m.GetBlock(vec.Vec3{X: 2, Y: 4, Z: 2}))
}

func TestTickTelemetry(t *testing.T) {
	m := NewChunkManager(nil, NewFlatGenerator(), nil, ManagerConfig{RenderDistance: 0})
	defer m.Close(context.Background())
	ts := NewWorldTickSystem(m, TickConfig{Rate: 20})

	assert.Equal(t, time.Duration(0), ts.AverageTickDuration())
	assert.Equal(t, 20.0, ts.TicksPerSecond())

	for i := 0; i < 150; i++ {
		ts.Tick()
	}
	assert.Equal(t, uint64(150), ts.TickCount())
	assert.Equal(t, uint64(150), ts.LastStats().Tick)
	assert.Equal(t, telemetryWindow, ts.filled, "окно ограничено последними тиками")
	assert.LessOrEqual(t, ts.TicksPerSecond(), 20.0)
	assert.Greater(t, ts.TicksPerSecond(), 0.0)
}

func TestRunStopsOnCancel(t *testing.T) {
	m := NewChunkManager(nil, NewFlatGenerator(), nil, ManagerConfig{RenderDistance: 0})
	defer m.Close(context.Background())
	ts := NewWorldTickSystem(m, TickConfig{Rate: 200})
	ts.SetViewpoint(vec.Vec3{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ts.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return ts.TickCount() >= 5 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("цикл не остановился")
	}
}

func TestQueueBlockUpdateBounded(t *testing.T) {
	m := NewChunkManager(nil, NewFlatGenerator(), nil, ManagerConfig{})
	defer m.Close(context.Background())
	ts := NewWorldTickSystem(m, TickConfig{BlockQueueCapacity: 2})

	assert.True(t, ts.QueueBlockUpdate(BlockUpdateJob{}))
	assert.True(t, ts.QueueBlockUpdate(BlockUpdateJob{}))
	assert.False(t, ts.QueueBlockUpdate(BlockUpdateJob{}))
	assert.Equal(t, 2, ts.Tick().BlockUpdates)
}

func TestTickSkipsOnlyFaultyBlockUpdate(t *testing.T) {
	m := NewChunkManager(NewWorldContext(nil, panicEffects{}, 1), NewFlatGenerator(), nil, ManagerConfig{RenderDistance: 0})
	defer m.Close(context.Background())
	ts := NewWorldTickSystem(m, DefaultTickConfig())
	require.NoError(t, ts.Warmup(context.Background(), vec.Vec3{}))

	broken := vec.Vec3{X: 2, Y: 4, Z: 2}
	placed := vec.Vec3{X: 5, Y: 20, Z: 5}
	require.True(t, ts.QueueBlockUpdate(BlockUpdateJob{Pos: broken, Block: block.AirID, Breaking: true}))
	require.True(t, ts.QueueBlockUpdate(BlockUpdateJob{Pos: placed, Block: block.StoneID}))

	stats := ts.Tick()
	assert.Equal(t, 1, stats.Faults, "упало только разрушение")
	assert.Equal(t, 2, stats.BlockUpdates)
	assert.Equal(t, block.AirID, m.GetBlock(broken))
	assert.Equal(t, block.StoneID, m.GetBlock(placed), "следующее задание пачки применено")
}

func TestTickSkipsOnlyFaultyMeshJob(t *testing.T) {
	m := NewChunkManager(nil, NewFlatGenerator(), nil, ManagerConfig{RenderDistance: 1})
	defer m.Close(context.Background())
	bus := &faultyBus{failType: EventChunkMeshStale}
	m.SetEventBus(bus)
	ts := NewWorldTickSystem(m, DefaultTickConfig())

	ts.SetViewpoint(vec.Vec3{X: 8, Y: 64, Z: 8})
	stats := ts.Tick()

	assert.Equal(t, 1, stats.Faults)
	assert.Equal(t, 8, stats.MeshesMarked, "остальные чанки пачки обработаны")
	meshEvents := 0
	for _, typ := range bus.published {
		if typ == EventChunkMeshStale {
			meshEvents++
		}
	}
	assert.Equal(t, 8, meshEvents)
}
