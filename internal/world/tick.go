package world

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/vec"
)

// TickConfig - бюджеты одного тика
type TickConfig struct {
	Rate                int // Тиков в секунду
	MaxChunkUpdates     int // Запросов ландшафта за тик
	MaxLightingUpdates  int // Заданий освещения за тик
	MaxMeshUpdates      int // Запросов мешей за тик
	RandomTickChunks    int // Чанков со случайными тиками
	RandomTicksPerChunk int // Случайных клеток в чанке
	BlockQueueCapacity  int
}

// DefaultTickConfig возвращает стандартные бюджеты
func DefaultTickConfig() TickConfig {
	return TickConfig{
		Rate:                20,
		MaxChunkUpdates:     128,
		MaxLightingUpdates:  128,
		MaxMeshUpdates:      128,
		RandomTickChunks:    16,
		RandomTicksPerChunk: 3,
		BlockQueueCapacity:  65_536,
	}
}

const telemetryWindow = 100

// TickStats - результат одного тика
type TickStats struct {
	Tick                uint64        `json:"tick"`
	Duration            time.Duration `json:"duration"`
	TerrainReady        int           `json:"terrain_ready"`
	LightingInitialized int           `json:"lighting_initialized"`
	BlockUpdates        int           `json:"block_updates"`
	RandomTicks         int           `json:"random_ticks"`
	LightingProcessed   int           `json:"lighting_processed"`
	MeshesMarked        int           `json:"meshes_marked"`
	Faults              int           `json:"faults"`

	LoadedChunks    int    `json:"loaded_chunks"`
	PendingTerrain  int    `json:"pending_terrain"`
	PendingLighting int    `json:"pending_lighting"`
	PendingMeshes   int    `json:"pending_meshes"`
	LightingDropped uint64 `json:"lighting_dropped"`
}

// Observer получает статистику после каждого тика (метрики, логи)
type Observer interface {
	ObserveTick(stats TickStats)
}

// WorldTickSystem выполняет фиксированный конвейер тика в потоке симуляции.
type WorldTickSystem struct {
	cfg     TickConfig
	manager *ChunkManager
	tracer  trace.Tracer
	rng     *rand.Rand

	blockQueue *JobQueue[BlockUpdateJob]
	viewpoint  atomic.Pointer[vec.Vec3]
	observers  []Observer

	ticks      atomic.Uint64
	faults     atomic.Uint64
	blockDrops atomic.Uint64

	statsMu   sync.Mutex
	durations [telemetryWindow]time.Duration
	filled    int
	next      int
	last      TickStats
}

// NewWorldTickSystem создаёт систему тиков поверх менеджера чанков
func NewWorldTickSystem(manager *ChunkManager, cfg TickConfig) *WorldTickSystem {
	def := DefaultTickConfig()
	if cfg.Rate <= 0 {
		cfg.Rate = def.Rate
	}
	if cfg.MaxChunkUpdates <= 0 {
		cfg.MaxChunkUpdates = def.MaxChunkUpdates
	}
	if cfg.MaxLightingUpdates <= 0 {
		cfg.MaxLightingUpdates = def.MaxLightingUpdates
	}
	if cfg.MaxMeshUpdates <= 0 {
		cfg.MaxMeshUpdates = def.MaxMeshUpdates
	}
	if cfg.RandomTickChunks < 0 {
		cfg.RandomTickChunks = 0
	}
	if cfg.RandomTicksPerChunk < 0 {
		cfg.RandomTicksPerChunk = 0
	}
	if cfg.BlockQueueCapacity <= 0 {
		cfg.BlockQueueCapacity = def.BlockQueueCapacity
	}

	return &WorldTickSystem{
		cfg:        cfg,
		manager:    manager,
		tracer:     otel.Tracer("github.com/annel0/voxel-world/internal/world"),
		rng:        rand.New(rand.NewSource(manager.Context().Seed)),
		blockQueue: NewJobQueue[BlockUpdateJob](cfg.BlockQueueCapacity, false),
	}
}

// Manager возвращает менеджер чанков
func (t *WorldTickSystem) Manager() *ChunkManager { return t.manager }

// Config возвращает бюджеты тика
func (t *WorldTickSystem) Config() TickConfig { return t.cfg }

// AddObserver подписывает наблюдателя. Вызывать до запуска Run.
func (t *WorldTickSystem) AddObserver(o Observer) {
	t.observers = append(t.observers, o)
}

// SetViewpoint задаёт точку обзора; набор чанков обновится в начале следующего тика.
// Безопасно из любой горутины.
func (t *WorldTickSystem) SetViewpoint(pos vec.Vec3) {
	t.viewpoint.Store(&pos)
}

// QueueBlockUpdate ставит изменение блока в очередь. Безопасно из любой горутины.
func (t *WorldTickSystem) QueueBlockUpdate(job BlockUpdateJob) bool {
	if !t.blockQueue.Push(job) {
		n := t.blockDrops.Add(1)
		if n == 1 || n%1000 == 0 {
			logging.Warn("Очередь изменений блоков заполнена, отброшено: %d", n)
		}
		return false
	}
	return true
}

// Tick выполняет один тик: ландшафт, инициализация освещения, изменения блоков,
// случайные тики, освещение, меши. Каждый шаг изолирован от паники остальных.
func (t *WorldTickSystem) Tick() TickStats {
	start := time.Now()
	n := t.ticks.Add(1)
	_, span := t.tracer.Start(context.Background(), "world.tick", trace.WithAttributes(attribute.Int64("world.tick", int64(n))))
	defer span.End()

	stats := TickStats{Tick: n}
	run := &tickRun{ts: t, tick: n, stats: &stats, span: span}
	step := func(name string, fn func()) { run.guard(name, fn) }

	if vp := t.viewpoint.Swap(nil); vp != nil {
		step("viewpoint", func() { t.manager.UpdateLoadedSet(*vp) })
	}

	var ready []*Chunk
	step("terrain", func() {
		ready = t.manager.ProcessTerrainRequests(t.cfg.MaxChunkUpdates)
		stats.TerrainReady = len(ready)
	})
	step("lighting-init", func() { stats.LightingInitialized = t.initLighting(ready) })
	step("blocks", func() { stats.BlockUpdates = t.applyBlockUpdates(run) })
	step("random", func() { stats.RandomTicks = t.runRandomTicks() })
	step("lighting", func() { stats.LightingProcessed = t.manager.Lighting().ProcessPending(t.cfg.MaxLightingUpdates) })
	step("mesh", func() { stats.MeshesMarked = t.processMeshes(run) })

	stats.Duration = time.Since(start)
	ms := t.manager.Stats()
	ls := t.manager.Lighting().Stats()
	stats.LoadedChunks = ms.Loaded
	stats.PendingTerrain = ms.PendingTerrain
	stats.PendingMeshes = ms.PendingMeshes
	stats.PendingLighting = ls.Pending
	stats.LightingDropped = ls.Dropped

	span.SetAttributes(
		attribute.Int("world.tick.lighting", stats.LightingProcessed),
		attribute.Int("world.tick.meshes", stats.MeshesMarked),
		attribute.Int("world.tick.terrain", stats.TerrainReady),
	)
	t.record(stats)
	for _, o := range t.observers {
		o.ObserveTick(stats)
	}
	return stats
}

// initLighting инициализирует освещение пачки новых чанков и переводит их в LightingInitialized
func (t *WorldTickSystem) initLighting(ready []*Chunk) int {
	batch := ready[:0:0]
	for _, c := range ready {
		if !c.IsDisposed() && c.State() == StateTerrainGenerated {
			batch = append(batch, c)
		}
	}
	if len(batch) == 0 {
		return 0
	}

	t.manager.Lighting().InitChunksLighting(batch)
	for _, c := range batch {
		c.Advance(StateLightingInitialized)
		t.manager.invalidateAround(c.Coord)
		t.manager.publish(EventChunkReady, c)
	}
	return len(batch)
}

// tickRun учитывает сбои одного тика
type tickRun struct {
	ts    *WorldTickSystem
	tick  uint64
	stats *TickStats
	span  trace.Span
}

// guard выполняет fn, перехватывая панику. false - если fn упала.
func (r *tickRun) guard(name string, fn func()) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			r.stats.Faults++
			r.ts.faults.Add(1)
			err := fmt.Errorf("шаг %s: %v", name, rec)
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, name)
			logging.Error("Сбой тика %d: %v", r.tick, err)
		}
	}()
	fn()
	return true
}

// applyBlockUpdates применяет очередь изменений. Упавшее задание пропускается, остальные идут дальше.
func (t *WorldTickSystem) applyBlockUpdates(run *tickRun) int {
	jobs := t.blockQueue.PopN(t.blockQueue.Len())
	wctx := t.manager.Context()
	for _, job := range jobs {
		run.guard("blocks", func() {
			old, ok := t.manager.applyBlock(job.Pos, job.Block)
			if ok && job.Breaking && old != job.Block {
				wctx.Effects.BlockBroken(job.Pos, wctx.Registry.Lookup(old))
			}
		})
	}
	return len(jobs)
}

// processMeshes помечает меши устаревшими и активирует освещённые чанки
func (t *WorldTickSystem) processMeshes(run *tickRun) int {
	n := 0
	for _, job := range t.manager.takeMeshJobs(t.cfg.MaxMeshUpdates) {
		run.guard("mesh", func() {
			c := t.manager.GetChunk(job.Coord)
			if c == nil || c.IsDisposed() || c.State() < StateLightingInitialized {
				return
			}
			c.MarkMeshStale()
			c.Advance(StateActive)
			t.manager.publish(EventChunkMeshStale, c)
			n++
		})
	}
	return n
}

// Run крутит тики с заданной частотой до отмены контекста
func (t *WorldTickSystem) Run(ctx context.Context) {
	interval := time.Second / time.Duration(t.cfg.Rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logging.Info("Цикл симуляции запущен: %d TPS", t.cfg.Rate)
	for {
		select {
		case <-ctx.Done():
			logging.Info("Цикл симуляции остановлен после %d тиков", t.ticks.Load())
			return
		case <-ticker.C:
			stats := t.Tick()
			if stats.Duration > interval {
				logging.Debug("Тик %d длился %v (бюджет %v)", stats.Tick, stats.Duration, interval)
			}
		}
	}
}

// Warmup синхронно загружает и освещает мир вокруг точки обзора.
// Меши во время прогрева от освещения не инвалидируются.
func (t *WorldTickSystem) Warmup(ctx context.Context, viewpoint vec.Vec3) error {
	light := t.manager.Lighting()
	light.SetMeshRegeneration(false)
	defer light.SetMeshRegeneration(true)

	start := time.Now()
	t.manager.UpdateLoadedSet(viewpoint)

	chunks := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ready := t.manager.ProcessTerrainRequests(t.manager.PendingGeneration() + 1)
		chunks += t.initLighting(ready)
		for light.Pending() > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			light.ProcessPending(0)
		}
		if t.manager.PendingGeneration() == 0 {
			break
		}
		if len(ready) == 0 {
			// ждём рабочие горутины
			time.Sleep(time.Millisecond)
		}
	}
	logging.Info("Прогрев мира: %d чанков за %v", chunks, time.Since(start).Round(time.Millisecond))
	return nil
}

func (t *WorldTickSystem) record(s TickStats) {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	t.durations[t.next] = s.Duration
	t.next = (t.next + 1) % telemetryWindow
	if t.filled < telemetryWindow {
		t.filled++
	}
	t.last = s
}

// AverageTickDuration - среднее по последним 100 тикам
func (t *WorldTickSystem) AverageTickDuration() time.Duration {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	if t.filled == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < t.filled; i++ {
		sum += t.durations[i]
	}
	return sum / time.Duration(t.filled)
}

// TicksPerSecond - достижимая частота по средней длительности, не выше заданной
func (t *WorldTickSystem) TicksPerSecond() float64 {
	avg := t.AverageTickDuration()
	if avg <= 0 {
		return float64(t.cfg.Rate)
	}
	return min(float64(t.cfg.Rate), float64(time.Second)/float64(avg))
}

// TickCount - выполнено тиков
func (t *WorldTickSystem) TickCount() uint64 { return t.ticks.Load() }

// Faults - перехваченные сбои шагов тика
func (t *WorldTickSystem) Faults() uint64 { return t.faults.Load() }

// LastStats - статистика последнего тика
func (t *WorldTickSystem) LastStats() TickStats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	return t.last
}
