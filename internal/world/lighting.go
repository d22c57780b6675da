package world

import (
	"sync/atomic"

	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// LightType - канал света
type LightType uint8

const (
	LightSky LightType = iota
	LightBlock
)

func (lt LightType) String() string {
	if lt == LightSky {
		return "sky"
	}
	return "block"
}

// Значения по умолчанию для движка освещения
const (
	DefaultLightQueueCapacity = 1_000_000
	DefaultMaxRegionVolume    = 32_768
	DefaultLightPassSize      = 20_000
)

// LightingConfig - ограничения движка освещения
type LightingConfig struct {
	QueueCapacity   int
	MaxRegionVolume int
	PassSize        int
}

// DefaultLightingConfig возвращает стандартные ограничения
func DefaultLightingConfig() LightingConfig {
	return LightingConfig{
		QueueCapacity:   DefaultLightQueueCapacity,
		MaxRegionVolume: DefaultMaxRegionVolume,
		PassSize:        DefaultLightPassSize,
	}
}

// chunkSource выдаёт чанки, у которых уже есть ландшафт
type chunkSource interface {
	lightableChunk(coord ChunkCoord) *Chunk
}

// MeshInvalidator принимает чанки, чей меш устарел после прохода освещения
type MeshInvalidator interface {
	InvalidateMesh(coord ChunkCoord)
}

// LightingStats - счётчики движка освещения
type LightingStats struct {
	Scheduled    uint64 `json:"scheduled"`
	Processed    uint64 `json:"processed"`
	Dropped      uint64 `json:"dropped"`
	Oversized    uint64 `json:"oversized"`
	CellFaults   uint64 `json:"cell_faults"`
	CellsChanged uint64 `json:"cells_changed"`
	Pending      int    `json:"pending"`
}

type unitKey struct {
	lt  LightType
	pos vec.Vec3
}

// LightingEngine поддерживает небесный и блочный свет инкрементально:
// изменённая клетка ставит в очередь своих соседей, распространение идёт в ширину.
// Обработка очереди (ProcessPending) выполняется только потоком симуляции.
type LightingEngine struct {
	cfg         LightingConfig
	registry    block.Lookup
	source      chunkSource
	invalidator MeshInvalidator

	queue      *JobQueue[LightingJob]
	units      map[unitKey]struct{}    // единичные задания соседей, уже стоящие в очереди
	passChunks map[ChunkCoord]struct{} // чанки, изменённые за текущий проход
	cache      map[ChunkCoord]*Chunk   // поиск чанков в пределах прохода

	meshRegen     atomic.Bool
	skySubtracted atomic.Int32

	scheduled    atomic.Uint64
	processed    atomic.Uint64
	dropped      atomic.Uint64
	oversized    atomic.Uint64
	cellFaults   atomic.Uint64
	cellsChanged atomic.Uint64
}

// NewLightingEngine создаёт движок освещения
func NewLightingEngine(cfg LightingConfig, registry block.Lookup, source chunkSource, invalidator MeshInvalidator) *LightingEngine {
	def := DefaultLightingConfig()
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = def.QueueCapacity
	}
	if cfg.MaxRegionVolume <= 0 {
		cfg.MaxRegionVolume = def.MaxRegionVolume
	}
	if cfg.PassSize <= 0 {
		cfg.PassSize = def.PassSize
	}

	e := &LightingEngine{
		cfg:         cfg,
		registry:    registry,
		source:      source,
		invalidator: invalidator,
		queue:       NewJobQueue[LightingJob](cfg.QueueCapacity, false),
		units:       make(map[unitKey]struct{}),
		passChunks:  make(map[ChunkCoord]struct{}),
	}
	e.meshRegen.Store(true)
	return e
}

// SetMeshRegeneration включает или выключает инвалидацию мешей после прохода
func (e *LightingEngine) SetMeshRegeneration(enabled bool) {
	e.meshRegen.Store(enabled)
}

// SetSkySubtracted задаёт ослабление небесного света (день/ночь), применяется при чтении
func (e *LightingEngine) SetSkySubtracted(n int) {
	e.skySubtracted.Store(int32(clampLight(n)))
}

// Pending возвращает длину очереди
func (e *LightingEngine) Pending() int {
	return e.queue.Len()
}

// Stats возвращает снимок счётчиков
func (e *LightingEngine) Stats() LightingStats {
	return LightingStats{
		Scheduled:    e.scheduled.Load(),
		Processed:    e.processed.Load(),
		Dropped:      e.dropped.Load(),
		Oversized:    e.oversized.Load(),
		CellFaults:   e.cellFaults.Load(),
		CellsChanged: e.cellsChanged.Load(),
		Pending:      e.queue.Len(),
	}
}

// ScheduleUpdate ставит задание в очередь. При переполнении задание отбрасывается.
func (e *LightingEngine) ScheduleUpdate(lt LightType, region Region) bool {
	return e.push(LightingJob{Type: lt, Region: region, Expected: -1})
}

func (e *LightingEngine) push(job LightingJob) bool {
	if !e.queue.Push(job) {
		n := e.dropped.Add(1)
		if n == 1 || n%10_000 == 0 {
			logging.Warn("Очередь освещения заполнена (%d заданий), отброшено заданий: %d", e.cfg.QueueCapacity, n)
		}
		return false
	}
	e.scheduled.Add(1)
	return true
}

// ScheduleRegion режет большой регион на части допустимого объёма и ставит их в очередь.
// Возвращает число поставленных заданий.
func (e *LightingEngine) ScheduleRegion(lt LightType, region Region) int {
	region, ok := region.ClampY()
	if !ok {
		return 0
	}
	n := 0
	for _, part := range region.Split(e.cfg.MaxRegionVolume) {
		if e.ScheduleUpdate(lt, part) {
			n++
		}
	}
	return n
}

// OnBlockChanged реагирует на изменение блока: если поменялись излучение или
// непрозрачность, обновляет высоту колонки и планирует пересчёт куба 3x3x3.
func (e *LightingEngine) OnBlockChanged(pos vec.Vec3, oldID, newID block.ID) bool {
	oldDef := e.registry.Lookup(oldID)
	newDef := e.registry.Lookup(newID)
	if oldDef.LightEmission == newDef.LightEmission && oldDef.Opacity == newDef.Opacity {
		return false
	}

	if c := e.source.lightableChunk(ChunkCoordOf(pos)); c != nil {
		lx, _, lz := LocalOf(pos)
		c.UpdateColumnHeight(lx, lz, e.registry)
	}

	box, ok := NewRegion(pos.Add(vec.Vec3{X: -1, Y: -1, Z: -1}), pos.Add(vec.Vec3{X: 1, Y: 1, Z: 1})).ClampY()
	if !ok {
		return false
	}
	e.ScheduleUpdate(LightSky, box)
	e.ScheduleUpdate(LightBlock, box)
	return true
}

// InitChunkLighting очищает свет чанка и планирует полный пересчёт колонки
func (e *LightingEngine) InitChunkLighting(c *Chunk) int {
	return e.InitChunksLighting([]*Chunk{c})
}

// InitChunksLighting готовит пачку новых чанков: очищает свет, пересчитывает карты высот
// и планирует объединённый регион (с полосой в один блок у соседей) для обоих каналов.
func (e *LightingEngine) InitChunksLighting(chunks []*Chunk) int {
	regions := make([]Region, 0, len(chunks))
	for _, c := range chunks {
		c.ClearLight()
		c.UpdateHeightMap(e.registry)
		regions = append(regions, ColumnRegion(c.Coord, 1))
	}

	n := 0
	for _, r := range mergeRegions(regions) {
		n += e.ScheduleRegion(LightSky, r)
		n += e.ScheduleRegion(LightBlock, r)
	}
	return n
}

// ProcessPending обрабатывает до limit заданий (limit <= 0 - размер прохода по умолчанию),
// затем передаёт изменённые чанки на перестроение мешей. Возвращает число обработанных заданий.
func (e *LightingEngine) ProcessPending(limit int) int {
	if limit <= 0 {
		limit = e.cfg.PassSize
	}

	clear(e.passChunks)
	e.cache = make(map[ChunkCoord]*Chunk)
	defer func() { e.cache = nil }()

	done := 0
	for done < limit {
		batch := e.queue.PopN(min(limit-done, 4096))
		if len(batch) == 0 {
			break
		}
		for _, job := range batch {
			e.processJob(job)
		}
		done += len(batch)
	}
	e.processed.Add(uint64(done))

	if e.meshRegen.Load() && e.invalidator != nil {
		for coord := range e.passChunks {
			e.invalidator.InvalidateMesh(coord)
		}
	}
	return done
}

func (e *LightingEngine) processJob(job LightingJob) {
	if job.Expected >= 0 && job.Region.Min == job.Region.Max {
		delete(e.units, unitKey{lt: job.Type, pos: job.Region.Min})
	}

	region, ok := job.Region.ClampY()
	if !ok {
		return
	}
	if v := region.Volume(); v > e.cfg.MaxRegionVolume {
		n := e.oversized.Add(1)
		if n == 1 || n%1000 == 0 {
			logging.Warn("Задание освещения %s слишком большое (%d клеток > %d), отброшено", job.Type, v, e.cfg.MaxRegionVolume)
		}
		return
	}

	// сверху вниз: небесный свет за один проход стекает по колонке
	for x := region.Min.X; x <= region.Max.X; x++ {
		for z := region.Min.Z; z <= region.Max.Z; z++ {
			for y := region.Max.Y; y >= region.Min.Y; y-- {
				e.relaxSafe(job.Type, vec.Vec3{X: x, Y: y, Z: z}, job.Expected)
			}
		}
	}
}

func (e *LightingEngine) relaxSafe(lt LightType, p vec.Vec3, expected int) {
	defer func() {
		if r := recover(); r != nil {
			e.cellFaults.Add(1)
			logging.Error("Сбой расчёта освещения %s в %v: %v", lt, p, r)
		}
	}()
	e.relax(lt, p, expected)
}

// relax пересчитывает одну клетку и при изменении ставит соседей в очередь
func (e *LightingEngine) relax(lt LightType, p vec.Vec3, expected int) {
	c := e.chunkAt(ChunkCoordOf(p))
	if c == nil {
		return
	}
	lx, ly, lz := LocalOf(p)
	def := e.registry.Lookup(c.GetBlock(lx, ly, lz))

	source := 0
	if lt == LightSky {
		if c.CanSeeSky(lx, ly, lz) {
			source = MaxLight
		}
	} else {
		source = int(def.LightEmission)
	}

	maxNeighbour := 0
	for _, d := range vec.Directions {
		if n := e.neighbourLight(lt, c, lx+d.X, ly+d.Y, lz+d.Z, p.Add(d)); n > maxNeighbour {
			maxNeighbour = n
		}
	}

	newLight := clampLight(max(source, maxNeighbour-int(def.EffectiveOpacity())))
	channel := c.Light(lt)
	old := int(channel.Get3D(lx, ly, lz))
	if newLight == old {
		return
	}
	if expected >= 0 && newLight < expected {
		logging.Trace("Свет %s в %v: ожидалось не меньше %d, получено %d", lt, p, expected, newLight)
	}

	channel.Set3D(lx, ly, lz, uint8(newLight))
	e.cellsChanged.Add(1)
	e.passChunks[c.Coord] = struct{}{}

	for _, d := range vec.Directions {
		np := p.Add(d)
		if np.Y < 0 || np.Y >= ChunkHeight {
			continue
		}
		e.enqueueNeighbour(lt, np, newLight-1)
	}
}

func (e *LightingEngine) enqueueNeighbour(lt LightType, p vec.Vec3, expected int) {
	key := unitKey{lt: lt, pos: p}
	if _, queued := e.units[key]; queued {
		return
	}
	if e.chunkAt(ChunkCoordOf(p)) == nil {
		return
	}
	if e.push(LightingJob{Type: lt, Region: UnitRegion(p), Expected: max(expected, 0)}) {
		e.units[key] = struct{}{}
	}
}

// neighbourLight читает свет соседа. Вне мира и в незагруженных чанках:
// небесный 15, блочный 0.
func (e *LightingEngine) neighbourLight(lt LightType, home *Chunk, lx, ly, lz int, world vec.Vec3) int {
	if ly < 0 || ly >= ChunkHeight {
		return outsideLight(lt)
	}
	if lx >= 0 && lx < ChunkSize && lz >= 0 && lz < ChunkSize {
		return int(home.Light(lt).Get3D(lx, ly, lz))
	}
	n := e.chunkAt(ChunkCoordOf(world))
	if n == nil {
		return outsideLight(lt)
	}
	nx, _, nz := LocalOf(world)
	return int(n.Light(lt).Get3D(nx, ly, nz))
}

func (e *LightingEngine) chunkAt(coord ChunkCoord) *Chunk {
	if e.cache == nil {
		return e.source.lightableChunk(coord)
	}
	if c, ok := e.cache[coord]; ok {
		return c
	}
	c := e.source.lightableChunk(coord)
	e.cache[coord] = c
	return c
}

// GetCombinedLight возвращает итоговую освещённость клетки для меша.
// Вне симулируемого мира - 15.
func (e *LightingEngine) GetCombinedLight(pos vec.Vec3) uint8 {
	if pos.Y < 0 || pos.Y >= ChunkHeight {
		return MaxLight
	}
	c := e.source.lightableChunk(ChunkCoordOf(pos))
	if c == nil {
		return MaxLight
	}
	lx, ly, lz := LocalOf(pos)
	sky := int(c.SkyLight.Get3D(lx, ly, lz)) - int(e.skySubtracted.Load())
	blk := int(c.BlockLight.Get3D(lx, ly, lz))
	return uint8(clampLight(max(sky, blk)))
}

func outsideLight(lt LightType) int {
	if lt == LightSky {
		return MaxLight
	}
	return 0
}

func clampLight(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxLight {
		return MaxLight
	}
	return v
}
