package world

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// ErrChunkNotFound - чанк не загружен
var ErrChunkNotFound = errors.New("чанк не загружен")

// ChunkStore - постоянное хранилище вокселей чанков
type ChunkStore interface {
	SaveChunk(ctx context.Context, coord ChunkCoord, voxels []byte) error
	// LoadChunk возвращает found=false, если чанк ещё не сохранялся
	LoadChunk(ctx context.Context, coord ChunkCoord) (voxels []byte, found bool, err error)
	Close() error
}

// ManagerConfig - параметры менеджера чанков
type ManagerConfig struct {
	RenderDistance       int           // Радиус загрузки в чанках (Чебышёв)
	Workers              int           // Горутины генерации; 0 - генерация в потоке симуляции
	TerrainQueueCapacity int
	MeshQueueCapacity    int
	StoreTimeout         time.Duration // Таймаут одной операции с хранилищем
	Lighting             LightingConfig
}

// DefaultManagerConfig возвращает параметры по умолчанию
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		RenderDistance:       6,
		Workers:              0,
		TerrainQueueCapacity: 65_536,
		MeshQueueCapacity:    65_536,
		StoreTimeout:         5 * time.Second,
		Lighting:             DefaultLightingConfig(),
	}
}

// ManagerStats - счётчики менеджера
type ManagerStats struct {
	Loaded         int    `json:"loaded"`
	PendingTerrain int    `json:"pending_terrain"`
	PendingMeshes  int    `json:"pending_meshes"`
	Generated      uint64 `json:"generated"`
	Restored       uint64 `json:"restored"`
	Saved          uint64 `json:"saved"`
	Evicted        uint64 `json:"evicted"`
	StoreFailures  uint64 `json:"store_failures"`
	GenFailures    uint64 `json:"gen_failures"`
}

// generationResult - ответ рабочей горутины генерации
type generationResult struct {
	chunk *Chunk
	err   error
}

// ChunkManager владеет загруженными чанками: загружает и выгружает их вокруг точки обзора,
// редактирует блоки и держит очереди ландшафта и мешей.
// Методы изменения мира вызываются только из потока симуляции; чтение безопасно из любых горутин.
type ChunkManager struct {
	cfg       ManagerConfig
	wctx      *WorldContext
	generator TerrainGenerator
	store     ChunkStore
	bus       eventbus.EventBus
	lighting  *LightingEngine

	mu     sync.RWMutex
	chunks map[ChunkCoord]*Chunk

	terrainQueue *JobQueue[TerrainGenRequest]
	meshQueue    *JobQueue[MeshInvalidationJob]

	dispatch  chan *Chunk
	completed *JobQueue[generationResult]
	inflight  atomic.Int32 // отправлено рабочим и ещё не собрано
	wg        sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	generated     atomic.Uint64
	restored      atomic.Uint64
	saved         atomic.Uint64
	evicted       atomic.Uint64
	storeFailures atomic.Uint64
	genFailures   atomic.Uint64
	meshDrops     atomic.Uint64
}

// NewChunkManager создаёт менеджер. store может быть nil - тогда мир не сохраняется.
func NewChunkManager(wctx *WorldContext, gen TerrainGenerator, store ChunkStore, cfg ManagerConfig) *ChunkManager {
	def := DefaultManagerConfig()
	if cfg.RenderDistance < 0 {
		cfg.RenderDistance = 0
	}
	if cfg.TerrainQueueCapacity <= 0 {
		cfg.TerrainQueueCapacity = def.TerrainQueueCapacity
	}
	if cfg.MeshQueueCapacity <= 0 {
		cfg.MeshQueueCapacity = def.MeshQueueCapacity
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	if wctx == nil {
		wctx = NewWorldContext(nil, nil, 0)
	}
	if gen == nil {
		gen = NewPerlinGenerator(wctx.Seed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &ChunkManager{
		cfg:          cfg,
		wctx:         wctx,
		generator:    gen,
		store:        store,
		chunks:       make(map[ChunkCoord]*Chunk),
		terrainQueue: NewJobQueue[TerrainGenRequest](cfg.TerrainQueueCapacity, true),
		meshQueue:    NewJobQueue[MeshInvalidationJob](cfg.MeshQueueCapacity, true),
		completed:    NewJobQueue[generationResult](0, false),
		ctx:          ctx,
		cancel:       cancel,
	}
	m.lighting = NewLightingEngine(cfg.Lighting, wctx.Registry, m, m)

	if cfg.Workers > 0 {
		m.startWorkers(cfg.Workers)
	}
	return m
}

// SetEventBus подключает шину событий жизненного цикла чанков
func (m *ChunkManager) SetEventBus(bus eventbus.EventBus) {
	m.bus = bus
}

// Context возвращает контекст мира
func (m *ChunkManager) Context() *WorldContext { return m.wctx }

// Lighting возвращает движок освещения
func (m *ChunkManager) Lighting() *LightingEngine { return m.lighting }

// RenderDistance возвращает радиус загрузки
func (m *ChunkManager) RenderDistance() int { return m.cfg.RenderDistance }

// GetChunk возвращает загруженный чанк или nil
func (m *ChunkManager) GetChunk(coord ChunkCoord) *Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chunks[coord]
}

// FindChunk как GetChunk, но с ошибкой
func (m *ChunkManager) FindChunk(coord ChunkCoord) (*Chunk, error) {
	if c := m.GetChunk(coord); c != nil {
		return c, nil
	}
	return nil, ErrChunkNotFound
}

// LoadedChunks возвращает снимок загруженных чанков
func (m *ChunkManager) LoadedChunks() []*Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Chunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		out = append(out, c)
	}
	return out
}

// Count возвращает число загруженных чанков
func (m *ChunkManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

// Stats возвращает снимок счётчиков
func (m *ChunkManager) Stats() ManagerStats {
	return ManagerStats{
		Loaded:         m.Count(),
		PendingTerrain: m.terrainQueue.Len(),
		PendingMeshes:  m.meshQueue.Len(),
		Generated:      m.generated.Load(),
		Restored:       m.restored.Load(),
		Saved:          m.saved.Load(),
		Evicted:        m.evicted.Load(),
		StoreFailures:  m.storeFailures.Load(),
		GenFailures:    m.genFailures.Load(),
	}
}

// lightableChunk - чанк с готовым ландшафтом, ещё не выгруженный
func (m *ChunkManager) lightableChunk(coord ChunkCoord) *Chunk {
	c := m.GetChunk(coord)
	if c == nil || c.IsDisposed() || c.State() < StateTerrainGenerated {
		return nil
	}
	return c
}

// UpdateLoadedSet подгружает чанки в радиусе RenderDistance от точки обзора
// и выгружает те, что дальше RenderDistance+1. Возвращает число добавленных и выгруженных.
func (m *ChunkManager) UpdateLoadedSet(viewpoint vec.Vec3) (added, evicted int) {
	center := ChunkCoordOf(viewpoint)
	r := m.cfg.RenderDistance

	// ближние чанки первыми
	coords := make([]ChunkCoord, 0, (2*r+1)*(2*r+1))
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			coords = append(coords, center.Add(dx, dz))
		}
	}
	sort.SliceStable(coords, func(i, j int) bool {
		return coords[i].ChebyshevDistance(center) < coords[j].ChebyshevDistance(center)
	})
	for _, coord := range coords {
		if m.ensureChunk(coord) {
			added++
		}
	}

	var far []ChunkCoord
	m.mu.RLock()
	for coord := range m.chunks {
		if coord.ChebyshevDistance(center) > r+1 {
			far = append(far, coord)
		}
	}
	m.mu.RUnlock()
	for _, coord := range far {
		if m.evict(coord) {
			evicted++
		}
	}

	if added > 0 || evicted > 0 {
		logging.Debug("Набор чанков вокруг %s: +%d -%d, всего %d", center, added, evicted, m.Count())
	}
	return added, evicted
}

// ensureChunk создаёт отсутствующий чанк, пытается восстановить его из хранилища
// и ставит запрос ландшафта
func (m *ChunkManager) ensureChunk(coord ChunkCoord) bool {
	m.mu.Lock()
	if _, ok := m.chunks[coord]; ok {
		m.mu.Unlock()
		return false
	}
	c := NewChunk(coord)
	m.chunks[coord] = c
	m.mu.Unlock()

	m.restore(c)

	if !m.terrainQueue.Push(TerrainGenRequest{Coord: coord}) {
		// попробуем снова при следующем обновлении набора
		m.mu.Lock()
		delete(m.chunks, coord)
		m.mu.Unlock()
		logging.Warn("Очередь генерации заполнена, чанк %s отложен", coord)
		return false
	}
	return true
}

// restore загружает сохранённые воксели. Ошибка хранилища равна отсутствию копии.
func (m *ChunkManager) restore(c *Chunk) bool {
	if m.store == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.StoreTimeout)
	defer cancel()

	data, found, err := m.store.LoadChunk(ctx, c.Coord)
	if err != nil {
		m.storeFailures.Add(1)
		logging.Warn("Не удалось загрузить чанк %s, будет сгенерирован заново: %v", c.Coord, err)
		return false
	}
	if !found {
		return false
	}
	if err := c.LoadVoxels(data); err != nil {
		m.storeFailures.Add(1)
		logging.Warn("Повреждённые данные чанка %s, будет сгенерирован заново: %v", c.Coord, err)
		return false
	}
	c.ClearModified()
	c.Advance(StateTerrainGenerated)
	m.restored.Add(1)
	return true
}

// evict сохраняет изменённый чанк и удаляет его из мира
func (m *ChunkManager) evict(coord ChunkCoord) bool {
	m.mu.Lock()
	c, ok := m.chunks[coord]
	if ok {
		delete(m.chunks, coord)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	m.terrainQueue.RemoveIf(func(r TerrainGenRequest) bool { return r.Coord == coord })
	m.meshQueue.RemoveIf(func(j MeshInvalidationJob) bool { return j.Coord == coord })

	if c.IsModified() && c.State() >= StateTerrainGenerated {
		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.StoreTimeout)
		_ = m.saveChunk(ctx, c)
		cancel()
	}
	c.Dispose()
	m.evicted.Add(1)
	m.publish(EventChunkEvicted, c)
	return true
}

// SaveChunk сохраняет чанк синхронно
func (m *ChunkManager) SaveChunk(ctx context.Context, coord ChunkCoord) error {
	c := m.GetChunk(coord)
	if c == nil {
		return ErrChunkNotFound
	}
	return m.saveChunk(ctx, c)
}

func (m *ChunkManager) saveChunk(ctx context.Context, c *Chunk) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.SaveChunk(ctx, c.Coord, c.Voxels()); err != nil {
		m.storeFailures.Add(1)
		logging.Error("Не удалось сохранить чанк %s: %v", c.Coord, err)
		return err
	}
	c.ClearModified()
	m.saved.Add(1)
	m.publish(EventChunkSaved, c)
	return nil
}

// SaveModified сохраняет все изменённые чанки, возвращает число сохранённых
func (m *ChunkManager) SaveModified(ctx context.Context) (int, error) {
	var errs []error
	n := 0
	for _, c := range m.LoadedChunks() {
		if !c.IsModified() || c.State() < StateTerrainGenerated {
			continue
		}
		if err := m.saveChunk(ctx, c); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// GetBlock возвращает блок по мировым координатам; воздух вне мира и в неготовых чанках
func (m *ChunkManager) GetBlock(pos vec.Vec3) block.ID {
	if pos.Y < 0 || pos.Y >= ChunkHeight {
		return block.AirID
	}
	c := m.lightableChunk(ChunkCoordOf(pos))
	if c == nil {
		return block.AirID
	}
	x, y, z := LocalOf(pos)
	return c.GetBlock(x, y, z)
}

// SetBlock меняет блок в загруженном чанке с ландшафтом. Неразрушимый блок
// можно заменить только другим неразрушимым. Повторная установка того же блока - успех без изменений.
func (m *ChunkManager) SetBlock(pos vec.Vec3, id block.ID) bool {
	_, ok := m.applyBlock(pos, id)
	return ok
}

func (m *ChunkManager) applyBlock(pos vec.Vec3, id block.ID) (old block.ID, ok bool) {
	if pos.Y < 0 || pos.Y >= ChunkHeight {
		return block.AirID, false
	}
	c := m.lightableChunk(ChunkCoordOf(pos))
	if c == nil {
		return block.AirID, false
	}

	lx, ly, lz := LocalOf(pos)
	old = c.GetBlock(lx, ly, lz)
	reg := m.wctx.Registry
	if reg.Lookup(old).Indestructible && !reg.Lookup(id).Indestructible {
		return old, false
	}
	if old == id {
		return old, true
	}

	c.SetBlock(lx, ly, lz, id)
	m.lighting.OnBlockChanged(pos, old, id)

	m.InvalidateMesh(c.Coord)
	// соседи по граням видят эту клетку в своих мешах
	if lx == 0 {
		m.InvalidateMesh(c.Coord.Add(-1, 0))
	} else if lx == ChunkSize-1 {
		m.InvalidateMesh(c.Coord.Add(1, 0))
	}
	if lz == 0 {
		m.InvalidateMesh(c.Coord.Add(0, -1))
	} else if lz == ChunkSize-1 {
		m.InvalidateMesh(c.Coord.Add(0, 1))
	}
	return old, true
}

// InvalidateMesh ставит загруженный чанк в очередь перестроения меша
func (m *ChunkManager) InvalidateMesh(coord ChunkCoord) {
	if m.GetChunk(coord) == nil {
		return
	}
	if !m.meshQueue.Push(MeshInvalidationJob{Coord: coord}) {
		n := m.meshDrops.Add(1)
		if n == 1 || n%1000 == 0 {
			logging.Warn("Очередь мешей заполнена, отброшено запросов: %d", n)
		}
	}
}

// invalidateAround ставит в очередь чанк и его 8 соседей
func (m *ChunkManager) invalidateAround(coord ChunkCoord) {
	for dx := -1; dx <= 1; dx++ {
		for dz := -1; dz <= 1; dz++ {
			m.InvalidateMesh(coord.Add(dx, dz))
		}
	}
}

// takeMeshJobs забирает до n запросов перестроения мешей
func (m *ChunkManager) takeMeshJobs(n int) []MeshInvalidationJob {
	return m.meshQueue.PopN(n)
}

// Close останавливает генерацию, сохраняет изменённые чанки и закрывает хранилище
func (m *ChunkManager) Close(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.stopWorkers()

	n, saveErr := m.SaveModified(ctx)
	logging.Info("Менеджер чанков остановлен, сохранено чанков: %d", n)
	m.cancel()

	var closeErr error
	if m.store != nil {
		closeErr = m.store.Close()
	}
	return errors.Join(saveErr, closeErr)
}
