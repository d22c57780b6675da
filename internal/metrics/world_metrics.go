// Package metrics переносит статистику мира в Prometheus.
package metrics

import (
	"sync"

	"github.com/annel0/voxel-world/internal/world"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "world"

// WorldMetrics получает статистику каждого тика (world.Observer)
// и отдаёт счётчики менеджера чанков при сборе метрик.
type WorldMetrics struct {
	tickDuration prometheus.Histogram
	ticks        prometheus.Counter
	faults       prometheus.Counter
	work         *prometheus.CounterVec
	loaded       prometheus.Gauge
	pending      *prometheus.GaugeVec
	lightDropped prometheus.Counter

	mu          sync.Mutex
	prevDropped uint64
}

var _ world.Observer = (*WorldMetrics)(nil)

// NewWorldMetrics регистрирует метрики в reg (nil - глобальный регистр).
// Если manager задан, его накопительные счётчики читаются при каждом scrape.
func NewWorldMetrics(reg prometheus.Registerer, manager *world.ChunkManager) *WorldMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	wm := &WorldMetrics{
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Длительность тика симуляции.",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Выполнено тиков.",
		}),
		faults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_faults_total",
			Help:      "Перехваченные сбои шагов тика.",
		}),
		work: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_work_total",
			Help:      "Работа, выполненная шагами тика.",
		}, []string{"step"}),
		loaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunks_loaded",
			Help:      "Загруженные чанки.",
		}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_pending",
			Help:      "Глубина очередей после тика.",
		}, []string{"queue"}),
		lightDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lighting_dropped_total",
			Help:      "Задания освещения, отброшенные из-за переполнения очереди.",
		}),
	}
	reg.MustRegister(wm.tickDuration, wm.ticks, wm.faults, wm.work, wm.loaded, wm.pending, wm.lightDropped)

	if manager != nil {
		registerManagerCounters(reg, manager)
	}
	return wm
}

func registerManagerCounters(reg prometheus.Registerer, m *world.ChunkManager) {
	counter := func(name, help string, read func(world.ManagerStats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(m.Stats())) })
	}
	reg.MustRegister(
		counter("chunks_generated_total", "Сгенерировано чанков.", func(s world.ManagerStats) uint64 { return s.Generated }),
		counter("chunks_restored_total", "Чанков восстановлено из хранилища.", func(s world.ManagerStats) uint64 { return s.Restored }),
		counter("chunks_saved_total", "Чанков записано в хранилище.", func(s world.ManagerStats) uint64 { return s.Saved }),
		counter("chunks_evicted_total", "Выгружено чанков.", func(s world.ManagerStats) uint64 { return s.Evicted }),
		counter("store_failures_total", "Ошибки хранилища.", func(s world.ManagerStats) uint64 { return s.StoreFailures }),
		counter("generation_failures_total", "Ошибки генерации ландшафта.", func(s world.ManagerStats) uint64 { return s.GenFailures }),
	)
}

// ObserveTick вызывается потоком симуляции после каждого тика
func (wm *WorldMetrics) ObserveTick(s world.TickStats) {
	wm.tickDuration.Observe(s.Duration.Seconds())
	wm.ticks.Inc()
	if s.Faults > 0 {
		wm.faults.Add(float64(s.Faults))
	}

	addWork(wm.work, "terrain", s.TerrainReady)
	addWork(wm.work, "lighting_init", s.LightingInitialized)
	addWork(wm.work, "blocks", s.BlockUpdates)
	addWork(wm.work, "random", s.RandomTicks)
	addWork(wm.work, "lighting", s.LightingProcessed)
	addWork(wm.work, "mesh", s.MeshesMarked)

	wm.loaded.Set(float64(s.LoadedChunks))
	wm.pending.WithLabelValues("terrain").Set(float64(s.PendingTerrain))
	wm.pending.WithLabelValues("lighting").Set(float64(s.PendingLighting))
	wm.pending.WithLabelValues("mesh").Set(float64(s.PendingMeshes))

	// LightingDropped накопительный, Counter получает только прирост
	wm.mu.Lock()
	if s.LightingDropped > wm.prevDropped {
		wm.lightDropped.Add(float64(s.LightingDropped - wm.prevDropped))
	}
	wm.prevDropped = s.LightingDropped
	wm.mu.Unlock()
}

func addWork(vec *prometheus.CounterVec, step string, n int) {
	if n > 0 {
		vec.WithLabelValues(step).Add(float64(n))
	}
}
