package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/middleware"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

// GenericResponse - общий конверт ответа
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Config содержит конфигурацию отладочного сервера
type Config struct {
	Addr        string                // адрес прослушивания, по умолчанию ":8089"
	ServiceName string                // имя для otel и префикс HTTP-метрик
	Registerer  prometheus.Registerer // nil - глобальный регистр
	Gatherer    prometheus.Gatherer   // nil - глобальный регистр
}

// DebugServer - HTTP сервер для наблюдения за миром.
// Обработчики не трогают воксели: читают только атомарные поля и счётчики.
type DebugServer struct {
	router     *gin.Engine
	ticks      *world.WorldTickSystem
	metrics    *ProcessMetrics
	addr       string
	httpServer *http.Server
}

// NewDebugServer создаёт сервер поверх системы тиков
func NewDebugServer(ticks *world.WorldTickSystem, cfg Config) *DebugServer {
	if cfg.Addr == "" {
		cfg.Addr = ":8089"
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "voxel_world"
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.NewRequestLogger().Handler())
	router.Use(middleware.NewPrometheusMiddleware("debug_api", cfg.Registerer).Handler())

	s := &DebugServer{
		router:  router,
		ticks:   ticks,
		metrics: NewProcessMetrics(),
		addr:    cfg.Addr,
	}
	s.setupRoutes(cfg.Gatherer)
	return s
}

func (s *DebugServer) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/stats", s.handleStats)
	s.router.GET("/chunks/:x/:z", s.handleChunk)
	s.router.POST("/viewpoint", s.handleViewpoint)
	s.router.POST("/blocks", s.handleBlockUpdate)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// Handler возвращает http.Handler (для тестов и встраивания)
func (s *DebugServer) Handler() http.Handler {
	return s.router
}

// Start запускает сервер в отдельной горутине
func (s *DebugServer) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("❌ Ошибка отладочного HTTP сервера: %v", err)
		}
	}()

	logging.Info("✅ Отладочный сервер запущен на %s (/health /stats /chunks/:x/:z /metrics)", s.addr)
	return nil
}

// Stop останавливает сервер, дожидаясь активных запросов
func (s *DebugServer) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	logging.Info("🛑 Остановка отладочного сервера...")
	return s.httpServer.Shutdown(ctx)
}

func (s *DebugServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "ok",
		Data: gin.H{
			"tick":   s.ticks.TickCount(),
			"uptime": s.metrics.Uptime(),
		},
	})
}

// TickSummary - сводка системы тиков
type TickSummary struct {
	Count         uint64          `json:"count"`
	Faults        uint64          `json:"faults"`
	AverageMillis float64         `json:"average_ms"`
	TPS           float64         `json:"tps"`
	Rate          int             `json:"rate"`
	Last          world.TickStats `json:"last"`
}

// StatsResponse - ответ /stats
type StatsResponse struct {
	Tick     TickSummary         `json:"tick"`
	Chunks   world.ManagerStats  `json:"chunks"`
	Lighting world.LightingStats `json:"lighting"`
	Process  ProcessSnapshot     `json:"process"`
}

func (s *DebugServer) handleStats(c *gin.Context) {
	m := s.ticks.Manager()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data: StatsResponse{
			Tick: TickSummary{
				Count:         s.ticks.TickCount(),
				Faults:        s.ticks.Faults(),
				AverageMillis: float64(s.ticks.AverageTickDuration()) / float64(time.Millisecond),
				TPS:           s.ticks.TicksPerSecond(),
				Rate:          s.ticks.Config().Rate,
				Last:          s.ticks.LastStats(),
			},
			Chunks:   m.Stats(),
			Lighting: m.Lighting().Stats(),
			Process:  s.metrics.Snapshot(),
		},
	})
}

// ChunkInfo - состояние чанка без доступа к вокселям
type ChunkInfo struct {
	Coord     world.ChunkCoord `json:"coord"`
	State     string           `json:"state"`
	Modified  bool             `json:"modified"`
	MeshStale bool             `json:"mesh_stale"`
}

func (s *DebugServer) handleChunk(c *gin.Context) {
	x, errX := strconv.Atoi(c.Param("x"))
	z, errZ := strconv.Atoi(c.Param("z"))
	if errX != nil || errZ != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Координаты чанка должны быть целыми"})
		return
	}

	chunk, err := s.ticks.Manager().FindChunk(world.ChunkCoord{X: x, Z: z})
	if err != nil {
		c.JSON(http.StatusNotFound, GenericResponse{Message: "Чанк не загружен"})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Чанк найден",
		Data: ChunkInfo{
			Coord:     chunk.Coord,
			State:     chunk.State().String(),
			Modified:  chunk.IsModified(),
			MeshStale: chunk.IsMeshStale(),
		},
	})
}

// PositionRequest - мировая позиция
type PositionRequest struct {
	X int `json:"x"`
	Y int `json:"y" binding:"min=0,max=255"`
	Z int `json:"z"`
}

func (p PositionRequest) position() vec.Vec3 {
	return vec.Vec3{X: p.X, Y: p.Y, Z: p.Z}
}

func (s *DebugServer) handleViewpoint(c *gin.Context) {
	var req PositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неверные данные запроса: " + err.Error()})
		return
	}
	s.ticks.SetViewpoint(req.position())
	c.JSON(http.StatusAccepted, GenericResponse{Success: true, Message: "Точка обзора будет применена в следующем тике"})
}

// BlockUpdateRequest - изменение блока через очередь тика
type BlockUpdateRequest struct {
	PositionRequest
	Block    uint8 `json:"block"`
	Breaking bool  `json:"breaking"`
}

func (s *DebugServer) handleBlockUpdate(c *gin.Context) {
	var req BlockUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неверные данные запроса: " + err.Error()})
		return
	}

	ok := s.ticks.QueueBlockUpdate(world.BlockUpdateJob{
		Pos:      req.position(),
		Block:    block.ID(req.Block),
		Breaking: req.Breaking,
	})
	if !ok {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Message: "Очередь изменений блоков заполнена"})
		return
	}
	c.JSON(http.StatusAccepted, GenericResponse{Success: true, Message: "Изменение поставлено в очередь"})
}
