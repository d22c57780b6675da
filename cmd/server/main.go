package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/voxel-world/internal/api"
	"github.com/annel0/voxel-world/internal/config"
	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/metrics"
	"github.com/annel0/voxel-world/internal/observability"
	"github.com/annel0/voxel-world/internal/storage"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

const version = "v0.1.0"

// logEffects пишет разрушения блоков в лог вместо частиц и звуков клиента
type logEffects struct{}

func (logEffects) BlockBroken(pos vec.Vec3, def block.Definition) {
	logging.Debug("💥 Блок %s разрушен в (%d,%d,%d)", def.Name, pos.X, pos.Y, pos.Z)
}

// tickReporter периодически пишет сводку тиков в лог
type tickReporter struct {
	every uint64
}

func (r tickReporter) ObserveTick(s world.TickStats) {
	if r.every == 0 || s.Tick%r.every != 0 {
		return
	}
	logging.Info("⏱  Тик %d: %s, чанков %d, очереди ландшафт=%d свет=%d меши=%d",
		s.Tick, s.Duration, s.LoadedChunks, s.PendingTerrain, s.PendingLighting, s.PendingMeshes)
}

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (или WORLD_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка конфигурации: %v", err)
	}

	if err := logging.InitDefaultLogger("world", cfg.Logging.Dir); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer func() { _ = logging.GetLoggerManager().CloseAll() }()
	logging.SetLevel(logging.ParseLevel(cfg.Logging.ConsoleLevel), logging.ParseLevel(cfg.Logging.FileLevel))

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервер мира остановлен")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info("🌍 Запуск сервера мира %s (seed=%d, генератор=%s)", version, cfg.World.Seed, cfg.World.Generator)

	shutdownTelemetry := observability.ShutdownFunc(observability.Noop)
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName, version)
		if err != nil {
			logging.Warn("⚠️  OpenTelemetry недоступен: %v", err)
		} else {
			shutdownTelemetry = shutdown
		}
	}

	registry := block.DefaultRegistry()
	if cfg.World.BlocksFile != "" {
		n, err := registry.LoadYAML(cfg.World.BlocksFile)
		if err != nil {
			return fmt.Errorf("загрузка блоков: %w", err)
		}
		logging.Info("🧱 Загружено определений блоков: %d", n)
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("хранилище: %w", err)
	}

	gen, err := world.NewGenerator(cfg.World.Generator, cfg.World.Seed)
	if err != nil {
		_ = store.Close()
		return err
	}

	manager := world.NewChunkManager(
		world.NewWorldContext(registry, logEffects{}, cfg.World.Seed),
		gen,
		store,
		world.ManagerConfig{
			RenderDistance: cfg.World.RenderDistance,
			Workers:        cfg.Tick.Workers,
			StoreTimeout:   cfg.Storage.Timeout,
			Lighting: world.LightingConfig{
				QueueCapacity:   cfg.Lighting.QueueCapacity,
				MaxRegionVolume: cfg.Lighting.MaxRegionVolume,
				PassSize:        cfg.Lighting.PassSize,
			},
		},
	)

	bus, err := openEventBus(cfg.Events)
	if err != nil {
		_ = manager.Close(context.Background())
		return err
	}
	manager.SetEventBus(bus)
	if _, err := eventbus.StartLoggingListener(ctx, bus); err != nil {
		logging.Warn("⚠️  Не удалось подписать логгер событий: %v", err)
	}
	busMetrics := eventbus.NewMetricsExporter(bus, nil)
	busMetrics.Start()

	ticks := world.NewWorldTickSystem(manager, world.TickConfig{
		Rate:                cfg.Tick.Rate,
		MaxChunkUpdates:     cfg.Tick.MaxChunkUpdates,
		MaxLightingUpdates:  cfg.Tick.MaxLightingUpdates,
		MaxMeshUpdates:      cfg.Tick.MaxMeshUpdates,
		RandomTickChunks:    cfg.Tick.RandomTickChunks,
		RandomTicksPerChunk: cfg.Tick.RandomTicksPerChunk,
	})
	ticks.AddObserver(metrics.NewWorldMetrics(nil, manager))
	ticks.AddObserver(tickReporter{every: uint64(cfg.Tick.Rate) * 60})

	spawn := vec.Vec3{X: cfg.World.SpawnX, Y: cfg.World.SpawnY, Z: cfg.World.SpawnZ}
	if err := ticks.Warmup(ctx, spawn); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error("❌ Прогрев мира прерван: %v", err)
	}

	debug := api.NewDebugServer(ticks, api.Config{
		Addr:        fmt.Sprintf(":%d", cfg.Server.GetDebugPort()),
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err := debug.Start(); err != nil {
		logging.Error("❌ Ошибка запуска отладочного сервера: %v", err)
	}

	simDone := make(chan struct{})
	go func() {
		defer close(simDone)
		ticks.Run(ctx)
	}()

	<-ctx.Done()
	logging.Info("📡 Получен сигнал завершения, останавливаем сервисы...")
	<-simDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if err := debug.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("отладочный сервер: %w", err))
	}
	// Менеджер сохраняет изменённые чанки и закрывает хранилище
	if err := manager.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("менеджер чанков: %w", err))
	}
	busMetrics.Stop()
	if err := bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("шина событий: %w", err))
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("телеметрия: %w", err))
	}
	return errors.Join(errs...)
}

func openEventBus(cfg config.EventsConfig) (eventbus.EventBus, error) {
	if cfg.NATSURL == "" {
		logging.Info("📨 Шина событий: in-memory (буфер %d)", cfg.Buffer)
		return eventbus.NewMemoryBus(cfg.Buffer), nil
	}

	bus, err := eventbus.NewJetStreamBus(eventbus.JetStreamOptions{
		URL:       cfg.NATSURL,
		Stream:    cfg.Stream,
		Prefix:    cfg.Prefix,
		Retention: time.Duration(cfg.Retention) * time.Hour,
		MaxAsync:  cfg.Buffer,
	})
	if err != nil {
		return nil, fmt.Errorf("подключение к NATS %s: %w", cfg.NATSURL, err)
	}
	logging.Info("📨 Шина событий: JetStream %s (stream=%s, subject=%s.*)", cfg.NATSURL, cfg.Stream, cfg.Prefix)
	return bus, nil
}
