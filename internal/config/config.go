package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера мира.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Tick      TickConfig      `yaml:"tick"`
	Lighting  LightingConfig  `yaml:"lighting"`
	Storage   StorageConfig   `yaml:"storage"`
	Events    EventsConfig    `yaml:"events"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type WorldConfig struct {
	Seed           int64  `yaml:"seed"`
	Generator      string `yaml:"generator"` // perlin | flat
	RenderDistance int    `yaml:"render_distance"`
	BlocksFile     string `yaml:"blocks_file"` // YAML с переопределениями блоков
	SpawnX         int    `yaml:"spawn_x"`
	SpawnY         int    `yaml:"spawn_y"`
	SpawnZ         int    `yaml:"spawn_z"`
}

type TickConfig struct {
	Rate                int `yaml:"rate"`
	MaxChunkUpdates     int `yaml:"max_chunk_updates"`
	MaxLightingUpdates  int `yaml:"max_lighting_updates"`
	MaxMeshUpdates      int `yaml:"max_mesh_updates"`
	RandomTickChunks    int `yaml:"random_tick_chunks"`
	RandomTicksPerChunk int `yaml:"random_ticks_per_chunk"`
	Workers             int `yaml:"generation_workers"` // 0 - генерация в потоке симуляции
}

type LightingConfig struct {
	QueueCapacity   int `yaml:"queue_capacity"`
	MaxRegionVolume int `yaml:"max_region_volume"`
	PassSize        int `yaml:"pass_size"`
}

type StorageConfig struct {
	Backend  string        `yaml:"backend"` // memory | file | badger | mysql | mongo
	Path     string        `yaml:"path"`
	MariaDSN string        `yaml:"maria_dsn"`
	MongoURI string        `yaml:"mongo_uri"`
	MongoDB  string        `yaml:"mongo_db"`
	Redis    RedisConfig   `yaml:"redis"`
	Timeout  time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"` // пусто - кеш выключен
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type EventsConfig struct {
	NATSURL   string `yaml:"nats_url"` // пусто - in-memory шина
	Stream    string `yaml:"stream"`
	Prefix    string `yaml:"subject_prefix"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
}

type ServerConfig struct {
	DebugPort int `yaml:"debug_port"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type LoggingConfig struct {
	Dir          string `yaml:"dir"`
	ConsoleLevel string `yaml:"console_level"`
	FileLevel    string `yaml:"file_level"`
}

// Default возвращает конфигурацию со значениями по умолчанию
func Default() *Config {
	return &Config{
		World: WorldConfig{
			Seed:           1337,
			Generator:      "perlin",
			RenderDistance: 6,
			SpawnY:         128,
		},
		Tick: TickConfig{
			Rate:                20,
			MaxChunkUpdates:     128,
			MaxLightingUpdates:  128,
			MaxMeshUpdates:      128,
			RandomTickChunks:    16,
			RandomTicksPerChunk: 3,
			Workers:             2,
		},
		Lighting: LightingConfig{
			QueueCapacity:   1_000_000,
			MaxRegionVolume: 32_768,
			PassSize:        20_000,
		},
		Storage: StorageConfig{
			Backend: "file",
			Path:    "data/world",
			MongoDB: "voxelworld",
			Timeout: 5 * time.Second,
			Redis: RedisConfig{
				TTL: 10 * time.Minute,
			},
		},
		Events: EventsConfig{
			Stream:    "WORLD",
			Prefix:    "world",
			Retention: 24,
			Buffer:    4096,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "voxel-world",
		},
		Logging: LoggingConfig{
			ConsoleLevel: "INFO",
			FileLevel:    "DEBUG",
		},
	}
}

// GetDebugPort возвращает порт отладочного HTTP сервера: config -> env -> default
func (s *ServerConfig) GetDebugPort() int {
	return getPortWithEnvFallback(s.DebugPort, "WORLD_DEBUG_PORT", 8089)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать путь из ENV WORLD_CONFIG; без него возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("WORLD_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения и подставляет значения по умолчанию для нулевых лимитов
func (c *Config) Validate() error {
	def := Default()

	if c.World.RenderDistance < 0 {
		return fmt.Errorf("world.render_distance не может быть отрицательным: %d", c.World.RenderDistance)
	}
	switch c.World.Generator {
	case "":
		c.World.Generator = def.World.Generator
	case "perlin", "flat":
	default:
		return fmt.Errorf("неизвестный генератор %q", c.World.Generator)
	}

	if c.Tick.Rate <= 0 {
		c.Tick.Rate = def.Tick.Rate
	}
	if c.Tick.MaxChunkUpdates <= 0 {
		c.Tick.MaxChunkUpdates = def.Tick.MaxChunkUpdates
	}
	if c.Tick.MaxLightingUpdates <= 0 {
		c.Tick.MaxLightingUpdates = def.Tick.MaxLightingUpdates
	}
	if c.Tick.MaxMeshUpdates <= 0 {
		c.Tick.MaxMeshUpdates = def.Tick.MaxMeshUpdates
	}
	if c.Tick.RandomTickChunks < 0 || c.Tick.RandomTicksPerChunk < 0 {
		return fmt.Errorf("параметры random tick не могут быть отрицательными")
	}
	if c.Tick.Workers < 0 {
		return fmt.Errorf("tick.generation_workers не может быть отрицательным: %d", c.Tick.Workers)
	}

	if c.Lighting.QueueCapacity <= 0 {
		c.Lighting.QueueCapacity = def.Lighting.QueueCapacity
	}
	if c.Lighting.MaxRegionVolume <= 0 {
		c.Lighting.MaxRegionVolume = def.Lighting.MaxRegionVolume
	}
	if c.Lighting.PassSize <= 0 {
		c.Lighting.PassSize = def.Lighting.PassSize
	}

	switch c.Storage.Backend {
	case "", "memory", "file", "badger", "mysql", "mongo":
	default:
		return fmt.Errorf("неизвестный backend хранилища %q", c.Storage.Backend)
	}
	if c.Storage.Timeout <= 0 {
		c.Storage.Timeout = def.Storage.Timeout
	}
	if c.Events.Buffer <= 0 {
		c.Events.Buffer = def.Events.Buffer
	}
	if c.Events.Prefix == "" {
		c.Events.Prefix = def.Events.Prefix
	}
	return nil
}
