package world

import (
	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/logging"
)

// EventSource - источник событий мира в шине
const EventSource = "world"

// Типы событий жизненного цикла чанков
const (
	EventChunkReady     = "ChunkReady"     // Освещение чанка инициализировано
	EventChunkMeshStale = "ChunkMeshStale" // Меш нужно перестроить
	EventChunkSaved     = "ChunkSaved"     // Чанк записан в хранилище
	EventChunkEvicted   = "ChunkEvicted"   // Чанк выгружен
)

// ChunkEvent - полезная нагрузка событий чанка
type ChunkEvent struct {
	X        int    `json:"x"`
	Z        int    `json:"z"`
	State    string `json:"state"`
	Modified bool   `json:"modified"`
}

func (m *ChunkManager) publish(eventType string, c *Chunk) {
	if m.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(EventSource, eventType, ChunkEvent{
		X:        c.Coord.X,
		Z:        c.Coord.Z,
		State:    c.State().String(),
		Modified: c.IsModified(),
	})
	if err != nil {
		logging.Warn("Не удалось упаковать событие %s: %v", eventType, err)
		return
	}
	if err := m.bus.Publish(m.ctx, ev); err != nil {
		logging.Debug("Событие %s для %s не опубликовано: %v", eventType, c.Coord, err)
	}
}
