package world

import (
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// Effects - внешние реакции на игровые события (частицы, звук, дроп)
type Effects interface {
	BlockBroken(pos vec.Vec3, def block.Definition)
}

// NoEffects ничего не делает
type NoEffects struct{}

func (NoEffects) BlockBroken(vec.Vec3, block.Definition) {}

// WorldContext - общее окружение мира, передаётся генераторам и системам тиков.
// Глобальных синглтонов нет: каждый мир держит свой контекст.
type WorldContext struct {
	Registry block.Lookup
	Effects  Effects
	Seed     int64
}

// NewWorldContext создаёт контекст; nil-значения заменяются заглушками
func NewWorldContext(registry block.Lookup, effects Effects, seed int64) *WorldContext {
	if registry == nil {
		registry = block.DefaultRegistry()
	}
	if effects == nil {
		effects = NoEffects{}
	}
	return &WorldContext{Registry: registry, Effects: effects, Seed: seed}
}
