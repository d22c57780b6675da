package block

import (
	"fmt"
	"sync"
)

// ID представляет идентификатор блока (один байт на воксель)
type ID uint8

// Константы ID блоков
const (
	AirID       ID = iota // 0
	StoneID               // 1
	GrassID               // 2
	DirtID                // 3
	SandID                // 4
	WaterID               // 5
	BedrockID             // 6
	TorchID               // 7
	GlowstoneID           // 8
	GlassID               // 9
	LogID                 // 10
	LeavesID              // 11
)

// Lookup - источник свойств блоков для мира
type Lookup interface {
	// Lookup возвращает определение блока. Для незарегистрированного ID - прозрачный блок как воздух.
	Lookup(id ID) Definition
}

// Registry хранит определения блоков, индексированные по ID
type Registry struct {
	mu   sync.RWMutex
	defs [256]Definition
	set  [256]bool
}

// NewRegistry создаёт пустой регистр (все ID ведут себя как воздух)
func NewRegistry() *Registry {
	return &Registry{}
}

// Register добавляет или заменяет определение блока
func (r *Registry) Register(def Definition) error {
	if err := def.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.ID] = def
	r.set[def.ID] = true
	return nil
}

// MustRegister паникует при некорректном определении
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Lookup возвращает определение блока
func (r *Registry) Lookup(id ID) Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.set[id] {
		return Definition{ID: id, Name: fmt.Sprintf("unknown_%d", id)}
	}
	return r.defs[id]
}

// IsRegistered проверяет, зарегистрирован ли ID
func (r *Registry) IsRegistered(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set[id]
}

// ByName ищет блок по имени
func (r *Registry) ByName(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.defs {
		if r.set[i] && r.defs[i].Name == name {
			return r.defs[i], true
		}
	}
	return Definition{}, false
}

// Definitions возвращает все зарегистрированные определения по возрастанию ID
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, 16)
	for i := range r.defs {
		if r.set[i] {
			out = append(out, r.defs[i])
		}
	}
	return out
}

// DefaultRegistry возвращает регистр со стандартным набором блоков
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, def := range []Definition{
		{ID: AirID, Name: "air"},
		{ID: StoneID, Name: "stone", Solid: true, Opacity: 15, Material: MaterialStone},
		{ID: GrassID, Name: "grass", Solid: true, Opacity: 15, Material: MaterialEarth, RandomTick: TickGrassSpread},
		{ID: DirtID, Name: "dirt", Solid: true, Opacity: 15, Material: MaterialEarth},
		{ID: SandID, Name: "sand", Solid: true, Opacity: 15, Material: MaterialSand},
		{ID: WaterID, Name: "water", Opacity: 2, Material: MaterialLiquid},
		{ID: BedrockID, Name: "bedrock", Solid: true, Opacity: 15, Indestructible: true, Material: MaterialStone},
		{ID: TorchID, Name: "torch", LightEmission: 14, Material: MaterialWood},
		{ID: GlowstoneID, Name: "glowstone", Solid: true, Opacity: 15, LightEmission: 15, Material: MaterialGlass},
		{ID: GlassID, Name: "glass", Solid: true, Material: MaterialGlass},
		{ID: LogID, Name: "log", Solid: true, Opacity: 15, Material: MaterialWood},
		{ID: LeavesID, Name: "leaves", Solid: true, Opacity: 1, Material: MaterialPlant, RandomTick: TickLeafDecay},
	} {
		r.MustRegister(def)
	}
	return r
}
