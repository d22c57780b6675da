package world

import (
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// Параметры поведения случайных тиков
const (
	GrassSpreadLight = 9 // Минимальный свет над травой для распространения
	GrassCoverLight  = 4 // Минимальный свет над землёй, куда прорастает трава
	LeafDecayRadius  = 4 // Листва живёт, пока в этом радиусе есть бревно
)

// runRandomTicks выбирает случайные освещённые чанки и случайные клетки в них
func (t *WorldTickSystem) runRandomTicks() int {
	if t.cfg.RandomTickChunks == 0 || t.cfg.RandomTicksPerChunk == 0 {
		return 0
	}

	chunks := t.manager.LoadedChunks()
	eligible := chunks[:0]
	for _, c := range chunks {
		if !c.IsDisposed() && c.State() >= StateLightingInitialized {
			eligible = append(eligible, c)
		}
	}

	n := min(t.cfg.RandomTickChunks, len(eligible))
	// частичная перетасовка: первые n элементов случайны
	for i := 0; i < n; i++ {
		j := i + t.rng.Intn(len(eligible)-i)
		eligible[i], eligible[j] = eligible[j], eligible[i]
	}

	ticked := 0
	for _, c := range eligible[:n] {
		origin := c.Coord.Origin()
		for k := 0; k < t.cfg.RandomTicksPerChunk; k++ {
			lx, ly, lz := t.rng.Intn(ChunkSize), t.rng.Intn(ChunkHeight), t.rng.Intn(ChunkSize)
			if t.randomTick(origin.Add(vec.Vec3{X: lx, Y: ly, Z: lz})) {
				ticked++
			}
		}
	}
	return ticked
}

// randomTick запускает поведение блока. true - у блока есть случайный тик.
func (t *WorldTickSystem) randomTick(pos vec.Vec3) bool {
	def := t.manager.Context().Registry.Lookup(t.manager.GetBlock(pos))
	switch def.RandomTick {
	case block.TickGrassSpread:
		t.tickGrass(pos)
	case block.TickLeafDecay:
		t.tickLeaves(pos)
	default:
		return false
	}
	return true
}

// tickGrass: под непрозрачным блоком трава превращается в землю,
// на свету прорастает на соседнюю землю
func (t *WorldTickSystem) tickGrass(pos vec.Vec3) {
	m := t.manager
	reg := m.Context().Registry
	above := pos.Add(vec.Vec3{Y: 1})
	if reg.Lookup(m.GetBlock(above)).Opaque() {
		m.SetBlock(pos, block.DirtID)
		return
	}
	if m.Lighting().GetCombinedLight(above) < GrassSpreadLight {
		return
	}

	target := pos.Add(vec.Vec3{X: t.rng.Intn(3) - 1, Y: t.rng.Intn(5) - 3, Z: t.rng.Intn(3) - 1})
	if m.GetBlock(target) != block.DirtID {
		return
	}
	cover := target.Add(vec.Vec3{Y: 1})
	if reg.Lookup(m.GetBlock(cover)).Opaque() || m.Lighting().GetCombinedLight(cover) < GrassCoverLight {
		return
	}
	m.SetBlock(target, block.GrassID)
}

// tickLeaves убирает листву без бревна поблизости
func (t *WorldTickSystem) tickLeaves(pos vec.Vec3) {
	m := t.manager
	for dx := -LeafDecayRadius; dx <= LeafDecayRadius; dx++ {
		for dy := -LeafDecayRadius; dy <= LeafDecayRadius; dy++ {
			for dz := -LeafDecayRadius; dz <= LeafDecayRadius; dz++ {
				if m.GetBlock(pos.Add(vec.Vec3{X: dx, Y: dy, Z: dz})) == block.LogID {
					return
				}
			}
		}
	}
	m.SetBlock(pos, block.AirID)
}
