package world

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/annel0/voxel-world/internal/vec"
)

func TestRegionBasics(t *testing.T) {
	r := NewRegion(vec.Vec3{X: 3, Y: 5, Z: 1}, vec.Vec3{X: 1, Y: 4, Z: 2})
	assert.Equal(t, vec.Vec3{X: 1, Y: 4, Z: 1}, r.Min)
	assert.Equal(t, vec.Vec3{X: 3, Y: 5, Z: 2}, r.Max)
	assert.Equal(t, 12, r.Volume())
	assert.True(t, r.Contains(vec.Vec3{X: 2, Y: 5, Z: 2}))
	assert.False(t, r.Contains(vec.Vec3{X: 0, Y: 5, Z: 2}))
	assert.Equal(t, 1, UnitRegion(vec.Vec3{}).Volume())
}

func TestRegionClampY(t *testing.T) {
	r, ok := NewRegion(vec.Vec3{Y: -3}, vec.Vec3{Y: 300}).ClampY()
	assert.True(t, ok)
	assert.Equal(t, 0, r.Min.Y)
	assert.Equal(t, ChunkHeight-1, r.Max.Y)

	_, ok = UnitRegion(vec.Vec3{Y: -1}).ClampY()
	assert.False(t, ok, "регион целиком под миром")
}

func TestRegionMerge(t *testing.T) {
	a := NewRegion(vec.Vec3{}, vec.Vec3{X: 15, Y: 255, Z: 15})
	b := NewRegion(vec.Vec3{X: 16}, vec.Vec3{X: 31, Y: 255, Z: 15})
	assert.True(t, a.CanMergeWith(b), "смежные колонки сливаются без лишних клеток")
	assert.Equal(t, a.Volume()+b.Volume(), a.MergeWith(b).Volume())

	far := NewRegion(vec.Vec3{X: 64}, vec.Vec3{X: 79, Y: 255, Z: 15})
	assert.False(t, a.CanMergeWith(far))

	merged := mergeRegions([]Region{a, far, b})
	assert.Len(t, merged, 2)
}

func TestRegionSplit(t *testing.T) {
	col := ColumnRegion(ChunkCoord{X: 1, Z: -1}, 1)
	assert.Equal(t, 18*256*18, col.Volume())

	parts := col.Split(DefaultMaxRegionVolume)
	total := 0
	for _, p := range parts {
		assert.LessOrEqual(t, p.Volume(), DefaultMaxRegionVolume)
		total += p.Volume()
	}
	assert.Equal(t, col.Volume(), total, "части покрывают регион без пропусков")
	assert.Greater(t, parts[0].Min.Y, parts[len(parts)-1].Min.Y, "верхние части идут первыми")

	small := UnitRegion(vec.Vec3{})
	assert.Equal(t, []Region{small}, small.Split(DefaultMaxRegionVolume))
}
