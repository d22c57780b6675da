package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

func TestChunkCoordOfNegative(t *testing.T) {
	assert.Equal(t, ChunkCoord{X: -1, Z: 0}, ChunkCoordOf(vec.Vec3{X: -1, Z: 15}))
	assert.Equal(t, ChunkCoord{X: -1, Z: -2}, ChunkCoordOf(vec.Vec3{X: -16, Z: -17}))

	x, y, z := LocalOf(vec.Vec3{X: -1, Y: 7, Z: -16})
	assert.Equal(t, []int{15, 7, 0}, []int{x, y, z})
	assert.Equal(t, 3, ChunkCoord{X: 1, Z: 1}.ChebyshevDistance(ChunkCoord{X: -2, Z: 0}))
}

func TestChunkSetBlock(t *testing.T) {
	c := NewChunk(ChunkCoord{})
	assert.False(t, c.IsModified())

	assert.True(t, c.SetBlock(1, 2, 3, block.StoneID))
	assert.Equal(t, block.StoneID, c.GetBlock(1, 2, 3))
	assert.True(t, c.IsModified())
	assert.False(t, c.IsMeshStale(), "SetBlock не трогает меш")
	assert.Equal(t, uint8(0), c.SkyLight.Get3D(1, 2, 3), "SetBlock не трогает свет")

	assert.False(t, c.SetBlock(16, 0, 0, block.StoneID))
	assert.False(t, c.SetBlock(0, ChunkHeight, 0, block.StoneID))
	assert.Equal(t, block.AirID, c.GetBlock(-1, 0, 0))
}

func TestChunkHeightMap(t *testing.T) {
	reg := block.DefaultRegistry()
	c := NewChunk(ChunkCoord{})
	c.UpdateHeightMap(reg)
	assert.Equal(t, -1, c.HeightAt(3, 3))
	assert.True(t, c.CanSeeSky(3, 0, 3))

	c.SetBlock(3, 10, 3, block.StoneID)
	c.SetBlock(3, 20, 3, block.GlassID)
	c.UpdateColumnHeight(3, 3, reg)
	assert.Equal(t, 10, c.HeightAt(3, 3), "стекло прозрачно для карты высот")
	assert.False(t, c.CanSeeSky(3, 10, 3))
	assert.True(t, c.CanSeeSky(3, 11, 3))

	c.SetBlock(3, 10, 3, block.AirID)
	c.UpdateColumnHeight(3, 3, reg)
	assert.Equal(t, -1, c.HeightAt(3, 3))
}

func TestChunkStateForwardOnly(t *testing.T) {
	c := NewChunk(ChunkCoord{})
	assert.Equal(t, StateRequested, c.State())
	assert.False(t, c.Advance(StateActive), "пропуск стадий запрещён")
	assert.False(t, c.Advance(StateLightingInitialized), "пропуск стадий запрещён")
	assert.Equal(t, StateRequested, c.State())

	assert.True(t, c.Advance(StateTerrainGenerated))
	assert.True(t, c.Advance(StateLightingInitialized))
	assert.False(t, c.Advance(StateTerrainGenerated), "откат запрещён")
	assert.False(t, c.Advance(StateLightingInitialized), "повтор запрещён")
	assert.True(t, c.Advance(StateActive))
	assert.Equal(t, "Active", c.State().String())
}

func TestChunkVoxelsRoundTrip(t *testing.T) {
	c := NewChunk(ChunkCoord{X: 2})
	c.SetBlock(0, 0, 0, block.BedrockID)
	c.SetBlock(15, 255, 15, block.TorchID)

	other := NewChunk(ChunkCoord{X: 2})
	require.NoError(t, other.LoadVoxels(c.Voxels()))
	assert.Equal(t, c.Voxels(), other.Voxels())
	assert.Error(t, other.LoadVoxels(make([]byte, 10)))
}
