package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

type rawResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*DebugServer, *world.WorldTickSystem) {
	t.Helper()
	cfg := world.DefaultManagerConfig()
	cfg.RenderDistance = 1
	m := world.NewChunkManager(world.NewWorldContext(nil, nil, 7), world.NewFlatGenerator(), nil, cfg)
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	ts := world.NewWorldTickSystem(m, world.DefaultTickConfig())
	require.NoError(t, ts.Warmup(context.Background(), vec.Vec3{X: 8, Y: 64, Z: 8}))

	reg := prometheus.NewRegistry()
	return NewDebugServer(ts, Config{Registerer: reg, Gatherer: reg}), ts
}

func do(t *testing.T, s *DebugServer, method, path, body string) (*httptest.ResponseRecorder, rawResponse) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var resp rawResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	w, resp := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}

func TestStatsReportsWorld(t *testing.T) {
	s, ts := newTestServer(t)
	ts.Tick()

	w, resp := do(t, s, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Equal(t, uint64(1), stats.Tick.Count)
	assert.Equal(t, 9, stats.Chunks.Loaded, "радиус 1 - девять чанков")
	assert.Equal(t, uint64(9), stats.Chunks.Generated)
	assert.Equal(t, 20, stats.Tick.Rate)
	assert.Positive(t, stats.Process.Goroutines)
}

func TestChunkEndpoint(t *testing.T) {
	s, ts := newTestServer(t)
	ts.Tick()

	w, resp := do(t, s, http.MethodGet, "/chunks/0/0", "")
	require.Equal(t, http.StatusOK, w.Code)
	var info ChunkInfo
	require.NoError(t, json.Unmarshal(resp.Data, &info))
	assert.Equal(t, world.ChunkCoord{X: 0, Z: 0}, info.Coord)
	assert.Equal(t, world.StateActive.String(), info.State)

	w, resp = do(t, s, http.MethodGet, "/chunks/40/-3", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, resp.Success)

	w, _ = do(t, s, http.MethodGet, "/chunks/x/0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBlockUpdateGoesThroughTick(t *testing.T) {
	s, ts := newTestServer(t)

	w, resp := do(t, s, http.MethodPost, "/blocks", `{"x":8,"y":5,"z":8,"block":7}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, resp.Success)

	pos := vec.Vec3{X: 8, Y: 5, Z: 8}
	assert.Equal(t, block.AirID, ts.Manager().GetBlock(pos), "до тика мир не меняется")
	ts.Tick()
	assert.Equal(t, block.TorchID, ts.Manager().GetBlock(pos))

	w, _ = do(t, s, http.MethodPost, "/blocks", `{"x":8,"y":300,"z":8,"block":7}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "высота вне мира")

	w, _ = do(t, s, http.MethodPost, "/blocks", `не json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestViewpointMovesLoadedSet(t *testing.T) {
	s, ts := newTestServer(t)

	w, _ := do(t, s, http.MethodPost, "/viewpoint", `{"x":160,"y":64,"z":8}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	ts.Tick()

	assert.NotNil(t, ts.Manager().GetChunk(world.ChunkCoord{X: 10, Z: 0}))
	assert.Nil(t, ts.Manager().GetChunk(world.ChunkCoord{X: 0, Z: 0}), "старые чанки выгружены")
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodGet, "/health", "")

	w, _ := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "debug_api_http_request_duration_seconds")
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5с", formatUptime(5_000_000_000))
	assert.Equal(t, "1м 1с", formatUptime(61_000_000_000))
	assert.Equal(t, "1д 0ч 0м 0с", formatUptime(24*3600_000_000_000))
}
