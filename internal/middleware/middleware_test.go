package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/logging"
)

func newTestRouter(reg prometheus.Registerer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRequestLogger().Handler())
	r.Use(NewPrometheusMiddleware("test", reg).Handler())
	r.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"trace": c.GetString("trace_id")})
	})
	r.GET("/fail", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "сбой"})
	})
	r.GET("/missing", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "нет"})
	})
	return r
}

func TestPrometheusMiddleware_BasicMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	r := newTestRouter(registry)

	for _, path := range []string{"/ok", "/ok", "/fail", "/missing"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	families, err := registry.Gather()
	require.NoError(t, err)

	var durationFound, errorsFound, inflightFound bool
	for _, mf := range families {
		switch mf.GetName() {
		case "test_http_request_duration_seconds":
			durationFound = true
			assert.Equal(t, "Длительность HTTP-запросов.", mf.GetHelp())
			assert.Len(t, mf.GetMetric(), 3, "по серии на маршрут и статус")
		case "test_http_request_errors_total":
			errorsFound = true
			var total float64
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			assert.Equal(t, float64(2), total, "ошибками считаются 4xx и 5xx")
		case "test_http_requests_inflight":
			inflightFound = true
			assert.Equal(t, float64(0), mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, durationFound, "нет метрики длительности")
	assert.True(t, errorsFound, "нет метрики ошибок")
	assert.True(t, inflightFound, "нет метрики inflight")
}

func TestPrometheusMiddleware_UnmatchedRoutesShareLabel(t *testing.T) {
	registry := prometheus.NewRegistry()
	r := newTestRouter(registry)

	for _, path := range []string{"/a", "/b", "/c"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	}

	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "test_http_request_duration_seconds" {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		assert.Equal(t, uint64(3), mf.GetMetric()[0].GetHistogram().GetSampleCount())
	}
}

func TestRequestLogger_TraceID(t *testing.T) {
	r := newTestRouter(prometheus.NewRegistry())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

	require.Equal(t, http.StatusOK, w.Code)
	traceID := w.Header().Get(TraceIDHeader)
	assert.NotEmpty(t, traceID, "trace-id должен попасть в заголовок")
	assert.Contains(t, w.Body.String(), traceID, "trace-id доступен обработчику")

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.NotEqual(t, traceID, w2.Header().Get(TraceIDHeader), "у каждого запроса свой trace-id")
}

func TestRequestLogger_ChunkRoutes(t *testing.T) {
	var buf bytes.Buffer
	logging.SetOutput(&buf)
	defer logging.SetOutput(os.Stdout)

	r := newTestRouter(prometheus.NewRegistry())
	r.POST("/chunks/:x/:z", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/chunks/3/-4", nil))
	require.Equal(t, http.StatusAccepted, w.Code)

	out := buf.String()
	assert.Contains(t, out, "[HTTP chunks] POST /chunks/:x/:z 202", "изменение мира пишется в Info с группой маршрута")
	assert.Contains(t, out, "chunk=(3,-4)")

	buf.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Empty(t, buf.String(), "чтение пишется только в Debug")
}
