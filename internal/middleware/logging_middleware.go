package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxel-world/internal/logging"
)

// TraceIDHeader - заголовок ответа с trace-ID запроса
const TraceIDHeader = "X-Trace-Id"

// RequestLogger пишет строку лога на каждый запрос к отладочному API.
// Запросы, меняющие мир, идут в Info: они ставят задания в очередь тика.
type RequestLogger struct{}

func NewRequestLogger() *RequestLogger { return &RequestLogger{} }

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := requestTraceID(c)
		c.Set("trace_id", traceID)
		c.Header(TraceIDHeader, traceID)

		start := time.Now()
		c.Next()

		line := fmt.Sprintf("[HTTP %s] %s %s %d %s%s trace=%s",
			routeGroup(c), c.Request.Method, route(c), c.Writer.Status(),
			time.Since(start), chunkSuffix(c), traceID)
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logging.Warn("%s", line)
		case c.Request.Method != http.MethodGet && c.Writer.Status() == http.StatusAccepted:
			logging.Info("%s", line)
		default:
			logging.Debug("%s ip=%s", line, c.ClientIP())
		}
	}
}

// requestTraceID берёт trace-ID из span otelgin или выдаёт свой
func requestTraceID(c *gin.Context) string {
	if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.IsValid() {
		return sc.TraceID().String()
	}
	return uuid.NewString()
}

func route(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// routeGroup - первый сегмент маршрута: chunks, blocks, viewpoint, stats...
func routeGroup(c *gin.Context) string {
	if c.FullPath() == "" {
		return "unmatched"
	}
	group, _, _ := strings.Cut(strings.TrimPrefix(c.FullPath(), "/"), "/")
	return group
}

// chunkSuffix добавляет координаты чанка для маршрутов вида /chunks/:x/:z
func chunkSuffix(c *gin.Context) string {
	x, z := c.Param("x"), c.Param("z")
	if x == "" || z == "" {
		return ""
	}
	return fmt.Sprintf(" chunk=(%s,%s)", x, z)
}
