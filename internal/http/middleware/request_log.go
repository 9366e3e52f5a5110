package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/quillgate/internal/platform/ctxutil"
	"github.com/yungbote/quillgate/internal/platform/logger"
)

const healthRoute = "/healthcheck"

// RequestLogger writes one line per request. Chapter routes carry the
// chapter_id; health probes are logged at debug.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := routeOf(c)
		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if id := c.Param("id"); id != "" {
			fields = append(fields, "chapter_id", id)
		}
		fields = append(fields, ctxutil.GetRequestMeta(c.Request.Context()).LogFields()...)
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			fields = append(fields, "error", errs.Last().Error())
		}

		switch {
		case status >= 500:
			log.Error("request failed", fields...)
		case status >= 400:
			log.Warn("request rejected", fields...)
		case route == healthRoute:
			log.Debug("health probe", fields...)
		default:
			log.Info("request served", fields...)
		}
	}
}

// routeOf prefers the registered pattern so ids do not explode label and
// log cardinality.
func routeOf(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return "unmatched"
}
