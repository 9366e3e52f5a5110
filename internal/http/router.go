package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/quillgate/internal/http/handlers"
	httpMW "github.com/yungbote/quillgate/internal/http/middleware"
	"github.com/yungbote/quillgate/internal/observability"
	"github.com/yungbote/quillgate/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string

	HealthHandler    *httpH.HealthHandler
	NarrativeHandler *httpH.NarrativeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	if n := cfg.NarrativeHandler; n != nil {
		api.POST("/validate", n.Validate)

		api.POST("/chapters", n.CreateChapter)
		api.GET("/chapters/:id/history", n.History)
		api.POST("/chapters/:id/validate", n.ValidateChapter)
		api.POST("/chapters/:id/edits", n.ManualEdit)
		api.POST("/chapters/:id/select", n.Select)
		api.POST("/chapters/:id/generate", n.Generate)
		api.POST("/chapters/:id/candidates", n.GenerateCandidates)

		api.POST("/vectors/retry", n.RetryVectors)
	}

	return r
}
