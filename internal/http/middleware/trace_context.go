package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/quillgate/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

// AttachTraceContext stores trace and request ids on the request context and
// echoes them back as headers. Mount it after otelgin: a live span's trace id
// beats the inbound header, which beats a fresh uuid.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span := trace.SpanFromContext(ctx)

		var spanTrace string
		if sc := span.SpanContext(); sc.HasTraceID() {
			spanTrace = sc.TraceID().String()
		}
		meta := ctxutil.RequestMeta{
			TraceID:   firstNonBlank(spanTrace, c.GetHeader(headerTraceID)),
			RequestID: firstNonBlank(c.GetHeader(headerRequestID)),
		}

		if span.IsRecording() {
			span.SetAttributes(attribute.String("quillgate.request_id", meta.RequestID))
			if id := c.Param("id"); id != "" {
				span.SetAttributes(attribute.String("quillgate.chapter_id", id))
			}
		}

		c.Request = c.Request.WithContext(ctxutil.WithRequestMeta(ctx, meta))
		c.Header(headerTraceID, meta.TraceID)
		c.Header(headerRequestID, meta.RequestID)
		c.Next()
	}
}

// firstNonBlank returns the first non-blank value, or a new uuid.
func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return uuid.New().String()
}
