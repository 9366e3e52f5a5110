// Package ctxutil carries per-request identifiers through context.Context.
package ctxutil

import "context"

type requestMetaKey struct{}

type RequestMeta struct {
	TraceID   string
	RequestID string
}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// GetRequestMeta returns the zero value when nothing was attached.
func GetRequestMeta(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// LogFields renders the non-empty identifiers as logger key/value pairs.
func (m RequestMeta) LogFields() []interface{} {
	var out []interface{}
	if m.TraceID != "" {
		out = append(out, "trace_id", m.TraceID)
	}
	if m.RequestID != "" {
		out = append(out, "request_id", m.RequestID)
	}
	return out
}
