package audit

import (
	"context"
	"strings"
)

type requestContextKey struct{}

// RequestMeta carries caller metadata for one transport request.
type RequestMeta struct {
	RequestID string
	Caller    string
	Transport string
}

// WithRequest stores request metadata in ctx.
func WithRequest(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestContextKey{}, meta)
}

// RequestFromContext reads request metadata from ctx.
func RequestFromContext(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	meta, ok := ctx.Value(requestContextKey{}).(RequestMeta)
	if !ok {
		return RequestMeta{}
	}
	meta.RequestID = strings.TrimSpace(meta.RequestID)
	meta.Caller = strings.TrimSpace(meta.Caller)
	meta.Transport = strings.TrimSpace(meta.Transport)
	return meta
}
