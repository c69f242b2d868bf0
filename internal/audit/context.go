package audit

import "context"

type requestMetaKey struct{}

// RequestMeta identifies the HTTP caller behind an audited action.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// WithRequestMeta stores the caller identity for entries created downstream.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

func requestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}
