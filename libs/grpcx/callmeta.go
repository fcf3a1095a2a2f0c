package grpcx

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"
)

// Metadata keys mirror httpx.RequestIDHeader and httpx.TenantIDHeader in the
// lowercase form gRPC metadata uses.
const (
	RequestIDMetadataKey = "x-request-id"
	TenantIDMetadataKey  = "x-tenant-id"
)

// CallMeta is the per-call correlation data carried between services.
type CallMeta struct {
	RequestID string
	TenantID  string
}

type callMetaKey struct{}

func callMetaFrom(ctx context.Context) CallMeta {
	m, _ := ctx.Value(callMetaKey{}).(CallMeta)
	return m
}

func withCallMeta(ctx context.Context, m CallMeta) context.Context {
	return context.WithValue(ctx, callMetaKey{}, m)
}

// incomingCallMeta reads the correlation keys from incoming metadata. Only the
// first value of each key is used.
func incomingCallMeta(ctx context.Context) CallMeta {
	var m CallMeta
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return m
	}
	if vals := md.Get(RequestIDMetadataKey); len(vals) > 0 {
		m.RequestID = vals[0]
	}
	if vals := md.Get(TenantIDMetadataKey); len(vals) > 0 {
		m.TenantID = vals[0]
	}
	return m
}

func RequestIDFromContext(ctx context.Context) string {
	return callMetaFrom(ctx).RequestID
}

func TenantIDFromContext(ctx context.Context) string {
	return callMetaFrom(ctx).TenantID
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	m := callMetaFrom(ctx)
	m.RequestID = id
	return withCallMeta(ctx, m)
}

func WithTenantID(ctx context.Context, tenant string) context.Context {
	if tenant == "" {
		return ctx
	}
	m := callMetaFrom(ctx)
	m.TenantID = tenant
	return withCallMeta(ctx, m)
}

func NewRequestID() string {
	return uuid.NewString()
}
