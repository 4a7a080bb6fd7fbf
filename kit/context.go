// Package kit carries the transport-neutral pieces shared by the HTTP and MCP
// surfaces: request-scoped context values and the Endpoint abstraction.
package kit

import "context"

type contextKey string

const (
	TraceIDKey   contextKey = "kit_trace_id"
	TransportKey contextKey = "kit_transport" // "http", "mcp"
)

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}
