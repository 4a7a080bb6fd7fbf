// Package shield provides the HTTP middleware stack shared by avatard
// surfaces: panic recovery, maintenance mode, HEAD handling, security
// headers and request tracing.
//
// Usage:
//
//	mm := shield.NewMaintenanceMode(nil, "/health", "/maintenance")
//	for _, mw := range shield.DefaultStack(mm) {
//	    r.Use(mw)
//	}
package shield

import "net/http"

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultStack returns the standard middleware stack, outermost first:
// Recover, SecurityHeaders, Maintenance, HeadToGet, TraceID.
func DefaultStack(mm *MaintenanceMode) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		Recover,
		SecurityHeaders(DefaultHeaders()),
		mm.Middleware,
		HeadToGet,
		TraceID,
	}
}
