// Package api exposes the avatard HTTP surface.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/avatard/lookup"
	"github.com/hazyhaar/avatard/profile"
	"github.com/hazyhaar/avatard/shield"
)

// MaintenanceExempt lists the path prefixes reachable during maintenance.
var MaintenanceExempt = []string{"/health", "/maintenance"}

// Config wires the server's collaborators.
type Config struct {
	Lookup      *lookup.Service
	Proxy       http.Handler
	Maintenance *shield.MaintenanceMode // nil = static switch, off
	MCP         http.Handler            // nil = no MCP endpoint
	MCPPath     string                  // Default: "/mcp".
}

// Server holds the HTTP handlers.
type Server struct {
	lookup  *lookup.Service
	proxy   http.Handler
	mm      *shield.MaintenanceMode
	mcp     http.Handler
	mcpPath string
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Maintenance == nil {
		cfg.Maintenance = shield.NewMaintenanceMode(nil, MaintenanceExempt...)
	}
	if cfg.MCPPath == "" {
		cfg.MCPPath = "/mcp"
	}
	return &Server{
		lookup:  cfg.Lookup,
		proxy:   cfg.Proxy,
		mm:      cfg.Maintenance,
		mcp:     cfg.MCP,
		mcpPath: cfg.MCPPath,
	}
}

// Routes builds the router with the standard middleware stack.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(s.mm) {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/maintenance", s.mm.ServePage)
	r.Get("/tiktok", s.handleProfile)
	r.Get("/cash", s.handleCash)
	r.Get("/stats", s.handleStats)
	if s.proxy != nil {
		r.Method(http.MethodGet, "/proxy-image", s.proxy)
	}
	if s.mcp != nil {
		r.Handle(s.mcpPath, s.mcp)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if strings.TrimSpace(user) == "" {
		writeError(w, http.StatusBadRequest, "Missing user parameter")
		return
	}

	res, cached, err := s.lookup.Lookup(r.Context(), user)
	if err != nil {
		log := shield.GetLogger(r.Context())
		switch {
		case errors.Is(err, profile.ErrValidation):
			writeError(w, http.StatusBadRequest, "Invalid user parameter")
		default:
			log.Error("profile lookup failed", "user", user, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "Failed to fetch profile",
				"details": err.Error(),
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, lookup.NewResponse(res, cached))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"cache":   s.lookup.Cache().Stats(),
		"fetches": s.lookup.Fetches(),
	})
}

type cashResponse struct {
	Cashtag    string  `json:"cashtag"`
	Name       string  `json:"name"`
	Avatar     *string `json:"avatar"`
	ConfirmURL string  `json:"confirmUrl"`
}

func (s *Server) handleCash(w http.ResponseWriter, r *http.Request) {
	tag := strings.TrimSpace(r.URL.Query().Get("tag"))
	if tag == "" || tag == "$" {
		writeError(w, http.StatusBadRequest, "Missing tag parameter")
		return
	}

	cashtag := FormatCashtag(tag)
	writeJSON(w, http.StatusOK, cashResponse{
		Cashtag:    cashtag,
		Name:       strings.TrimPrefix(cashtag, "$"),
		ConfirmURL: ConfirmURL(cashtag),
	})
}

// FormatCashtag prefixes tag with "$" unless it already starts with one.
func FormatCashtag(tag string) string {
	if strings.HasPrefix(tag, "$") {
		return tag
	}
	return "$" + tag
}

// ConfirmURL builds the external confirmation link for a cashtag.
func ConfirmURL(cashtag string) string {
	return "https://cash.app/" + url.QueryEscape(cashtag)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
