// Command avatard serves profile lookups, the image proxy and the payment
// tag endpoint.
//
//	avatard                              run the HTTP server
//	avatard maintenance on [message]     set the flag in MAINTENANCE_DB
//	avatard maintenance off              clear it
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/avatard/api"
	"github.com/hazyhaar/avatard/browser"
	"github.com/hazyhaar/avatard/cache"
	"github.com/hazyhaar/avatard/dbopen"
	"github.com/hazyhaar/avatard/internal/config"
	"github.com/hazyhaar/avatard/lookup"
	"github.com/hazyhaar/avatard/proxy"
	"github.com/hazyhaar/avatard/shield"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load(os.Getenv("AVATARD_CONFIG"))
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if len(os.Args) > 1 && os.Args[1] == "maintenance" {
		if err := runMaintenance(cfg, os.Args[2:]); err != nil {
			slog.Error("maintenance", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("avatard", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Maintenance: static flag, optionally backed by a SQLite row.
	var db *sql.DB
	if cfg.Server.MaintenanceDB != "" {
		var err error
		db, err = openMaintenanceDB(cfg.Server.MaintenanceDB)
		if err != nil {
			return err
		}
		defer db.Close()
	}
	mm := shield.NewMaintenanceMode(db, api.MaintenanceExempt...)
	mm.SetForced(cfg.Server.Maintenance)
	page, err := loadPage(cfg.Server.MaintenancePage)
	if err != nil {
		return err
	}
	mm.SetPage(page)
	mm.StartReloader(ctx.Done())

	// Renderer.
	var renderer lookup.Renderer
	switch cfg.Browser.Mode {
	case "http":
		renderer = browser.NewHTTPRenderer(
			browser.WithUserAgent(orDefault(cfg.Browser.UserAgent, browser.DefaultUserAgent)),
			browser.WithLogger(logger),
		)
	default:
		mgr := browser.NewManager(browser.Config{
			RemoteURL:        cfg.Browser.Remote,
			Bin:              cfg.Browser.Bin,
			Sandbox:          cfg.Browser.Sandbox,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			NavTimeout:       cfg.Browser.NavTimeout,
			UserAgent:        cfg.Browser.UserAgent,
			Logger:           logger,
		})
		defer mgr.Close()
		renderer = mgr
	}
	slog.Info("renderer ready", "mode", cfg.Browser.Mode)

	svc := lookup.New(lookup.Config{
		Renderer: renderer,
		Cache: cache.New(cache.Config{
			TTL:        cfg.Cache.TTL,
			MaxEntries: cfg.Cache.MaxEntries,
		}),
		Logger: logger,
	})

	px := proxy.New(proxy.Config{
		Referer:  cfg.Proxy.Referer,
		MaxBytes: cfg.Proxy.MaxBytes,
		Timeout:  cfg.Proxy.Timeout,
		Logger:   logger,
	})

	apiCfg := api.Config{
		Lookup:      svc,
		Proxy:       px,
		Maintenance: mm,
		MCPPath:     cfg.MCP.Path,
	}
	if cfg.MCP.Enabled {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "avatard", Version: version}, nil)
		svc.RegisterMCP(mcpSrv)
		apiCfg.MCP = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
		slog.Info("MCP enabled", "path", cfg.MCP.Path)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.New(apiCfg).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port, "maintenance", mm.Active())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

// runMaintenance flips the database-backed maintenance flag.
func runMaintenance(cfg *config.Config, args []string) error {
	if cfg.Server.MaintenanceDB == "" {
		return errors.New("MAINTENANCE_DB is not set")
	}
	if len(args) == 0 || (args[0] != "on" && args[0] != "off") {
		return errors.New("usage: avatard maintenance on|off [message]")
	}

	db, err := openMaintenanceDB(cfg.Server.MaintenanceDB)
	if err != nil {
		return err
	}
	defer db.Close()

	mm := shield.NewMaintenanceMode(db)
	on := args[0] == "on"
	if err := mm.Store(context.Background(), on, strings.Join(args[1:], " ")); err != nil {
		return err
	}
	slog.Info("maintenance flag stored", "active", on, "message", mm.Message())
	return nil
}

func openMaintenanceDB(path string) (*sql.DB, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(shield.Schema))
	if err != nil {
		return nil, fmt.Errorf("maintenance db: %w", err)
	}
	return db, nil
}

// loadPage reads a custom maintenance page. Empty path keeps the built-in
// page, which shows the stored message.
func loadPage(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("maintenance page: %w", err)
	}
	return data, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
