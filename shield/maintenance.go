package shield

import (
	"context"
	"database/sql"
	"errors"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/avatard/dbopen"
)

// DefaultMaintenanceMessage is shown when no message has been configured.
const DefaultMaintenanceMessage = "Maintenance in progress, please check back shortly."

// ReloadInterval is how often StartReloader re-reads the database flag.
const ReloadInterval = 5 * time.Second

// MaintenanceMode answers 503 with a notice page while maintenance is on.
//
// The flag has two sources: a static switch set at startup (SetForced, fed
// by MAINTENANCE_MODE) and an optional SQLite row (see Schema) re-read by
// StartReloader. Maintenance is on when either source says so. Without a
// database only the static switch applies.
type MaintenanceMode struct {
	mu      sync.RWMutex
	db      *sql.DB
	page    []byte // static HTML served during maintenance
	exclude []string

	forced  atomic.Bool
	active  atomic.Bool // from the database
	message atomic.Value // string
}

// NewMaintenanceMode creates a maintenance switch. db may be nil. Paths
// matching any of excludePrefixes are never blocked.
func NewMaintenanceMode(db *sql.DB, excludePrefixes ...string) *MaintenanceMode {
	m := &MaintenanceMode{
		db:      db,
		exclude: excludePrefixes,
	}
	m.message.Store(DefaultMaintenanceMessage)
	m.reload()
	return m
}

// SetForced turns the static switch on or off.
func (m *MaintenanceMode) SetForced(on bool) {
	if m.forced.Swap(on) != on {
		slog.Info("maintenance: static flag changed", "active", on)
	}
}

// SetDB replaces the database and reloads the flag.
func (m *MaintenanceMode) SetDB(db *sql.DB) {
	m.mu.Lock()
	m.db = db
	m.mu.Unlock()
	m.reload()
}

// Active reports whether maintenance mode is currently on.
func (m *MaintenanceMode) Active() bool {
	return m.forced.Load() || m.active.Load()
}

// Message returns the current maintenance message.
func (m *MaintenanceMode) Message() string {
	s, _ := m.message.Load().(string)
	return s
}

// SetPage sets custom HTML to serve during maintenance. If not set, a minimal
// default page built from Message is used.
func (m *MaintenanceMode) SetPage(page []byte) {
	m.mu.Lock()
	m.page = page
	m.mu.Unlock()
}

// Store writes the flag and message to the database and reloads. It fails
// when the switch has no database.
func (m *MaintenanceMode) Store(ctx context.Context, active bool, message string) error {
	m.mu.RLock()
	db := m.db
	m.mu.RUnlock()
	if db == nil {
		return errors.New("maintenance: no database configured")
	}
	if message == "" {
		message = DefaultMaintenanceMessage
	}
	on := 0
	if active {
		on = 1
	}
	_, err := dbopen.Exec(ctx, db,
		`INSERT INTO maintenance (id, active, message) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET active = excluded.active, message = excluded.message`,
		on, message)
	if err != nil {
		return err
	}
	m.reload()
	return nil
}

// StartReloader re-reads the database flag every ReloadInterval until done
// is closed. It does nothing when the switch has no database.
func (m *MaintenanceMode) StartReloader(done <-chan struct{}) {
	m.mu.RLock()
	hasDB := m.db != nil
	m.mu.RUnlock()
	if !hasDB {
		return
	}
	tick := time.NewTicker(ReloadInterval)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				m.reload()
			}
		}
	}()
}

func (m *MaintenanceMode) reload() {
	m.mu.RLock()
	db := m.db
	m.mu.RUnlock()
	if db == nil {
		return
	}

	var active int
	var message string
	err := db.QueryRow(`SELECT active, message FROM maintenance WHERE id = 1`).Scan(&active, &message)
	if err != nil {
		// Table missing or empty: maintenance off.
		if m.active.Swap(false) {
			slog.Info("maintenance: flag cleared (table missing or empty)")
		}
		return
	}

	was := m.active.Swap(active == 1)
	if message != "" {
		m.message.Store(message)
	}

	if active == 1 && !was {
		slog.Warn("maintenance: mode ENABLED", "message", message)
	} else if active != 1 && was {
		slog.Info("maintenance: mode DISABLED")
	}
}

// Middleware blocks requests with a 503 page while maintenance is on.
// Excluded paths and anything beneath them pass through.
func (m *MaintenanceMode) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Active() {
			next.ServeHTTP(w, r)
			return
		}

		for _, prefix := range m.exclude {
			if r.URL.Path == prefix || strings.HasPrefix(r.URL.Path, prefix+"/") {
				next.ServeHTTP(w, r)
				return
			}
		}

		w.Header().Set("Retry-After", "300")
		m.writePage(w, http.StatusServiceUnavailable)
	})
}

// ServePage serves the maintenance notice with status 200, whatever the
// current flag.
func (m *MaintenanceMode) ServePage(w http.ResponseWriter, r *http.Request) {
	m.writePage(w, http.StatusOK)
}

func (m *MaintenanceMode) writePage(w http.ResponseWriter, status int) {
	m.mu.RLock()
	page := m.page
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if len(page) > 0 {
		w.Write(page)
		return
	}
	w.Write([]byte(defaultMaintenancePage(m.Message())))
}

func defaultMaintenancePage(message string) string {
	return `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Maintenance</title>
<style>
  body { font-family: system-ui, sans-serif; display: flex; align-items: center;
         justify-content: center; min-height: 100vh; margin: 0; background: #f8f9fa; color: #333; }
  .box { text-align: center; max-width: 480px; padding: 2rem; }
  h1 { font-size: 1.5rem; margin-bottom: .5rem; }
  p  { color: #666; }
</style>
</head>
<body>
<div class="box">
  <h1>Maintenance</h1>
  <p>` + html.EscapeString(message) + `</p>
</div>
</body>
</html>`
}
