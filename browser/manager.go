// Package browser owns the process-wide headless Chrome used to render
// profile pages. The browser is launched lazily on first use and then shared
// by every request; each render gets its own incognito context so cookies
// and storage never leak between requests.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// DefaultUserAgent is a desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Bin is the Chrome binary path. Empty = launcher default lookup/download.
	Bin string

	// Sandbox keeps Chrome's sandbox on. Off by default for containers.
	Sandbox bool

	// ResourceBlocking lists resource types to abort (images, fonts, media, stylesheets).
	ResourceBlocking []string

	// NavTimeout bounds a page navigation. Default: 15s.
	NavTimeout time.Duration

	UserAgent      string
	ViewportWidth  int // Default: 1280.
	ViewportHeight int // Default: 800.

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.ResourceBlocking == nil {
		c.ResourceBlocking = []string{"images", "media", "fonts", "stylesheets"}
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 15 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1280
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 800
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager holds the shared Chrome instance.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	startAt time.Time
	closed  bool

	// launch is replaced in tests.
	launch func() (*rod.Browser, error)
}

// NewManager creates a Manager. Chrome is not started until the first
// Acquire or Render.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	m := &Manager{cfg: cfg}
	m.launch = m.launchChrome
	return m
}

// Acquire returns the shared browser, launching it on first use. A failed
// launch is not remembered: the next call tries again.
func (m *Manager) Acquire(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return m.browser, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := m.launch()
	if err != nil {
		m.cfg.Logger.Warn("browser: launch failed", "error", err)
		return nil, err
	}
	m.browser = b
	m.startAt = time.Now()
	return b, nil
}

// Started reports whether a browser is currently held.
func (m *Manager) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser != nil
}

// Close shuts Chrome down. Only called at process exit.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
		m.cfg.Logger.Info("browser: closed", "uptime", time.Since(m.startAt))
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return err
}

func (m *Manager) launchChrome() (*rod.Browser, error) {
	log := m.cfg.Logger

	wsURL := m.cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(true).
			NoSandbox(!m.cfg.Sandbox).
			// Anti-detection flag.
			Set("disable-blink-features", "AutomationControlled")
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "sandbox", m.cfg.Sandbox)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if m.lnch != nil {
			m.lnch.Cleanup()
			m.lnch = nil
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}
