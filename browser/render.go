package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/avatard/extract"
)

// Snapshot is what a render reads from a profile page. Empty fields mean the
// element was absent.
type Snapshot struct {
	URL       string
	Island    string // text of the data-island script
	MetaImage string // og:image content
}

// Render opens pageURL in a fresh incognito context and reads the data
// island and the link-preview image. Heavy resources are aborted and only
// DOMContentLoaded is awaited. The context, page and hijack router are
// always released, whatever the outcome.
func (m *Manager) Render(ctx context.Context, pageURL string) (*Snapshot, error) {
	log := m.cfg.Logger

	b, err := m.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	incog, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("browser: incognito: %w", err)
	}
	defer func() {
		if err := incog.Close(); err != nil {
			log.Debug("browser: close context", "error", err)
		}
	}()

	page, err := stealth.Page(incog)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Debug("browser: close tab", "error", err)
		}
	}()

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      m.cfg.UserAgent,
		AcceptLanguage: "en-US,en;q=0.9",
	}); err != nil {
		log.Warn("browser: set user agent failed", "error", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.ViewportWidth,
		Height:            m.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		log.Warn("browser: set viewport failed", "error", err)
	}

	if len(m.cfg.ResourceBlocking) > 0 {
		router := applyResourceBlocking(page, m.cfg.ResourceBlocking)
		defer func() {
			if err := router.Stop(); err != nil {
				log.Debug("browser: stop hijack", "error", err)
			}
		}()
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavTimeout)
	defer cancel()
	p := page.Context(navCtx)

	wait := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	wait()
	if err := navCtx.Err(); err != nil {
		return nil, fmt.Errorf("browser: wait load %s: %w", pageURL, err)
	}

	snap := &Snapshot{URL: pageURL}

	if has, el, err := p.Has(`script[id="` + extract.IslandID + `"]`); err == nil && has {
		if v, err := el.Property("textContent"); err == nil {
			snap.Island = v.Str()
		}
	}
	if has, el, err := p.Has(`meta[property="og:image"]`); err == nil && has {
		if v, err := el.Attribute("content"); err == nil && v != nil {
			snap.MetaImage = *v
		}
	}

	log.Debug("browser: rendered",
		"url", pageURL, "island_bytes", len(snap.Island), "meta_image", snap.MetaImage != "")
	return snap, nil
}
