// Package lookup resolves a profile handle to a display name and a proxied
// avatar path. Results are cached; concurrent lookups for the same handle
// share a single fetch.
package lookup

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/avatard/browser"
	"github.com/hazyhaar/avatard/cache"
	"github.com/hazyhaar/avatard/extract"
	"github.com/hazyhaar/avatard/idgen"
	"github.com/hazyhaar/avatard/profile"
)

// DefaultProxyPath is the same-origin image proxy route avatars are rewritten to.
const DefaultProxyPath = "/proxy-image"

// Renderer loads a profile page and reads the raw data it carries.
// browser.Manager and browser.HTTPRenderer both satisfy it.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (*browser.Snapshot, error)
}

// Config configures a Service.
type Config struct {
	Renderer  Renderer
	Cache     *cache.Cache // nil = new cache with DefaultTTL
	ProxyPath string       // Default: DefaultProxyPath.
	IDGen     idgen.Generator
	Logger    *slog.Logger
}

// Service runs the profile fetch pipeline.
type Service struct {
	renderer  Renderer
	cache     *cache.Cache
	proxyPath string
	newID     idgen.Generator
	logger    *slog.Logger
	policy    *bluemonday.Policy

	group   singleflight.Group
	fetches atomic.Int64
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.Cache == nil {
		cfg.Cache = cache.New(cache.Config{})
	}
	if cfg.ProxyPath == "" {
		cfg.ProxyPath = DefaultProxyPath
	}
	if cfg.IDGen == nil {
		cfg.IDGen = idgen.UUIDv7()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		renderer:  cfg.Renderer,
		cache:     cfg.Cache,
		proxyPath: cfg.ProxyPath,
		newID:     cfg.IDGen,
		logger:    cfg.Logger,
		policy:    bluemonday.StrictPolicy(),
	}
}

// Cache returns the result cache backing the service.
func (s *Service) Cache() *cache.Cache { return s.cache }

// Fetches reports how many pipeline executions have started.
func (s *Service) Fetches() int64 { return s.fetches.Load() }

// Lookup returns the profile for raw. cached is true when the result came
// straight from the cache. Concurrent callers for the same handle join one
// fetch and receive the same result or error. The fetch itself ignores the
// caller's cancellation so that it completes and is cached for later
// callers; a canceled caller stops waiting and gets ctx.Err().
func (s *Service) Lookup(ctx context.Context, raw string) (profile.Result, bool, error) {
	id := profile.Normalize(raw)
	if err := profile.Validate(id); err != nil {
		return profile.Result{}, false, err
	}

	if r, ok := s.cache.Get(id); ok {
		return r, true, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(id, func() (v any, err error) {
		// DoChan re-raises panics on a detached goroutine; turn them into
		// a fetch failure every joined caller receives.
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("lookup: fetch panicked", "user", id, "panic", rec)
				v, err = nil, fmt.Errorf("%w: panic: %v", profile.ErrFetch, rec)
			}
		}()
		return s.Fetch(fetchCtx, id)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return profile.Result{}, false, res.Err
		}
		return res.Val.(profile.Result), false, nil
	case <-ctx.Done():
		return profile.Result{}, false, ctx.Err()
	}
}

// Fetch runs the pipeline for an already normalized identifier and stores
// the result in the cache. It bypasses the cache lookup and the coalescer.
func (s *Service) Fetch(ctx context.Context, id string) (profile.Result, error) {
	s.fetches.Add(1)
	log := s.logger.With("fetch_id", s.newID(), "user", id)
	log.Info("lookup: fetching profile")

	snap, err := s.renderer.Render(ctx, profile.ProfileURL(id))
	if err != nil {
		log.Warn("lookup: render failed", "error", err)
		return profile.Result{}, fmt.Errorf("%w: %w", profile.ErrFetch, err)
	}

	r := s.cache.Set(id, s.build(id, snap))
	log.Info("lookup: profile fetched",
		"blocked", r.Blocked, "has_name", r.DisplayName != id)
	return r, nil
}

// build turns a page snapshot into a Result. Missing data never fails: the
// name falls back to the identifier and a missing avatar marks the result
// as blocked.
func (s *Service) build(id string, snap *browser.Snapshot) profile.Result {
	var island, meta string
	if snap != nil {
		island, meta = snap.Island, snap.MetaImage
	}

	fields := extract.Island(island)
	avatar := fields.Avatar
	if avatar == "" {
		avatar = meta
	}

	r := profile.Result{
		Identifier:  id,
		DisplayName: s.sanitizeName(fields.Name),
	}
	if r.DisplayName == "" {
		r.DisplayName = id
	}
	if src := normalizeAvatar(avatar); src != "" {
		r.AvatarPath = s.proxyPath + "?url=" + url.QueryEscape(src)
	}
	r.Blocked = !r.HasAvatar()
	return r
}

// sanitizeName strips markup and returns plain text.
func (s *Service) sanitizeName(name string) string {
	clean := s.policy.Sanitize(name)
	return strings.TrimSpace(html.UnescapeString(clean))
}

// normalizeAvatar unescapes an avatar URL and makes protocol-relative URLs
// absolute.
func normalizeAvatar(raw string) string {
	u := strings.TrimSpace(extract.Unescape(raw))
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	return u
}
