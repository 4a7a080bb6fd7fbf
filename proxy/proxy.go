// Package proxy fetches remote images on behalf of the browser so pages can
// display third-party avatars without hotlink or CORS failures.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/hazyhaar/avatard/browser"
	"github.com/hazyhaar/avatard/horosafe"
	"github.com/hazyhaar/avatard/profile"
)

const (
	// DefaultReferer is sent upstream so CDNs that check the referrer serve the image.
	DefaultReferer = "https://www.tiktok.com/"
	// DefaultContentType is used when the upstream omits Content-Type.
	DefaultContentType = "image/jpeg"
	// CacheControl is set on every successful response.
	CacheControl = "public, max-age=86400"
)

// Image is a fetched upstream image.
type Image struct {
	ContentType string
	Body        []byte
}

// Config configures the proxy.
type Config struct {
	Client    *http.Client // nil = client with Timeout and redirect re-validation
	Timeout   time.Duration // Default: 15s.
	MaxBytes  int64         // Default: horosafe.MaxResponseBody (10 MiB).
	Referer   string        // Default: DefaultReferer.
	UserAgent string        // Default: browser.DefaultUserAgent.
	// URLValidator rejects targets before the request and on every redirect.
	// Default: horosafe.ValidateURL.
	URLValidator func(string) error
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = horosafe.MaxResponseBody
	}
	if c.Referer == "" {
		c.Referer = DefaultReferer
	}
	if c.UserAgent == "" {
		c.UserAgent = browser.DefaultUserAgent
	}
	if c.URLValidator == nil {
		c.URLValidator = horosafe.ValidateURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Proxy fetches and relays images.
type Proxy struct {
	client *http.Client
	cfg    Config
}

// New creates a Proxy. When cfg.Client is nil the proxy builds its own
// client whose redirects are re-validated.
func New(cfg Config) *Proxy {
	cfg.defaults()
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	validate := cfg.URLValidator
	if client.CheckRedirect == nil {
		c := *client
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (%d)", len(via))
			}
			if err := validate(req.URL.String()); err != nil {
				return fmt.Errorf("%w: %w", errRedirectBlocked, err)
			}
			return nil
		}
		client = &c
	}
	return &Proxy{client: client, cfg: cfg}
}

// Fetch retrieves the image at rawURL. Invalid or disallowed targets wrap
// profile.ErrInvalidURL; network failures and non-2xx responses wrap
// profile.ErrUpstream. Transient upstream failures are retried once.
func (p *Proxy) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	u, err := horosafe.ValidateScheme(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", profile.ErrInvalidURL, err)
	}
	if err := p.cfg.URLValidator(rawURL); err != nil {
		return nil, fmt.Errorf("%w: %w", profile.ErrInvalidURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", profile.ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Referer", p.cfg.Referer)
	req.Header.Set("Accept", "image/*")

	var ct string
	body, err := retry.DoWithData(
		func() ([]byte, error) {
			resp, err := p.client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, &statusError{code: resp.StatusCode}
			}
			ct = resp.Header.Get("Content-Type")
			return horosafe.LimitedReadAll(resp.Body, p.cfg.MaxBytes)
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(200*time.Millisecond),
		retry.MaxJitter(100*time.Millisecond),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			p.cfg.Logger.Debug("proxy: retrying upstream", "attempt", n+1, "url", rawURL, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", profile.ErrUpstream, err)
	}

	if ct == "" {
		ct = DefaultContentType
	}
	return &Image{ContentType: ct, Body: body}, nil
}

var errRedirectBlocked = errors.New("redirect blocked")

type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("http %d", e.code) }

// isRetryable reports whether an upstream failure is worth a second attempt:
// network errors, 429 and 5xx.
func isRetryable(err error) bool {
	if errors.Is(err, horosafe.ErrTooLarge) || errors.Is(err, errRedirectBlocked) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

// ServeHTTP handles GET /proxy-image?url=<url>. Errors are plain text:
// 400 for a missing or invalid url, 502 for upstream failures, 500 otherwise.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "Missing url parameter", http.StatusBadRequest)
		return
	}

	img, err := p.Fetch(r.Context(), target)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, profile.ErrInvalidURL):
			status = http.StatusBadRequest
		case errors.Is(err, profile.ErrUpstream):
			status = http.StatusBadGateway
		}
		p.cfg.Logger.Warn("proxy: fetch failed", "url", target, "status", status, "error", err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", CacheControl)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Body)))
	w.WriteHeader(http.StatusOK)
	w.Write(img.Body)
}
