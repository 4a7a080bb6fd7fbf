package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/avatard/extract"
	"github.com/hazyhaar/avatard/horosafe"
)

// HTTPRenderer reads the same Snapshot as Manager.Render with a single HTTP
// GET and no JavaScript. It serves deployments without Chrome, at the cost of
// receiving whatever variant the origin hands to non-browser clients.
type HTTPRenderer struct {
	client   *http.Client
	ua       string
	maxBytes int64
	logger   *slog.Logger
}

// HTTPOption configures an HTTPRenderer.
type HTTPOption func(*HTTPRenderer)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(r *HTTPRenderer) { r.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(r *HTTPRenderer) { r.ua = ua }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(r *HTTPRenderer) { r.logger = l }
}

// NewHTTPRenderer creates an HTTPRenderer with a 15s timeout.
func NewHTTPRenderer(opts ...HTTPOption) *HTTPRenderer {
	r := &HTTPRenderer{
		client:   &http.Client{Timeout: 15 * time.Second},
		ua:       DefaultUserAgent,
		maxBytes: horosafe.MaxResponseBody,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Render GETs pageURL and extracts the data island and og:image.
func (r *HTTPRenderer) Render(ctx context.Context, pageURL string) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("browser: new request: %w", err)
	}
	req.Header.Set("User-Agent", r.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("browser: get %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("browser: get %s: http %d", pageURL, resp.StatusCode)
	}

	body, err := horosafe.LimitedReadAll(resp.Body, r.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("browser: read body: %w", err)
	}

	doc, err := extract.ParseHTML(string(body))
	if err != nil {
		return nil, fmt.Errorf("browser: parse html: %w", err)
	}

	snap := &Snapshot{URL: pageURL}
	snap.Island, _ = extract.ScriptByID(doc, extract.IslandID)
	snap.MetaImage, _ = extract.MetaContent(doc, "og:image")

	r.logger.Debug("browser: fetched",
		"url", pageURL, "status", resp.StatusCode,
		"size", len(body), "island_bytes", len(snap.Island))
	return snap, nil
}
