package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/avatard/browser"
	"github.com/hazyhaar/avatard/lookup"
	"github.com/hazyhaar/avatard/shield"
)

type stubRenderer struct {
	snap  *browser.Snapshot
	err   error
	calls atomic.Int32
}

func (s *stubRenderer) Render(_ context.Context, _ string) (*browser.Snapshot, error) {
	s.calls.Add(1)
	return s.snap, s.err
}

func newTestServer(t *testing.T, r lookup.Renderer, mm *shield.MaintenanceMode) *httptest.Server {
	t.Helper()
	proxy := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png"))
	})
	srv := New(Config{
		Lookup:      lookup.New(lookup.Config{Renderer: r}),
		Proxy:       proxy,
		Maintenance: mm,
	})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, ts *httptest.Server, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return resp, body
}

func decode(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	return m
}

const island = `{"user":{"nickname":"Bob","avatarLarger":"https://cdn.example.com/bob.jpg"}}`

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &stubRenderer{}, nil)
	resp, body := get(t, ts, "/health")
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("health = %d %q", resp.StatusCode, body)
	}
}

func TestProfile_Success(t *testing.T) {
	r := &stubRenderer{snap: &browser.Snapshot{Island: island}}
	ts := newTestServer(t, r, nil)

	resp, body := get(t, ts, "/tiktok?user=%40Bob")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	want := map[string]any{
		"name":     "Bob",
		"username": "bob",
		"avatar":   "/proxy-image?url=" + url.QueryEscape("https://cdn.example.com/bob.jpg"),
		"blocked":  false,
		"cached":   false,
	}
	if diff := cmp.Diff(want, decode(t, body)); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}

	_, body = get(t, ts, "/tiktok?user=bob")
	if got := decode(t, body)["cached"]; got != true {
		t.Errorf("second call cached = %v, want true", got)
	}
	if n := r.calls.Load(); n != 1 {
		t.Errorf("renders = %d, want 1", n)
	}
}

func TestProfile_Blocked(t *testing.T) {
	// WHAT: A page without island or og:image yields blocked, null avatar, name = handle.
	ts := newTestServer(t, &stubRenderer{snap: &browser.Snapshot{}}, nil)

	_, body := get(t, ts, "/tiktok?user=ghost")
	want := map[string]any{
		"name":     "ghost",
		"username": "ghost",
		"avatar":   nil,
		"blocked":  true,
		"cached":   false,
	}
	if diff := cmp.Diff(want, decode(t, body)); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestProfile_BadRequest(t *testing.T) {
	ts := newTestServer(t, &stubRenderer{}, nil)
	for _, path := range []string{"/tiktok", "/tiktok?user=", "/tiktok?user=%20%20", "/tiktok?user=%40", "/tiktok?user=a%20b"} {
		resp, body := get(t, ts, path)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, resp.StatusCode)
			continue
		}
		if decode(t, body)["error"] == nil {
			t.Errorf("%s: missing error field in %s", path, body)
		}
	}
}

func TestProfile_FetchFailure(t *testing.T) {
	ts := newTestServer(t, &stubRenderer{err: errors.New("navigation timeout")}, nil)

	resp, body := get(t, ts, "/tiktok?user=bob")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	m := decode(t, body)
	if m["error"] == nil {
		t.Error("missing error field")
	}
	if d, _ := m["details"].(string); !strings.Contains(d, "navigation timeout") {
		t.Errorf("details = %v", m["details"])
	}
}

func TestCash(t *testing.T) {
	ts := newTestServer(t, &stubRenderer{}, nil)

	for _, tag := range []string{"bob", "%24bob"} {
		resp, body := get(t, ts, "/cash?tag="+tag)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("tag %s: status = %d", tag, resp.StatusCode)
		}
		want := map[string]any{
			"cashtag":    "$bob",
			"name":       "bob",
			"avatar":     nil,
			"confirmUrl": "https://cash.app/%24bob",
		}
		if diff := cmp.Diff(want, decode(t, body)); diff != "" {
			t.Errorf("tag %s mismatch (-want +got):\n%s", tag, diff)
		}
	}

	resp, _ := get(t, ts, "/cash")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing tag: status = %d, want 400", resp.StatusCode)
	}
}

func TestFormatCashtag(t *testing.T) {
	tests := []struct{ in, want string }{
		{"bob", "$bob"},
		{"$bob", "$bob"},
		{"$$bob", "$$bob"},
	}
	for _, tt := range tests {
		if got := FormatCashtag(tt.in); got != tt.want {
			t.Errorf("FormatCashtag(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := ConfirmURL("$bob"); !strings.HasSuffix(got, "%24bob") {
		t.Errorf("ConfirmURL = %q, want suffix %%24bob", got)
	}
}

func TestProxyRoute(t *testing.T) {
	ts := newTestServer(t, &stubRenderer{}, nil)
	resp, body := get(t, ts, "/proxy-image?url=https%3A%2F%2Fexample.com%2Fa.png")
	if resp.StatusCode != http.StatusOK || string(body) != "png" {
		t.Errorf("proxy = %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing on proxy route")
	}
}

func TestMaintenance(t *testing.T) {
	// WHAT: In maintenance only /health and /maintenance answer normally.
	mm := shield.NewMaintenanceMode(nil, MaintenanceExempt...)
	mm.SetForced(true)
	ts := newTestServer(t, &stubRenderer{snap: &browser.Snapshot{}}, mm)

	for _, path := range []string{"/tiktok?user=bob", "/cash?tag=bob", "/proxy-image?url=x"} {
		if resp, _ := get(t, ts, path); resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", path, resp.StatusCode)
		}
	}
	if resp, body := get(t, ts, "/health"); resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("/health = %d %q", resp.StatusCode, body)
	}
	if resp, body := get(t, ts, "/maintenance"); resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Maintenance") {
		t.Errorf("/maintenance = %d", resp.StatusCode)
	}
}

func TestHeadHealth(t *testing.T) {
	ts := newTestServer(t, &stubRenderer{}, nil)
	resp, err := http.Head(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("HEAD /health = %d, want 200", resp.StatusCode)
	}
}

func TestStats(t *testing.T) {
	ts := newTestServer(t, &stubRenderer{snap: &browser.Snapshot{Island: island}}, nil)
	get(t, ts, "/tiktok?user=bob")
	get(t, ts, "/tiktok?user=bob")

	_, body := get(t, ts, "/stats")
	var stats struct {
		Cache struct {
			Entries int   `json:"entries"`
			Hits    int64 `json:"hits"`
		} `json:"cache"`
		Fetches int64 `json:"fetches"`
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Fetches != 1 || stats.Cache.Entries != 1 || stats.Cache.Hits != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
