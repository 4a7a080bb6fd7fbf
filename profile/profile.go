// Package profile defines the lookup result model, identifier normalization,
// and the error taxonomy shared by the avatard packages.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/avatard/horosafe"
)

// Error taxonomy. Callers classify with errors.Is; the HTTP surface maps
// each sentinel to a status code.
var (
	// ErrValidation marks missing or malformed input parameters (400).
	ErrValidation = errors.New("validation error")
	// ErrInvalidURL marks a proxy target that fails the parse/scheme check (400).
	ErrInvalidURL = errors.New("invalid url")
	// ErrUpstream marks a remote fetch that failed or returned non-2xx (502).
	ErrUpstream = errors.New("upstream error")
	// ErrFetch marks a browser automation or navigation failure (500).
	ErrFetch = errors.New("fetch error")
)

// Result is the outcome of a profile lookup. It is a value: a new fetch
// replaces a stored Result wholesale.
type Result struct {
	Identifier  string    // normalized handle, cache key
	DisplayName string    // falls back to Identifier
	AvatarPath  string    // same-origin proxy path, "" when no avatar was found
	Blocked     bool      // true exactly when no avatar could be resolved
	FetchedAt   time.Time // stamped by the cache on Set
}

// HasAvatar reports whether an avatar path was resolved.
func (r Result) HasAvatar() bool { return r.AvatarPath != "" }

// Normalize trims surrounding whitespace, strips a single leading "@" and
// lowercases the handle. For every output accepted by Validate,
// Normalize(out) == out.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "@")
	return strings.ToLower(s)
}

// Validate rejects identifiers that cannot be a handle: empty, too long, or
// containing anything outside letters, digits, '_', '-' and '.'.
func Validate(id string) error {
	if err := horosafe.ValidateIdentifier(id); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

// ProfileURL returns the canonical public profile URL for an identifier.
func ProfileURL(id string) string {
	return "https://www.tiktok.com/@" + id
}
