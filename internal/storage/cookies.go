package storage

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// storedCookie is the on-disk representation of one jar entry.
type storedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure"`
	SameSite string    `json:"sameSite"`
}

// CookieJarTier persists values as cookies in a file-backed jar, keeping
// the attribute semantics a browser would apply: Path=/, SameSite=Lax and
// Secure when the tracked origin is served over TLS. The jar may also
// contain raw cookies written by third parties.
type CookieJarTier struct {
	path   string
	secure bool

	mu      sync.Mutex
	cookies map[string]storedCookie
}

// NewCookieJarTier loads (or creates) the jar file at path. secure marks
// new cookies Secure, matching an https origin.
func NewCookieJarTier(path string, secure bool) (*CookieJarTier, error) {
	t := &CookieJarTier{
		path:    path,
		secure:  secure,
		cookies: make(map[string]storedCookie),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("failed to read cookie jar: %w", err)
	}

	var loaded []storedCookie
	if err := json.Unmarshal(data, &loaded); err != nil {
		// A corrupt jar is dropped rather than poisoning every read
		return t, nil
	}
	for _, c := range loaded {
		t.cookies[c.Name] = c
	}
	return t, nil
}

// Name implements Tier.
func (t *CookieJarTier) Name() string { return "cookies" }

// Set writes an envelope value as a cookie. The value is escaped the way
// a browser script would escape it before document.cookie assignment.
func (t *CookieJarTier) Set(key string, data []byte, expiresAt *time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := storedCookie{
		Name:     key,
		Value:    url.QueryEscape(string(data)),
		Path:     "/",
		Secure:   t.secure,
		SameSite: "Lax",
	}
	if expiresAt != nil {
		c.Expires = expiresAt.UTC()
	}
	t.cookies[key] = c
	return t.persistLocked()
}

// Get implements Tier. Expired cookies are dropped on read.
func (t *CookieJarTier) Get(key string) ([]byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.cookies[key]
	if !ok {
		return nil, false, nil
	}
	if !c.Expires.IsZero() && time.Now().After(c.Expires) {
		delete(t.cookies, key)
		_ = t.persistLocked()
		return nil, false, nil
	}

	decoded, err := url.QueryUnescape(c.Value)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode cookie %s: %w", key, err)
	}
	return []byte(decoded), true, nil
}

// Remove implements Tier.
func (t *CookieJarTier) Remove(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cookies, key)
	return t.persistLocked()
}

// RawValue returns a cookie's unescaped value without envelope decoding.
func (t *CookieJarTier) RawValue(name string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.cookies[name]
	if !ok {
		return "", false
	}
	if !c.Expires.IsZero() && time.Now().After(c.Expires) {
		return "", false
	}
	decoded, err := url.QueryUnescape(c.Value)
	if err != nil {
		return c.Value, true
	}
	return decoded, true
}

// SetRaw stores a plain cookie value, the way a third-party script would.
func (t *CookieJarTier) SetRaw(name, value string, expiresAt *time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := storedCookie{
		Name:     name,
		Value:    url.QueryEscape(value),
		Path:     "/",
		Secure:   t.secure,
		SameSite: "Lax",
	}
	if expiresAt != nil {
		c.Expires = expiresAt.UTC()
	}
	t.cookies[name] = c
	return t.persistLocked()
}

// HTTPCookies returns the live jar contents as http.Cookie values.
func (t *CookieJarTier) HTTPCookies() []*http.Cookie {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	var out []*http.Cookie
	for _, c := range t.cookies {
		if !c.Expires.IsZero() && now.After(c.Expires) {
			continue
		}
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return out
}

// persistLocked writes the whole jar as one fully-formed JSON document.
// Callers must hold t.mu.
func (t *CookieJarTier) persistLocked() error {
	cookies := make([]storedCookie, 0, len(t.cookies))
	for _, c := range t.cookies {
		cookies = append(cookies, c)
	}

	data, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("failed to marshal cookie jar: %w", err)
	}

	if dir := filepath.Dir(t.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create cookie jar directory: %w", err)
		}
	}
	if err := os.WriteFile(t.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cookie jar: %w", err)
	}
	return nil
}
