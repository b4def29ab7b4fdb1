// Package visitors manages the durable visitor identity token and the
// per-visit visitor data snapshot.
package visitors

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"wibi/internal/attribution"
	"wibi/internal/botdetect"
	"wibi/internal/pkg/uaparse"
	"wibi/internal/storage"
)

// Storage keys owned by this package.
const (
	TokenKey       = "wibi_utk"
	VisitorDataKey = "wibi_visitor_data"
	UserTypeKey    = "wibi_user_type"
	EmailKey       = "wibi_email"
	PhoneKey       = "wibi_phone"
)

// legacyTokenCookie is the cookie name older deployments used for the
// visitor token. It is read once for migration, never written.
const legacyTokenCookie = "hubspotutk"

// Device describes the visitor's browser environment as derived from the
// user agent string and screen dimensions.
type Device struct {
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browserVersion"`
	OS             string `json:"os"`
	OSVersion      string `json:"osVersion"`
	DeviceType     string `json:"deviceType"`
	ScreenWidth    int    `json:"screenWidth"`
	ScreenHeight   int    `json:"screenHeight"`
	UserAgent      string `json:"userAgent"`
}

// Performance holds page load timing in milliseconds, present only when
// the host reports a completed load.
type Performance struct {
	LoadTime int64 `json:"loadTime"`
}

// Data is the snapshot assembled once per visit and attached to tracking
// payloads.
type Data struct {
	Token        string             `json:"visitorToken"`
	Device       Device             `json:"device"`
	Source       attribution.Result `json:"source"`
	BotDetection *botdetect.Result  `json:"botDetection,omitempty"`
	Performance  *Performance       `json:"performance,omitempty"`
	Timestamp    int64              `json:"timestamp"`
}

// Manager issues and persists visitor identity. The token is read once
// and cached for the process lifetime; every read re-persists it to push
// the expiry window forward.
type Manager struct {
	store  *storage.Store
	logger *slog.Logger
	ttl    time.Duration

	mu    sync.Mutex
	token string
}

func NewManager(store *storage.Store, logger *slog.Logger, ttl time.Duration) *Manager {
	return &Manager{store: store, logger: logger, ttl: ttl}
}

// Token returns the visitor token, resolving it in order: in-process
// cache, tiered storage, legacy cookie, freshly minted UUID. Whatever is
// resolved is written back with a renewed expiry.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" {
		return m.token
	}

	var stored string
	if m.store.Get(TokenKey, &stored) && stored != "" {
		m.token = stored
	} else if legacy, ok := m.legacyToken(); ok {
		m.logger.Debug("migrating legacy visitor token")
		m.token = legacy
	} else {
		m.token = uuid.NewString()
		m.logger.Debug("issued new visitor token", slog.String("token", m.token))
	}

	m.persistLocked()
	return m.token
}

// IsReturning reports whether a token already existed before this
// process first asked for one.
func (m *Manager) IsReturning() bool {
	var stored string
	if m.store.Get(TokenKey, &stored) && stored != "" {
		return true
	}
	_, ok := m.legacyToken()
	return ok
}

func (m *Manager) legacyToken() (string, bool) {
	value, ok := m.store.LegacyCookie(legacyTokenCookie)
	if !ok || value == "" || value == "undefined" || value == "null" {
		return "", false
	}
	return value, true
}

func (m *Manager) persistLocked() {
	expires := time.Now().Add(m.ttl)
	m.store.Set(TokenKey, m.token, storage.SetOptions{ExpiresAt: expires})
}

// Snapshot builds the visitor data record for the current visit and
// persists it for the session only.
func (m *Manager) Snapshot(signals botdetect.BrowserSignals, source attribution.Result, bot *botdetect.Result) Data {
	parsed := uaparse.Parse(signals.UserAgent())
	width, height := signals.ScreenSize()

	data := Data{
		Token: m.Token(),
		Device: Device{
			Browser:        parsed.Browser,
			BrowserVersion: parsed.BrowserVersion,
			OS:             parsed.OS,
			OSVersion:      parsed.OSVersion,
			DeviceType:     parsed.Device,
			ScreenWidth:    width,
			ScreenHeight:   height,
			UserAgent:      parsed.UserAgent,
		},
		Source:       source,
		BotDetection: bot,
		Timestamp:    time.Now().UnixMilli(),
	}
	if loadTime, ok := signals.PageLoadTime(); ok {
		data.Performance = &Performance{LoadTime: loadTime.Milliseconds()}
	}

	m.store.Set(VisitorDataKey, data, storage.SetOptions{SessionOnly: true})
	return data
}

// CachedSnapshot returns the visit snapshot persisted earlier in this
// session, if any.
func (m *Manager) CachedSnapshot() (Data, bool) {
	var data Data
	if m.store.Get(VisitorDataKey, &data) {
		return data, true
	}
	return Data{}, false
}

// RecordIdentity stores contact identifiers captured from a form
// submission. Empty values are skipped.
func (m *Manager) RecordIdentity(email, phone string) {
	expires := time.Now().Add(m.ttl)
	if email != "" {
		m.store.Set(EmailKey, email, storage.SetOptions{ExpiresAt: expires})
	}
	if phone != "" {
		m.store.Set(PhoneKey, phone, storage.SetOptions{ExpiresAt: expires})
	}
}

// Identity returns any stored contact identifiers.
func (m *Manager) Identity() (email, phone string) {
	m.store.Get(EmailKey, &email)
	m.store.Get(PhoneKey, &phone)
	return email, phone
}

// MarkUserType persists a visitor classification label, e.g. "returning".
func (m *Manager) MarkUserType(userType string) {
	m.store.Set(UserTypeKey, userType, storage.SetOptions{ExpiresAt: time.Now().Add(m.ttl)})
}
