// Package storage provides the tiered persistence layer used by the
// tracking engine: a durable SQLite-backed tier, an in-memory
// session-scoped tier and a cookie-jar tier, unified behind TTL-aware
// get/set/remove semantics.
package storage

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Tier is one persistence backend. Implementations store opaque envelope
// bytes; expiry bookkeeping happens in Store.
type Tier interface {
	Name() string
	Set(key string, data []byte, expiresAt *time.Time) error
	Get(key string) ([]byte, bool, error)
	Remove(key string) error
}

// envelope wraps every stored value so expiry travels with the data
// regardless of tier. It is always written as one fully-formed JSON
// document, never appended to in place.
type envelope struct {
	Value     json.RawMessage `json:"value"`
	Timestamp int64           `json:"timestamp"`
	ExpiresAt int64           `json:"expiresAt,omitempty"`
}

// SetOptions controls placement and lifetime of a stored value.
type SetOptions struct {
	// ExpiresAt invalidates the value after this instant. Zero means no expiry.
	ExpiresAt time.Time
	// SessionOnly keeps the value out of the durable and cookie tiers.
	SessionOnly bool
}

// Store fans writes out across tiers in durability order and reads the
// most durable tier first.
type Store struct {
	durable Tier
	session Tier
	cookies *CookieJarTier
	logger  *slog.Logger
}

// New assembles a Store from its tiers. Any tier may be nil, in which
// case it is skipped; operations only fail once every present tier fails.
func New(durable Tier, session Tier, cookies *CookieJarTier, logger *slog.Logger) *Store {
	return &Store{
		durable: durable,
		session: session,
		cookies: cookies,
		logger:  logger,
	}
}

func (s *Store) writeTiers(sessionOnly bool) []Tier {
	if sessionOnly {
		return []Tier{s.session}
	}
	tiers := []Tier{s.durable, s.session}
	if s.cookies != nil {
		tiers = append(tiers, s.cookies)
	}
	return tiers
}

func (s *Store) readTiers() []Tier {
	tiers := []Tier{s.durable, s.session}
	if s.cookies != nil {
		tiers = append(tiers, s.cookies)
	}
	return tiers
}

// Set stores a JSON-serializable value. It returns true if at least one
// tier accepted the write; individual tier failures are logged and the
// write continues with the remaining tiers.
func (s *Store) Set(key string, value any, opts SetOptions) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("Failed to marshal value for storage",
			slog.String("key", key), slog.Any("error", err))
		return false
	}

	env := envelope{
		Value:     raw,
		Timestamp: time.Now().UnixMilli(),
	}
	var expiresAt *time.Time
	if !opts.ExpiresAt.IsZero() {
		env.ExpiresAt = opts.ExpiresAt.UnixMilli()
		t := opts.ExpiresAt
		expiresAt = &t
	}

	data, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("Failed to marshal storage envelope",
			slog.String("key", key), slog.Any("error", err))
		return false
	}

	stored := false
	for _, tier := range s.writeTiers(opts.SessionOnly) {
		if tier == nil {
			continue
		}
		if err := tier.Set(key, data, expiresAt); err != nil {
			s.logger.Warn("Storage tier write failed",
				slog.String("tier", tier.Name()),
				slog.String("key", key),
				slog.Any("error", err))
			continue
		}
		stored = true
	}
	return stored
}

// Get reads the value stored under key into out, checking tiers in
// durability order. Expired entries are removed as a side effect and
// reported as a miss.
func (s *Store) Get(key string, out any) bool {
	for _, tier := range s.readTiers() {
		if tier == nil {
			continue
		}
		data, found, err := tier.Get(key)
		if err != nil {
			s.logger.Warn("Storage tier read failed",
				slog.String("tier", tier.Name()),
				slog.String("key", key),
				slog.Any("error", err))
			continue
		}
		if !found {
			continue
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Warn("Corrupt storage envelope",
				slog.String("tier", tier.Name()),
				slog.String("key", key),
				slog.Any("error", err))
			continue
		}

		if env.ExpiresAt != 0 && time.Now().UnixMilli() > env.ExpiresAt {
			s.Remove(key)
			return false
		}

		if err := json.Unmarshal(env.Value, out); err != nil {
			s.logger.Warn("Failed to unmarshal stored value",
				slog.String("key", key), slog.Any("error", err))
			continue
		}
		return true
	}
	return false
}

// Remove deletes key from every tier. Tier failures are logged and skipped.
func (s *Store) Remove(key string) {
	for _, tier := range s.readTiers() {
		if tier == nil {
			continue
		}
		if err := tier.Remove(key); err != nil {
			s.logger.Warn("Storage tier remove failed",
				slog.String("tier", tier.Name()),
				slog.String("key", key),
				slog.Any("error", err))
		}
	}
}

// LegacyCookie reads a raw, non-enveloped cookie value from the cookie
// jar tier. Used for tokens set by third-party scripts.
func (s *Store) LegacyCookie(name string) (string, bool) {
	if s.cookies == nil {
		return "", false
	}
	return s.cookies.RawValue(name)
}
