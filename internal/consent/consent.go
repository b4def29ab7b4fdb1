// Package consent implements GDPR/CCPA consent state: a stored consent
// record with independently grantable categories, TTL-based expiry and
// change notification. Contact functionality is never gated on consent;
// only analytics and marketing require an explicit grant.
package consent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"wibi/internal/storage"
)

// Category is one independently grantable consent category.
type Category string

// Consent categories.
const (
	CategoryNecessary  Category = "necessary"
	CategoryFunctional Category = "functional"
	CategoryAnalytics  Category = "analytics"
	CategoryMarketing  Category = "marketing"
)

// RecordVersion is stamped on every saved record so future policy
// changes can invalidate old grants.
const RecordVersion = "1.0"

// StorageKey is the store key holding the consent record.
const StorageKey = "wibi_consent"

// Categories holds the per-category grant flags.
type Categories struct {
	Necessary  bool `json:"necessary"`
	Functional bool `json:"functional"`
	Analytics  bool `json:"analytics"`
	Marketing  bool `json:"marketing"`
}

// Record is a persisted consent decision. Denial is modeled as a granted
// record with the optional categories false; there is no separate
// terminal "denied" state.
type Record struct {
	Granted    bool       `json:"granted"`
	Categories Categories `json:"categories"`
	Timestamp  int64      `json:"timestamp"`
	Version    string     `json:"version"`
}

// Choice is one of the consent banner presets.
type Choice int

// Consent presets offered by the prompt.
const (
	ChoiceAcceptAll Choice = iota
	ChoiceEssentialOnly
	ChoiceSettings
)

// CategoriesFor maps a preset choice to its category grant set. The
// settings preset enables analytics without marketing.
func CategoriesFor(choice Choice) Categories {
	switch choice {
	case ChoiceEssentialOnly:
		return Categories{Necessary: true, Functional: true}
	case ChoiceSettings:
		return Categories{Necessary: true, Functional: true, Analytics: true}
	default:
		return Categories{Necessary: true, Functional: true, Analytics: true, Marketing: true}
	}
}

// Prompter suspends until the visitor picks a consent preset. Hosts
// supply their own implementation; the agent binary uses the terminal.
type Prompter interface {
	Ask(ctx context.Context) (Choice, error)
}

// Gate evaluates whether a consent category allows an operation.
type Gate struct {
	store    *storage.Store
	logger   *slog.Logger
	required bool
	ttl      time.Duration
	prompter Prompter

	mu        sync.Mutex
	record    Record
	loaded    bool
	callbacks []func(Record)
}

// NewGate creates a consent gate backed by the given store. When
// required is false every category is always allowed.
func NewGate(store *storage.Store, logger *slog.Logger, required bool, ttl time.Duration, prompter Prompter) *Gate {
	return &Gate{
		store:    store,
		logger:   logger,
		required: required,
		ttl:      ttl,
		prompter: prompter,
	}
}

func defaultRecord() Record {
	return Record{
		Granted: false,
		Categories: Categories{
			Necessary: true, // basic functionality always works
		},
		Version: RecordVersion,
	}
}

// Current returns the stored consent record, or the ungranted default.
func (g *Gate) Current() Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loadLocked()
}

func (g *Gate) loadLocked() Record {
	if g.loaded {
		return g.record
	}
	var rec Record
	if g.store.Get(StorageKey, &rec) {
		g.record = rec
	} else {
		g.record = defaultRecord()
	}
	g.loaded = true
	return g.record
}

// Save persists a consent decision, stamping timestamp and version, and
// notifies registered callbacks. A panicking callback never prevents the
// remaining callbacks from running.
func (g *Gate) Save(rec Record) Record {
	g.mu.Lock()
	rec.Timestamp = time.Now().UnixMilli()
	rec.Version = RecordVersion
	rec.Categories.Necessary = true
	g.record = rec
	g.loaded = true
	g.store.Set(StorageKey, rec, storage.SetOptions{
		ExpiresAt: time.Now().Add(g.ttl),
	})
	callbacks := make([]func(Record), len(g.callbacks))
	copy(callbacks, g.callbacks)
	g.mu.Unlock()

	for _, cb := range callbacks {
		g.invoke(cb, rec)
	}
	return rec
}

func (g *Gate) invoke(cb func(Record), rec Record) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Consent callback panicked", slog.Any("panic", r))
		}
	}()
	cb(rec)
}

// Reset wipes the stored record, forcing a fresh prompt on the next request.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.store.Remove(StorageKey)
	g.record = defaultRecord()
	g.loaded = true
}

// HasValidConsent reports whether a granted, unexpired record exists.
func (g *Gate) HasValidConsent() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.validLocked(g.loadLocked())
}

func (g *Gate) validLocked(rec Record) bool {
	if !rec.Granted || rec.Timestamp == 0 {
		return false
	}
	age := time.Since(time.UnixMilli(rec.Timestamp))
	return age < g.ttl
}

// IsAllowed reports whether operations in the given category may proceed.
// Necessary and functional are always allowed: contact buttons work
// regardless of any consent decision.
func (g *Gate) IsAllowed(category Category) bool {
	if !g.required {
		return true
	}
	if category == CategoryNecessary || category == CategoryFunctional {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	rec := g.loadLocked()
	if !g.validLocked(rec) {
		return false
	}
	switch category {
	case CategoryAnalytics:
		return rec.Categories.Analytics
	case CategoryMarketing:
		return rec.Categories.Marketing
	default:
		return false
	}
}

// OnChange registers a callback invoked on every saved consent decision.
func (g *Gate) OnChange(cb func(Record)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callbacks = append(g.callbacks, cb)
}

// RequestConsent resolves immediately with the current record when it is
// still valid; otherwise it suspends on the prompter until the visitor
// chooses a preset, then persists and returns the decision. Without a
// prompter the ungranted default is returned so initialization can
// continue with tracking disabled.
func (g *Gate) RequestConsent(ctx context.Context) (Record, error) {
	g.mu.Lock()
	rec := g.loadLocked()
	valid := g.validLocked(rec)
	prompter := g.prompter
	g.mu.Unlock()

	if !g.required || valid {
		return rec, nil
	}
	if prompter == nil {
		g.logger.Debug("No consent prompter configured, continuing without consent")
		return rec, nil
	}

	choice, err := prompter.Ask(ctx)
	if err != nil {
		return rec, err
	}

	return g.Save(Record{
		Granted:    true,
		Categories: CategoriesFor(choice),
	}), nil
}
