// Package sessions tracks the visitor's activity session: a bounded
// window of page views and actions that expires after inactivity.
package sessions

import (
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"wibi/internal/attribution"
	"wibi/internal/storage"
)

// StorageKey holds the active session record. Sessions live in the
// session tier only so they never survive a restart.
const StorageKey = "wibi_session"

// Action is a single tracked event within a session.
type Action struct {
	Type      string         `json:"type"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp int64          `json:"timestamp"`
	URL       string         `json:"url,omitempty"`
}

// Session is the activity record persisted between page views.
// Timestamps are epoch milliseconds.
type Session struct {
	ID           string             `json:"id"`
	StartTime    int64              `json:"startTime"`
	LastActivity int64              `json:"lastActivity"`
	PageViews    int                `json:"pageViews"`
	Actions      []Action           `json:"actions"`
	Source       attribution.Result `json:"source"`
	EndTime      int64              `json:"endTime,omitempty"`
	Duration     int64              `json:"duration,omitempty"`
}

// Tracker owns the session lifecycle: renewal on page view, action
// recording, idle detection and explicit close.
type Tracker struct {
	store       *storage.Store
	logger      *slog.Logger
	timeout     time.Duration
	idleTimeout time.Duration

	mu        sync.Mutex
	current   *Session
	idleTimer *time.Timer
	onIdle    func()
}

func NewTracker(store *storage.Store, logger *slog.Logger, timeout, idleTimeout time.Duration) *Tracker {
	return &Tracker{
		store:       store,
		logger:      logger,
		timeout:     timeout,
		idleTimeout: idleTimeout,
	}
}

// Start resumes the stored session when its last activity is within the
// timeout, otherwise begins a fresh one. Either way the page view is
// counted and the session re-persisted.
func (t *Tracker) Start(source attribution.Result) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UnixMilli()

	var stored Session
	if t.store.Get(StorageKey, &stored) && stored.ID != "" && stored.EndTime == 0 &&
		now-stored.LastActivity < t.timeout.Milliseconds() {
		t.current = &stored
		t.logger.Debug("resumed session", slog.String("session_id", stored.ID))
	} else {
		t.current = &Session{
			ID:        newSessionID(now),
			StartTime: now,
			Source:    source,
			Actions:   []Action{},
		}
		t.logger.Debug("started session", slog.String("session_id", t.current.ID))
	}

	t.current.LastActivity = now
	t.current.PageViews++
	t.persistLocked()
	return t.snapshotLocked()
}

// Current returns a copy of the active session, or nil when none is
// running.
func (t *Tracker) Current() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil
	}
	return t.snapshotLocked()
}

// TrackAction appends an event to the active session and bumps its
// activity clock. Without an active session this is a no-op.
func (t *Tracker) TrackAction(actionType string, detail map[string]any, pageURL string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return
	}

	now := time.Now().UnixMilli()
	t.current.Actions = append(t.current.Actions, Action{
		Type:      actionType,
		Detail:    detail,
		Timestamp: now,
		URL:       pageURL,
	})
	t.current.LastActivity = now
	t.persistLocked()
}

// Touch bumps the activity clock without recording an action.
func (t *Tracker) Touch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return
	}
	t.current.LastActivity = time.Now().UnixMilli()
	t.persistLocked()
}

// End closes the active session, records its duration and a final
// session_end action, and persists the closed record.
func (t *Tracker) End() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return nil
	}

	now := time.Now().UnixMilli()
	t.current.EndTime = now
	t.current.Duration = now - t.current.StartTime
	t.current.Actions = append(t.current.Actions, Action{
		Type:      "session_end",
		Timestamp: now,
	})
	t.persistLocked()

	ended := t.snapshotLocked()
	t.current = nil
	t.stopIdleLocked()
	t.logger.Debug("ended session",
		slog.String("session_id", ended.ID),
		slog.Int64("duration_ms", ended.Duration))
	return ended
}

// OnIdle registers the callback fired when the idle timer elapses.
func (t *Tracker) OnIdle(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onIdle = fn
}

// ResetIdleTimer restarts the inactivity countdown. Call it on any
// visitor interaction.
func (t *Tracker) ResetIdleTimer() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopIdleLocked()
	if t.onIdle == nil {
		return
	}
	fn := t.onIdle
	t.idleTimer = time.AfterFunc(t.idleTimeout, fn)
}

// StopIdleTimer cancels the countdown, e.g. when the page is hidden.
func (t *Tracker) StopIdleTimer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopIdleLocked()
}

func (t *Tracker) stopIdleLocked() {
	if t.idleTimer != nil {
		t.idleTimer.Stop()
		t.idleTimer = nil
	}
}

func (t *Tracker) persistLocked() {
	t.store.Set(StorageKey, t.current, storage.SetOptions{SessionOnly: true})
}

func (t *Tracker) snapshotLocked() *Session {
	copied := *t.current
	copied.Actions = append([]Action(nil), t.current.Actions...)
	return &copied
}

// newSessionID is a millisecond timestamp in base 36 plus a short random
// suffix, unique enough for correlating events within one install.
func newSessionID(nowMillis int64) string {
	suffix := strconv.FormatInt(rand.Int63n(1<<40), 36)
	return strconv.FormatInt(nowMillis, 36) + suffix
}
