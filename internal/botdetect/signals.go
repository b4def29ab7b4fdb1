// Package botdetect scores automation and headless-environment signals
// into a bot classification. No single signal is decisive; each check
// adds a configured weight and a human-readable reason to the result.
package botdetect

import (
	"sync/atomic"
	"time"
)

// BrowserSignals exposes the browser-level globals the scorer reads, one
// method per queried global, so hosts and tests can supply deterministic
// fakes.
type BrowserSignals interface {
	// WebDriver reports navigator.webdriver.
	WebDriver() bool
	// DocumentAttribute returns an attribute of the document element, "" if absent.
	DocumentAttribute(name string) string
	// HasGlobal reports whether a window-scoped global with the given name is set.
	HasGlobal(name string) bool
	// UserAgent returns the navigator user-agent string.
	UserAgent() string
	// PluginCount returns the number of exposed browser plugins.
	PluginCount() int
	// Languages returns the accepted language list.
	Languages() []string
	// HasChromeRuntime reports whether the chrome runtime object exists.
	HasChromeRuntime() bool
	// HardwareConcurrency returns the logical CPU count, 0 if unreported.
	HardwareConcurrency() int
	// DeviceMemoryGB returns the reported device memory in GB, 0 if unreported.
	DeviceMemoryGB() float64
	// ScreenSize returns the screen dimensions in pixels.
	ScreenSize() (width, height int)
	// Timezone returns the resolved IANA timezone name.
	Timezone() (string, error)
	// PageLoadTime returns the navigation-to-load duration if available.
	PageLoadTime() (time.Duration, bool)
}

// BehaviorCounts is a snapshot of observed interaction events.
type BehaviorCounts struct {
	MouseMoves int64 `json:"mouseMoves"`
	Clicks     int64 `json:"clicks"`
	Scrolls    int64 `json:"scrolls"`
	Keystrokes int64 `json:"keystrokes"`
	StartTime  int64 `json:"startTime"`
}

// Total returns the sum of all interaction events.
func (c BehaviorCounts) Total() int64 {
	return c.MouseMoves + c.Clicks + c.Scrolls + c.Keystrokes
}

// Behavior accumulates interaction events fed by the host. Counters are
// atomic so host event callbacks never contend with detection.
type Behavior struct {
	mouseMoves atomic.Int64
	clicks     atomic.Int64
	scrolls    atomic.Int64
	keystrokes atomic.Int64
	start      time.Time
}

// NewBehavior starts observing now.
func NewBehavior() *Behavior {
	return NewBehaviorAt(time.Now())
}

// NewBehaviorAt starts observing from a fixed instant. Used by tests to
// simulate an elapsed observation window.
func NewBehaviorAt(start time.Time) *Behavior {
	return &Behavior{start: start}
}

// RecordMouseMove notes one mouse-move event.
func (b *Behavior) RecordMouseMove() { b.mouseMoves.Add(1) }

// RecordClick notes one click event.
func (b *Behavior) RecordClick() { b.clicks.Add(1) }

// RecordScroll notes one scroll event.
func (b *Behavior) RecordScroll() { b.scrolls.Add(1) }

// RecordKeystroke notes one keypress event.
func (b *Behavior) RecordKeystroke() { b.keystrokes.Add(1) }

// Elapsed returns the observation time so far.
func (b *Behavior) Elapsed() time.Duration {
	return time.Since(b.start)
}

// Counts returns a snapshot of the accumulated counters.
func (b *Behavior) Counts() BehaviorCounts {
	return BehaviorCounts{
		MouseMoves: b.mouseMoves.Load(),
		Clicks:     b.clicks.Load(),
		Scrolls:    b.scrolls.Load(),
		Keystrokes: b.keystrokes.Load(),
		StartTime:  b.start.UnixMilli(),
	}
}
