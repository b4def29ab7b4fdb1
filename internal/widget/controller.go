// Package widget orchestrates the engine: it wires identity, consent,
// bot detection, attribution, sessions and delivery into the visit
// lifecycle, and describes the contact widget as a render model for the
// host to draw.
package widget

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"wibi/internal/attribution"
	"wibi/internal/backend"
	"wibi/internal/botdetect"
	"wibi/internal/consent"
	"wibi/internal/delivery"
	"wibi/internal/sessions"
	"wibi/internal/visitors"
)

// PageContext describes the page the engine is tracking.
type PageContext struct {
	URL      string
	Referrer string
}

// Hostname extracts the page hostname, empty when the URL is malformed.
func (p PageContext) Hostname() string {
	parsed, err := url.Parse(p.URL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// Controller runs one widget instance for one page.
type Controller struct {
	logger   *slog.Logger
	gate     *consent.Gate
	visitors *visitors.Manager
	tracker  *sessions.Tracker
	queue    *delivery.Queue
	client   *backend.Client
	signals  botdetect.BrowserSignals
	behavior *botdetect.Behavior
	detector *botdetect.Detector
	sink     DataLayer

	mu          sync.Mutex
	page        PageContext
	source      attribution.Result
	bot         *botdetect.Result
	config      *backend.WidgetConfig
	model       RenderModel
	gtmID       string
	initialized bool
}

// Deps carries the collaborating components a Controller needs.
type Deps struct {
	Logger    *slog.Logger
	Gate      *consent.Gate
	Visitors  *visitors.Manager
	Tracker   *sessions.Tracker
	Queue     *delivery.Queue
	Client    *backend.Client
	Signals   botdetect.BrowserSignals
	Behavior  *botdetect.Behavior
	Detector  *botdetect.Detector
	DataLayer DataLayer
}

func NewController(deps Deps) *Controller {
	sink := deps.DataLayer
	if sink == nil {
		sink = &LogDataLayer{Logger: deps.Logger}
	}
	return &Controller{
		logger:   deps.Logger,
		gate:     deps.Gate,
		visitors: deps.Visitors,
		tracker:  deps.Tracker,
		queue:    deps.Queue,
		client:   deps.Client,
		signals:  deps.Signals,
		behavior: deps.Behavior,
		detector: deps.Detector,
		sink:     sink,
	}
}

// Initialize runs the visit lifecycle: resolve identity, classify the
// traffic source, start the session, evaluate consent, score the
// environment and fetch the widget configuration. A failed
// configuration fetch is fatal; everything else degrades.
func (c *Controller) Initialize(ctx context.Context, page PageContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	c.page = page

	returning := c.visitors.IsReturning()
	token := c.visitors.Token()
	if returning {
		c.visitors.MarkUserType("returning")
	}

	query := url.Values{}
	if parsed, err := url.Parse(page.URL); err == nil {
		query = parsed.Query()
	}
	c.source = attribution.Detect(query, page.Referrer, page.Hostname())

	// The session starts before the consent prompt and the config fetch:
	// a slow consent decision must not expire a resumable session, and
	// the page view counts even when the fetch fails.
	c.tracker.OnIdle(func() { c.endIdleSession() })
	session := c.tracker.Start(c.source)
	c.tracker.ResetIdleTimer()

	record, err := c.gate.RequestConsent(ctx)
	if err != nil {
		c.logger.Warn("consent prompt failed, continuing with stored state", slog.Any("error", err))
		record = c.gate.Current()
	}

	botResult := c.detector.Detect()
	c.bot = &botResult

	snapshot := c.visitors.Snapshot(c.signals, c.source, c.bot)

	width, height := c.signals.ScreenSize()
	clientData := backend.ClientData{
		ScreenResolution: fmt.Sprintf("%dx%d", width, height),
		BotDetection:     c.bot,
	}

	config, err := c.client.FetchWidgetConfig(ctx, page.URL, token, c.source, clientData)
	if err != nil {
		c.client.ReportError(ctx, err.Error(), "", page.URL)
		return err
	}
	c.config = config
	c.model = BuildRenderModel(config, time.Now())

	if gtmID, err := c.client.FetchGTMContainerID(ctx, page.Hostname()); err != nil {
		c.logger.Debug("gtm container lookup failed", slog.Any("error", err))
	} else {
		c.gtmID = gtmID
	}

	if c.gate.IsAllowed(consent.CategoryAnalytics) {
		c.queue.Enqueue(c.client.PageViewRequest(page.URL, page.Referrer, snapshot, session))
		c.queue.Enqueue(c.client.SourceAttributionRequest(token, page.URL, c.source))
	} else {
		c.logger.Debug("analytics consent withheld, skipping page view")
	}

	pushEvent(c.sink, "wibi_widget_initialized", map[string]any{
		"wibi_visitor_token": token,
		"wibi_session_id":    session.ID,
		"wibi_source":        c.source.Source,
		"wibi_consent":       record.Granted,
		"wibi_is_bot":        botResult.IsBot,
	})

	c.initialized = true
	c.logger.Info("widget initialized",
		slog.String("session_id", session.ID),
		slog.String("source", c.source.Source),
		slog.Bool("returning", returning))
	return nil
}

// RenderModel returns the widget contents for the host to draw.
func (c *Controller) RenderModel() RenderModel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// GTMContainerID returns the validated container ID, empty when none is
// configured.
func (c *Controller) GTMContainerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gtmID
}

// HandleInteraction processes a click on a widget channel. The contact
// URL always comes back and the data-layer event always fires; only the
// backend tracking obeys the analytics consent flag.
func (c *Controller) HandleInteraction(action string) (string, error) {
	c.mu.Lock()
	model := c.model
	page := c.page
	c.mu.Unlock()

	channel, ok := model.ChannelByAction(action)
	if !ok {
		return "", fmt.Errorf("unknown widget action %q", action)
	}

	c.tracker.TrackAction("widget_interaction", map[string]any{"action": action}, page.URL)
	c.tracker.ResetIdleTimer()

	pushEvent(c.sink, "wibi_widget_interaction", map[string]any{
		"wibi_action": action,
	})

	if c.gate.IsAllowed(consent.CategoryAnalytics) {
		c.queue.Enqueue(c.client.InteractionRequest(action, page.URL, c.visitors.Token(), c.tracker.Current(), nil))
	}

	return channel.Href, nil
}

// HandleFormSubmission captures contact identifiers from a host form and
// records a form_submit action.
func (c *Controller) HandleFormSubmission(formID, email, phone string) {
	c.mu.Lock()
	page := c.page
	c.mu.Unlock()

	c.visitors.RecordIdentity(email, FormatPhone(phone, "27"))
	c.tracker.TrackAction("form_submit", map[string]any{"form_id": formID}, page.URL)

	if c.gate.IsAllowed(consent.CategoryAnalytics) {
		c.queue.Enqueue(c.client.InteractionRequest("form_submit", page.URL, c.visitors.Token(),
			c.tracker.Current(), map[string]any{"form_id": formID}))
	}
}

// ActivityKind labels a host-reported visitor input event.
type ActivityKind int

const (
	ActivityMouseMove ActivityKind = iota
	ActivityClick
	ActivityScroll
	ActivityKeystroke
)

// RecordActivity feeds a visitor input event into the behavior counters
// used by bot scoring and restarts the idle countdown.
func (c *Controller) RecordActivity(kind ActivityKind) {
	switch kind {
	case ActivityMouseMove:
		c.behavior.RecordMouseMove()
	case ActivityClick:
		c.behavior.RecordClick()
	case ActivityScroll:
		c.behavior.RecordScroll()
	case ActivityKeystroke:
		c.behavior.RecordKeystroke()
	}
	c.tracker.Touch()
	c.tracker.ResetIdleTimer()
}

// endIdleSession closes the session after the inactivity window elapses.
// A later page interaction starts a fresh one.
func (c *Controller) endIdleSession() {
	ended := c.tracker.End()
	if ended == nil {
		return
	}
	c.mu.Lock()
	page := c.page
	c.mu.Unlock()

	c.logger.Info("session ended after inactivity", slog.String("session_id", ended.ID))
	if c.gate.IsAllowed(consent.CategoryAnalytics) {
		c.queue.Enqueue(c.client.InteractionRequest("session_end", page.URL, c.visitors.Token(), ended,
			map[string]any{"duration_ms": ended.Duration, "page_views": ended.PageViews, "reason": "inactivity"}))
	}
}

// HandleVisibilityChange pauses the idle countdown while the page is
// hidden and restarts it when it becomes visible again.
func (c *Controller) HandleVisibilityChange(visible bool) {
	if visible {
		c.tracker.Touch()
		c.tracker.ResetIdleTimer()
		return
	}
	c.tracker.StopIdleTimer()
}

// HandleNetworkChange forwards connectivity transitions to the delivery
// queue.
func (c *Controller) HandleNetworkChange(online bool) {
	c.queue.SetOnline(online)
}

// SyncConsent reports the current consent record to the backend. Consent
// syncing is strictly necessary processing, so it is never gated.
func (c *Controller) SyncConsent() {
	record := c.gate.Current()
	c.queue.Enqueue(c.client.ConsentRequest(c.visitors.Token(), record))
}

// Shutdown closes the session and parks undelivered requests for the
// next start.
func (c *Controller) Shutdown() {
	c.tracker.StopIdleTimer()
	if ended := c.tracker.End(); ended != nil && c.gate.IsAllowed(consent.CategoryAnalytics) {
		c.mu.Lock()
		page := c.page
		c.mu.Unlock()
		c.queue.Enqueue(c.client.InteractionRequest("session_end", page.URL, c.visitors.Token(), ended,
			map[string]any{"duration_ms": ended.Duration, "page_views": ended.PageViews}))
	}
	c.queue.Flush()
}
