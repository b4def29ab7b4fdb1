package widget_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wibi/internal/backend"
	"wibi/internal/botdetect"
	"wibi/internal/consent"
	"wibi/internal/delivery"
	"wibi/internal/sessions"
	"wibi/internal/testsupport"
	"wibi/internal/visitors"
	"wibi/internal/widget"
)

// stubBackend records every tracking hit by path.
type stubBackend struct {
	server *httptest.Server

	mu     sync.Mutex
	hits   map[string]int
	failed bool
}

func newStubBackend(t *testing.T) *stubBackend {
	t.Helper()
	sb := &stubBackend{hits: map[string]int{}}
	sb.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sb.mu.Lock()
		sb.hits[r.URL.Path]++
		failed := sb.failed
		sb.mu.Unlock()

		switch {
		case failed:
			w.WriteHeader(http.StatusInternalServerError)
		case r.URL.Path == backend.OptionsPath:
			json.NewEncoder(w).Encode(backend.WidgetConfig{
				WhatsAppShow: true,
				WNumber:      "27115550100",
				EmailShow:    true,
				Email:        "hello@example.com",
			})
		case r.URL.Path == backend.GTMIDPath:
			json.NewEncoder(w).Encode(map[string]string{"gtm_container_id": "GTM-TEST99"})
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(sb.server.Close)
	return sb
}

func (sb *stubBackend) count(path string) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.hits[path]
}

// recordingDataLayer captures pushed events.
type recordingDataLayer struct {
	mu     sync.Mutex
	events []map[string]any
}

func (r *recordingDataLayer) Push(event map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingDataLayer) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, e := range r.events {
		names = append(names, e["event"].(string))
	}
	return names
}

type fixture struct {
	controller *widget.Controller
	backend    *stubBackend
	dataLayer  *recordingDataLayer
	gate       *consent.Gate
	tracker    *sessions.Tracker
	queue      *delivery.Queue
}

func newFixture(t *testing.T, choice consent.Choice) *fixture {
	return newFixtureWithPrompter(t, consent.StaticPrompter{Choice: choice})
}

func newFixtureWithPrompter(t *testing.T, prompter consent.Prompter) *fixture {
	t.Helper()

	sb := newStubBackend(t)
	store := testsupport.NewTestStore(t)
	logger := testsupport.GetLogger()

	gate := consent.NewGate(store, logger, true, 365*24*time.Hour, prompter)
	visitorManager := visitors.NewManager(store, logger, 365*24*time.Hour)
	tracker := sessions.NewTracker(store, logger, 30*time.Minute, time.Minute)
	t.Cleanup(tracker.StopIdleTimer)
	queue := delivery.NewQueue(store, logger, delivery.Options{
		MaxAttempts:   1,
		BaseDelay:     time.Millisecond,
		OfflineMaxAge: 24 * time.Hour,
	})
	client := backend.NewClient(sb.server.URL, "site-1", logger)
	signals := testsupport.NewHumanSignals()
	behavior := botdetect.NewBehavior()
	detector := botdetect.New(signals, behavior, botdetect.DefaultPolicy(), logger)
	dataLayer := &recordingDataLayer{}

	controller := widget.NewController(widget.Deps{
		Logger:    logger,
		Gate:      gate,
		Visitors:  visitorManager,
		Tracker:   tracker,
		Queue:     queue,
		Client:    client,
		Signals:   signals,
		Behavior:  behavior,
		Detector:  detector,
		DataLayer: dataLayer,
	})

	return &fixture{
		controller: controller,
		backend:    sb,
		dataLayer:  dataLayer,
		gate:       gate,
		tracker:    tracker,
		queue:      queue,
	}
}

func pageContext() widget.PageContext {
	return widget.PageContext{URL: "https://example.com/pricing", Referrer: "https://www.google.com/"}
}

func TestInitializeHappyPath(t *testing.T) {
	f := newFixture(t, consent.ChoiceAcceptAll)

	require.NoError(t, f.controller.Initialize(context.Background(), pageContext()))

	model := f.controller.RenderModel()
	require.Len(t, model.Channels, 2)
	assert.Equal(t, "whatsapp", model.Channels[0].Action)
	assert.Equal(t, "GTM-TEST99", f.controller.GTMContainerID())

	require.Eventually(t, func() bool {
		return f.backend.count(backend.PageViewPath) == 1 &&
			f.backend.count(backend.SourceAttributionPath) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Contains(t, f.dataLayer.names(), "wibi_widget_initialized")
	require.NotNil(t, f.tracker.Current())
}

func TestInitializeIdempotent(t *testing.T) {
	f := newFixture(t, consent.ChoiceAcceptAll)

	require.NoError(t, f.controller.Initialize(context.Background(), pageContext()))
	require.NoError(t, f.controller.Initialize(context.Background(), pageContext()))

	assert.Equal(t, 1, f.backend.count(backend.OptionsPath))
}

func TestInitializeWithheldConsentSkipsTracking(t *testing.T) {
	f := newFixture(t, consent.ChoiceEssentialOnly)

	require.NoError(t, f.controller.Initialize(context.Background(), pageContext()))

	// The widget still renders and the data layer still fires.
	assert.NotEmpty(t, f.controller.RenderModel().Channels)
	assert.Contains(t, f.dataLayer.names(), "wibi_widget_initialized")

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.backend.count(backend.PageViewPath))
	assert.Zero(t, f.backend.count(backend.SourceAttributionPath))
}

func TestInitializeConfigFetchFailureIsFatal(t *testing.T) {
	f := newFixture(t, consent.ChoiceAcceptAll)
	f.backend.mu.Lock()
	f.backend.failed = true
	f.backend.mu.Unlock()

	err := f.controller.Initialize(context.Background(), pageContext())
	require.Error(t, err)

	var fetchErr *backend.ConfigFetchError
	assert.True(t, errors.As(err, &fetchErr))
	// The failure itself was reported before giving up.
	assert.Equal(t, 1, f.backend.count(backend.ErrorPath))
}

// prompterFunc adapts a function to the consent.Prompter interface.
type prompterFunc func(context.Context) (consent.Choice, error)

func (f prompterFunc) Ask(ctx context.Context) (consent.Choice, error) { return f(ctx) }

func TestInitializeStartsSessionBeforeConsentPrompt(t *testing.T) {
	var f *fixture
	sawSession := false
	f = newFixtureWithPrompter(t, prompterFunc(func(context.Context) (consent.Choice, error) {
		sawSession = f.tracker.Current() != nil
		return consent.ChoiceAcceptAll, nil
	}))

	require.NoError(t, f.controller.Initialize(context.Background(), pageContext()))

	// The session must already be running while the visitor decides, so a
	// slow decision cannot expire a resumable session.
	assert.True(t, sawSession)
}

func TestInitializeConfigFetchFailureStillCountsPageView(t *testing.T) {
	f := newFixture(t, consent.ChoiceAcceptAll)
	f.backend.mu.Lock()
	f.backend.failed = true
	f.backend.mu.Unlock()

	require.Error(t, f.controller.Initialize(context.Background(), pageContext()))

	session := f.tracker.Current()
	require.NotNil(t, session)
	assert.Equal(t, 1, session.PageViews)
}

func TestHandleInteraction(t *testing.T) {
	f := newFixture(t, consent.ChoiceAcceptAll)
	require.NoError(t, f.controller.Initialize(context.Background(), pageContext()))

	href, err := f.controller.HandleInteraction("email")
	require.NoError(t, err)
	assert.Contains(t, href, "mailto:hello@example.com")

	require.Eventually(t, func() bool {
		return f.backend.count(backend.InteractionPath) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, f.dataLayer.names(), "wibi_widget_interaction")

	session := f.tracker.Current()
	require.NotNil(t, session)
	require.NotEmpty(t, session.Actions)
	assert.Equal(t, "widget_interaction", session.Actions[0].Type)
}

func TestHandleInteractionUnknownAction(t *testing.T) {
	f := newFixture(t, consent.ChoiceAcceptAll)
	require.NoError(t, f.controller.Initialize(context.Background(), pageContext()))

	_, err := f.controller.HandleInteraction("fax")
	assert.Error(t, err)
}

func TestHandleInteractionWithoutConsentStillReturnsHref(t *testing.T) {
	f := newFixture(t, consent.ChoiceEssentialOnly)
	require.NoError(t, f.controller.Initialize(context.Background(), pageContext()))

	href, err := f.controller.HandleInteraction("whatsapp")
	require.NoError(t, err)
	assert.Contains(t, href, "https://api.whatsapp.com/send")

	// Data layer fires regardless; backend tracking does not.
	assert.Contains(t, f.dataLayer.names(), "wibi_widget_interaction")
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.backend.count(backend.InteractionPath))
}

func TestHandleFormSubmission(t *testing.T) {
	f := newFixture(t, consent.ChoiceAcceptAll)
	require.NoError(t, f.controller.Initialize(context.Background(), pageContext()))

	f.controller.HandleFormSubmission("quote-form", "visitor@example.com", "011 555 0100")

	require.Eventually(t, func() bool {
		return f.backend.count(backend.InteractionPath) == 1
	}, time.Second, 5*time.Millisecond)

	session := f.tracker.Current()
	require.NotNil(t, session)
	var types []string
	for _, action := range session.Actions {
		types = append(types, action.Type)
	}
	assert.Contains(t, types, "form_submit")
}

func TestShutdownEndsSessionAndFlushes(t *testing.T) {
	f := newFixture(t, consent.ChoiceAcceptAll)
	require.NoError(t, f.controller.Initialize(context.Background(), pageContext()))

	f.controller.Shutdown()

	assert.Nil(t, f.tracker.Current())
	// The session_end report is best effort on shutdown: delivered when
	// the drain loop won the race, parked durably otherwise.
	require.Eventually(t, func() bool {
		return f.backend.count(backend.InteractionPath) >= 1 || f.queue.PendingOffline() >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestSyncConsent(t *testing.T) {
	f := newFixture(t, consent.ChoiceAcceptAll)
	require.NoError(t, f.controller.Initialize(context.Background(), pageContext()))

	f.controller.SyncConsent()

	require.Eventually(t, func() bool {
		return f.backend.count(backend.ConsentPath) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRecordActivityFeedsBehavior(t *testing.T) {
	f := newFixture(t, consent.ChoiceAcceptAll)
	require.NoError(t, f.controller.Initialize(context.Background(), pageContext()))

	f.controller.RecordActivity(widget.ActivityClick)
	f.controller.RecordActivity(widget.ActivityScroll)
	f.controller.RecordActivity(widget.ActivityKeystroke)

	session := f.tracker.Current()
	require.NotNil(t, session)
	assert.NotZero(t, session.LastActivity)
}

func TestHandleNetworkChangeReplaysQueue(t *testing.T) {
	f := newFixture(t, consent.ChoiceAcceptAll)

	f.controller.HandleNetworkChange(false)
	require.NoError(t, f.controller.Initialize(context.Background(), pageContext()))

	// Page view was parked while offline.
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.backend.count(backend.PageViewPath))

	f.controller.HandleNetworkChange(true)
	require.Eventually(t, func() bool {
		return f.backend.count(backend.PageViewPath) == 1
	}, time.Second, 5*time.Millisecond)
}
