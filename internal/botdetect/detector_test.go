package botdetect_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wibi/internal/botdetect"
	"wibi/internal/testsupport"
)

func newDetector(signals botdetect.BrowserSignals, behavior *botdetect.Behavior) *botdetect.Detector {
	return botdetect.New(signals, behavior, botdetect.DefaultPolicy(), testsupport.GetLogger())
}

func TestDetectHumanEnvironmentScoresZero(t *testing.T) {
	detector := newDetector(testsupport.NewHumanSignals(), botdetect.NewBehavior())

	result := detector.Detect()

	assert.False(t, result.IsBot)
	assert.Zero(t, result.Score)
	assert.Empty(t, result.Reasons)
	assert.Zero(t, result.Confidence)
}

func TestDetectWebDriver(t *testing.T) {
	signals := testsupport.NewHumanSignals()
	signals.IsWebDriver = true

	result := newDetector(signals, botdetect.NewBehavior()).Detect()

	assert.True(t, result.IsBot)
	assert.Equal(t, 5, result.Score)
	assert.Contains(t, result.Reasons, "navigator.webdriver")
}

func TestDetectAutomationGlobals(t *testing.T) {
	signals := testsupport.NewHumanSignals()
	signals.Globals = map[string]bool{"_phantom": true, "_selenium": true}

	result := newDetector(signals, botdetect.NewBehavior()).Detect()

	assert.True(t, result.IsBot)
	assert.Equal(t, 6, result.Score)
	assert.Contains(t, result.Reasons, "automation__phantom")
	assert.Contains(t, result.Reasons, "automation__selenium")
}

func TestDetectHeadlessChrome(t *testing.T) {
	signals := testsupport.NewHumanSignals()
	signals.UA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36"

	result := newDetector(signals, botdetect.NewBehavior()).Detect()

	assert.True(t, result.IsBot)
	assert.Contains(t, result.Reasons, "headless_chrome")
	// "headless" in the lowercased UA also trips the signature database.
	assert.Contains(t, result.Reasons, "bot_ua_generic_crawler")
}

func TestDetectCrawlerUserAgent(t *testing.T) {
	signals := testsupport.NewHumanSignals()
	signals.UA = "Googlebot/2.1 (+http://www.google.com/bot.html)"

	result := newDetector(signals, botdetect.NewBehavior()).Detect()

	assert.Contains(t, result.Reasons, "bot_ua_generic_crawler")
	assert.GreaterOrEqual(t, result.Score, 3)
}

func TestDetectSubCriticalSignalsAccumulate(t *testing.T) {
	signals := testsupport.NewHumanSignals()
	signals.Plugins = 0           // +2
	signals.Langs = nil           // +2
	signals.ChromeRuntime = false // +1

	result := newDetector(signals, botdetect.NewBehavior()).Detect()

	assert.Equal(t, 5, result.Score)
	assert.True(t, result.IsBot)
	assert.Equal(t, []string{"no_plugins", "no_languages", "no_chrome_runtime"}, result.Reasons)
}

func TestDetectBrowserFeatureSignals(t *testing.T) {
	signals := testsupport.NewHumanSignals()
	signals.Concurrency = 1
	signals.MemoryGB = 0.5
	signals.Width, signals.Height = 0, 0
	signals.TZ = "UTC"

	result := newDetector(signals, botdetect.NewBehavior()).Detect()

	assert.Equal(t, 5, result.Score)
	assert.Contains(t, result.Reasons, "low_hardware_concurrency")
	assert.Contains(t, result.Reasons, "low_device_memory")
	assert.Contains(t, result.Reasons, "invalid_screen")
	assert.Contains(t, result.Reasons, "suspicious_timezone")
}

func TestDetectUnreportedDeviceMemoryIsNotSuspicious(t *testing.T) {
	signals := testsupport.NewHumanSignals()
	signals.MemoryGB = 0

	result := newDetector(signals, botdetect.NewBehavior()).Detect()
	assert.NotContains(t, result.Reasons, "low_device_memory")
}

func TestDetectFastPageLoad(t *testing.T) {
	signals := testsupport.NewHumanSignals()
	signals.LoadTime = 20 * time.Millisecond

	result := newDetector(signals, botdetect.NewBehavior()).Detect()

	assert.Contains(t, result.Reasons, "suspiciously_fast_load")
	assert.False(t, result.IsBot)
}

func TestDetectUnknownLoadTimeIgnored(t *testing.T) {
	signals := testsupport.NewHumanSignals()
	signals.LoadTime = 0
	signals.LoadTimeKnown = false

	result := newDetector(signals, botdetect.NewBehavior()).Detect()
	assert.NotContains(t, result.Reasons, "suspiciously_fast_load")
}

func TestDetectBehaviorSkippedBeforeWindow(t *testing.T) {
	// Fresh behavior, no interaction yet: the observation window has not
	// elapsed so silence is not held against the visitor.
	result := newDetector(testsupport.NewHumanSignals(), botdetect.NewBehavior()).Detect()
	assert.NotContains(t, result.Reasons, "no_human_interaction")
}

func TestDetectNoInteractionAfterWindow(t *testing.T) {
	behavior := botdetect.NewBehaviorAt(time.Now().Add(-time.Minute))

	result := newDetector(testsupport.NewHumanSignals(), behavior).Detect()

	assert.Contains(t, result.Reasons, "no_human_interaction")
	assert.Equal(t, 2, result.Score)
	assert.False(t, result.IsBot)
}

func TestDetectHumanInteractionClearsBehaviorSignal(t *testing.T) {
	behavior := botdetect.NewBehaviorAt(time.Now().Add(-time.Minute))
	behavior.RecordClick()
	behavior.RecordScroll()

	result := newDetector(testsupport.NewHumanSignals(), behavior).Detect()
	assert.NotContains(t, result.Reasons, "no_human_interaction")
}

func TestDetectRepetitiveMouse(t *testing.T) {
	behavior := botdetect.NewBehaviorAt(time.Now().Add(-time.Minute))
	for i := 0; i < 150; i++ {
		behavior.RecordMouseMove()
	}

	result := newDetector(testsupport.NewHumanSignals(), behavior).Detect()

	assert.Contains(t, result.Reasons, "repetitive_mouse_behavior")
	assert.NotContains(t, result.Reasons, "no_human_interaction")
}

func TestDetectConfidenceCapped(t *testing.T) {
	signals := testsupport.NewHumanSignals()
	signals.IsWebDriver = true
	signals.DocumentAttrs = map[string]string{"webdriver": "true"}
	signals.Globals = map[string]bool{"webdriver": true}

	result := newDetector(signals, botdetect.NewBehavior()).Detect()

	require.GreaterOrEqual(t, result.Score, 10)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestDetectPanickingSignalIsolated(t *testing.T) {
	signals := &panickySignals{FakeSignals: testsupport.NewHumanSignals()}

	result := newDetector(signals, botdetect.NewBehavior()).Detect()

	// The user-agent check blew up but the rest of the checks still ran.
	assert.Contains(t, result.Reasons, "user_agent_error")
	assert.False(t, result.IsBot)
}

// panickySignals blows up on the user-agent read used by the signature
// check, after the headless check has already consumed it once.
type panickySignals struct {
	*testsupport.FakeSignals
	calls int
}

func (p *panickySignals) UserAgent() string {
	p.calls++
	if p.calls > 1 {
		panic("signal unavailable")
	}
	return p.FakeSignals.UserAgent()
}

func TestBehaviorCounts(t *testing.T) {
	behavior := botdetect.NewBehavior()
	behavior.RecordMouseMove()
	behavior.RecordMouseMove()
	behavior.RecordClick()
	behavior.RecordKeystroke()

	counts := behavior.Counts()
	assert.Equal(t, int64(2), counts.MouseMoves)
	assert.Equal(t, int64(1), counts.Clicks)
	assert.Equal(t, int64(0), counts.Scrolls)
	assert.Equal(t, int64(1), counts.Keystrokes)
	assert.Equal(t, int64(4), counts.Total())
}
