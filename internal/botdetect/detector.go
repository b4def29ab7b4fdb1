package botdetect

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wibi/internal/pkg/uaparse"
)

const (
	// fastLoadCutoff marks a full page load too quick for a real network round trip.
	fastLoadCutoff = 100 * time.Millisecond
	// highMouseMoveCount flags repetitive synthetic pointer movement.
	highMouseMoveCount = 100
	// confidenceDenominator normalizes the raw score into [0,1].
	confidenceDenominator = 10.0
)

// Result is an immutable bot classification for one page load.
type Result struct {
	IsBot      bool           `json:"isBot"`
	Confidence float64        `json:"confidence"`
	Score      int            `json:"score"`
	Reasons    []string       `json:"reasons"`
	Behavior   BehaviorCounts `json:"behaviorData"`
}

// Detector accumulates weighted signals into a bot score.
type Detector struct {
	signals  BrowserSignals
	behavior *Behavior
	policy   Policy
	logger   *slog.Logger
}

// New creates a detector over the given signal provider and behavior feed.
func New(signals BrowserSignals, behavior *Behavior, policy Policy, logger *slog.Logger) *Detector {
	return &Detector{
		signals:  signals,
		behavior: behavior,
		policy:   policy,
		logger:   logger,
	}
}

// scorer collects score and reasons across checks for one detection run.
type scorer struct {
	score   int
	reasons []string
}

func (s *scorer) add(weight int, reason string) {
	s.score += weight
	s.reasons = append(s.reasons, reason)
}

// runCheck isolates one heuristic: a panicking browser signal scores
// zero and records an error reason instead of aborting the remaining
// checks.
func (d *Detector) runCheck(s *scorer, name string, check func(*scorer)) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("Bot detection check failed",
				slog.String("check", name), slog.Any("panic", r))
			s.reasons = append(s.reasons, name+"_error")
		}
	}()
	check(s)
}

// Detect evaluates every signal in fixed order and classifies the
// environment. Behavioral checks only contribute once the observation
// window has elapsed, so an immediate call right after startup scores
// static signals only.
func (d *Detector) Detect() Result {
	s := &scorer{}
	w := d.policy.Weights

	d.runCheck(s, "webdriver", func(s *scorer) {
		if d.signals.WebDriver() {
			s.add(w.WebDriver, "navigator.webdriver")
		}
		if d.signals.DocumentAttribute("webdriver") != "" {
			s.add(w.WebDriverAttribute, "webdriver_attribute")
		}
		for _, name := range automationGlobals {
			if d.signals.HasGlobal(name) {
				s.add(w.AutomationGlobal, "automation_"+name)
			}
		}
	})

	d.runCheck(s, "headless", func(s *scorer) {
		if strings.Contains(d.signals.UserAgent(), "HeadlessChrome") {
			s.add(w.HeadlessUA, "headless_chrome")
		}
		if d.signals.PluginCount() == 0 {
			s.add(w.NoPlugins, "no_plugins")
		}
		if len(d.signals.Languages()) == 0 {
			s.add(w.NoLanguages, "no_languages")
		}
		if !d.signals.HasChromeRuntime() {
			s.add(w.NoChromeRuntime, "no_chrome_runtime")
		}
	})

	d.runCheck(s, "user_agent", func(s *scorer) {
		for _, name := range uaparse.MatchBotSignatures(d.signals.UserAgent()) {
			s.add(w.BotUASignature, "bot_ua_"+name)
		}
	})

	d.runCheck(s, "browser_features", func(s *scorer) {
		if d.signals.HardwareConcurrency() < 2 {
			s.add(w.LowConcurrency, "low_hardware_concurrency")
		}
		if mem := d.signals.DeviceMemoryGB(); mem > 0 && mem < 2 {
			s.add(w.LowDeviceMemory, "low_device_memory")
		}
		if width, height := d.signals.ScreenSize(); width == 0 || height == 0 {
			s.add(w.InvalidScreen, "invalid_screen")
		}
		tz, err := d.signals.Timezone()
		if err != nil {
			s.add(w.SuspiciousTimezone, "timezone_error")
		} else if tz == "" || tz == "UTC" {
			s.add(w.SuspiciousTimezone, "suspicious_timezone")
		}
	})

	d.runCheck(s, "network_timing", func(s *scorer) {
		if loadTime, ok := d.signals.PageLoadTime(); ok && loadTime < fastLoadCutoff {
			s.add(w.FastLoad, "suspiciously_fast_load")
		}
	})

	d.runCheck(s, "behavior", func(s *scorer) {
		d.analyzeBehavior(s)
	})

	counts := d.behavior.Counts()
	result := Result{
		IsBot:      s.score >= d.policy.Threshold,
		Confidence: confidence(s.score),
		Score:      s.score,
		Reasons:    s.reasons,
		Behavior:   counts,
	}

	d.logger.Debug("Bot detection result",
		slog.Bool("is_bot", result.IsBot),
		slog.Int("score", result.Score),
		slog.String("reasons", fmt.Sprintf("%v", result.Reasons)))
	return result
}

func (d *Detector) analyzeBehavior(s *scorer) {
	if d.behavior.Elapsed() < d.policy.ObservationWindow {
		return
	}

	counts := d.behavior.Counts()
	w := d.policy.Weights

	if counts.Total() == 0 {
		s.add(w.NoInteraction, "no_human_interaction")
	}

	if counts.MouseMoves > highMouseMoveCount && counts.Clicks == 0 && counts.Scrolls == 0 {
		s.add(w.RepetitiveMouse, "repetitive_mouse_behavior")
	}
}

func confidence(score int) float64 {
	c := float64(score) / confidenceDenominator
	if c > 1 {
		return 1
	}
	return c
}
