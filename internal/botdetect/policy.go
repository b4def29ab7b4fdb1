package botdetect

import "time"

// Weights holds the per-signal score contributions. Weights are policy,
// not correctness: deployments tune them without code changes.
type Weights struct {
	WebDriver          int
	WebDriverAttribute int
	AutomationGlobal   int
	HeadlessUA         int
	NoPlugins          int
	NoLanguages        int
	NoChromeRuntime    int
	BotUASignature     int
	LowConcurrency     int
	LowDeviceMemory    int
	InvalidScreen      int
	SuspiciousTimezone int
	FastLoad           int
	NoInteraction      int
	RepetitiveMouse    int
}

// Policy bundles the scoring weights with the classification threshold
// and behavioral observation window.
type Policy struct {
	Threshold         int
	ObservationWindow time.Duration
	Weights           Weights
}

// DefaultPolicy returns the canonical weights and threshold.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:         5,
		ObservationWindow: 5 * time.Second,
		Weights: Weights{
			WebDriver:          5,
			WebDriverAttribute: 5,
			AutomationGlobal:   3,
			HeadlessUA:         5,
			NoPlugins:          2,
			NoLanguages:        2,
			NoChromeRuntime:    1,
			BotUASignature:     3,
			LowConcurrency:     1,
			LowDeviceMemory:    1,
			InvalidScreen:      2,
			SuspiciousTimezone: 1,
			FastLoad:           1,
			NoInteraction:      2,
			RepetitiveMouse:    1,
		},
	}
}

// automationGlobals are window properties planted by known automation
// frameworks.
var automationGlobals = []string{
	"callPhantom",
	"_phantom",
	"__nightmare",
	"__fxdriver_unwrapped",
	"webdriver",
	"_Selenium_IDE_Recorder",
	"_selenium",
	"calledSelenium",
}
