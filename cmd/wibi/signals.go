package main

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"wibi/internal/botdetect"
)

// hostSignals describes the agent's own environment. When the agent
// embeds in a host with real browser telemetry the host supplies its
// own implementation; standalone runs fall back to these values, which
// can be overridden through WIBI_AGENT_* variables.
var _ botdetect.BrowserSignals = (*hostSignals)(nil)

type hostSignals struct {
	userAgent string
	width     int
	height    int
	start     time.Time
}

func newHostSignals() *hostSignals {
	s := &hostSignals{
		userAgent: "wibi-agent/1.0 (" + runtime.GOOS + "; " + runtime.GOARCH + ")",
		width:     1920,
		height:    1080,
		start:     time.Now(),
	}
	if ua := os.Getenv("WIBI_AGENT_USER_AGENT"); ua != "" {
		s.userAgent = ua
	}
	if res := os.Getenv("WIBI_AGENT_SCREEN"); res != "" {
		if parts := strings.SplitN(res, "x", 2); len(parts) == 2 {
			if w, err := strconv.Atoi(parts[0]); err == nil {
				s.width = w
			}
			if h, err := strconv.Atoi(parts[1]); err == nil {
				s.height = h
			}
		}
	}
	return s
}

func (s *hostSignals) WebDriver() bool { return false }

func (s *hostSignals) DocumentAttribute(string) string { return "" }

func (s *hostSignals) HasGlobal(string) bool { return false }

func (s *hostSignals) UserAgent() string { return s.userAgent }

func (s *hostSignals) PluginCount() int { return 1 }

func (s *hostSignals) Languages() []string { return []string{"en-US"} }

func (s *hostSignals) HasChromeRuntime() bool { return true }

func (s *hostSignals) HardwareConcurrency() int { return runtime.NumCPU() }

func (s *hostSignals) DeviceMemoryGB() float64 { return 8 }

func (s *hostSignals) ScreenSize() (int, int) { return s.width, s.height }

func (s *hostSignals) Timezone() (string, error) {
	name, _ := time.Now().Zone()
	return name, nil
}

func (s *hostSignals) PageLoadTime() (time.Duration, bool) {
	return time.Since(s.start), false
}
