package widget

import (
	"time"

	"wibi/internal/backend"
)

// defaultBusinessHours applies when the backend config does not carry
// its own schedule: Monday through Friday, 09:00 to 13:30.
var defaultBusinessHours = backend.BusinessHoursConfig{
	Enabled:   true,
	StartDay:  int(time.Monday),
	EndDay:    int(time.Friday),
	StartHour: 9,
	EndHour:   13,
	EndMinute: 30,
}

// withinBusinessHours reports whether now falls inside the configured
// window. A disabled schedule is always open.
func withinBusinessHours(cfg backend.BusinessHoursConfig, now time.Time) bool {
	if !cfg.Enabled {
		return true
	}

	day := int(now.Weekday())
	if day < cfg.StartDay || day > cfg.EndDay {
		return false
	}

	hour, minute := now.Hour(), now.Minute()
	if hour < cfg.StartHour || hour > cfg.EndHour {
		return false
	}
	if hour == cfg.EndHour && minute > cfg.EndMinute {
		return false
	}
	return true
}
