package widget

import (
	"log/slog"
	"time"
)

// Version is reported with every data-layer event.
const Version = "2.0.0"

// DataLayer receives tag-manager events. Pushes happen for every widget
// interaction regardless of consent; implementations own any further
// gating.
type DataLayer interface {
	Push(event map[string]any)
}

// LogDataLayer writes events to the logger. It is the default sink when
// the host does not wire a tag manager.
type LogDataLayer struct {
	Logger *slog.Logger
}

func (l *LogDataLayer) Push(event map[string]any) {
	l.Logger.Debug("datalayer event", slog.Any("event", event))
}

// pushEvent stamps the shared fields and forwards to the sink.
func pushEvent(sink DataLayer, name string, fields map[string]any) {
	if sink == nil {
		return
	}
	event := map[string]any{
		"event":          name,
		"wibi_version":   Version,
		"wibi_timestamp": time.Now().Format(time.RFC3339),
	}
	for key, value := range fields {
		event[key] = value
	}
	sink.Push(event)
}
