// Package notify delivers lifecycle events to chat platforms. Delivery is
// best-effort: operators want the signal, participants never wait on it.
package notify

import (
	"context"
	"log"
)

// Event is one lifecycle notification.
type Event struct {
	Title    string
	Body     string
	Severity string // "info", "success", "warning", "error"
	Fields   []Field
}

// Field is a key-value pair attached to an event.
type Field struct {
	Name  string
	Value string
}

// Notifier posts events to one platform.
type Notifier interface {
	Post(ctx context.Context, ev Event) error
}

// Fanout posts an event to every notifier, logging failures instead of
// returning them.
type Fanout struct {
	Notifiers []Notifier
	Log       *log.Logger
}

// NewFanout builds a Fanout. A nil logger falls back to the default logger.
func NewFanout(logger *log.Logger, notifiers ...Notifier) *Fanout {
	if logger == nil {
		logger = log.Default()
	}
	return &Fanout{Notifiers: notifiers, Log: logger}
}

// Post delivers ev to all notifiers. Always returns nil.
func (f *Fanout) Post(ctx context.Context, ev Event) error {
	for _, n := range f.Notifiers {
		if err := n.Post(ctx, ev); err != nil {
			f.Log.Printf("notify: %v", err)
		}
	}
	return nil
}

// severityColor maps an event severity to a sidebar color hint.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return "#36a64f"
	case "warning":
		return "#daa038"
	case "error":
		return "#a30200"
	default:
		return "#439fe0"
	}
}
