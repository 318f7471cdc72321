// Package analytics is the typed event-sending capability injected into the
// chat layers. The core only ever talks to the Tracker interface; the
// process-wide default is set once and never re-initialized.
package analytics

import (
	"log"
	"sync"
)

// Tracker records product events. Implementations must be safe for
// concurrent use and must never block the caller on a slow backend.
type Tracker interface {
	Track(event string, props map[string]any)
}

// Event names emitted by the core.
const (
	EventMessageSent  = "message_sent"
	EventGateShown    = "gate_shown"
	EventGateUnlocked = "gate_unlocked"
	EventChatError    = "chat_error"
	EventShareCreated = "share_created"
)

var (
	initOnce sync.Once
	global   Tracker = Noop{}
)

// Init installs the process-wide tracker. Subsequent calls are ignored.
func Init(t Tracker) {
	initOnce.Do(func() {
		if t != nil {
			global = t
		}
	})
}

// Default returns the installed tracker, a no-op until Init runs.
func Default() Tracker {
	return global
}

// Noop discards every event.
type Noop struct{}

func (Noop) Track(string, map[string]any) {}

// LogTracker writes events to the standard logger; useful in development.
type LogTracker struct{}

func (LogTracker) Track(event string, props map[string]any) {
	log.Printf("analytics: %s %v", event, props)
}
