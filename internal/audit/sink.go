// Package audit implements the optional session-lifecycle audit sink: a
// best-effort record of connect/disconnect/name events, never on the hot
// path and never required for the core to run.
package audit

import "time"

// EventKind identifies what happened to a session.
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
)

// Record is one session lifecycle event.
type Record struct {
	ClientID   int64
	PlayerName string
	Event      EventKind
	OccurredAt time.Time
}

// Sink receives session lifecycle events on a best-effort basis. Record
// must not block the caller for long — implementations that talk to a
// database should apply their own timeout internally. A nil Sink is valid:
// callers check for nil before invoking it.
type Sink interface {
	Record(rec Record)
}
