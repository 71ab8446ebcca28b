// Package events defines the lifecycle notifications emitted during a
// reload cycle and the bus that delivers them to subscribers.
package events

import "time"

// Type represents the kind of lifecycle event.
type Type string

const (
	// TypeWillReload marks the start of a reload cycle.
	TypeWillReload Type = "reload.will_reload"
	// TypeDidReload marks the successful end of a reload cycle.
	TypeDidReload Type = "reload.did_reload"

	// TypeWillStopTarget is emitted before asking the controller to stop.
	TypeWillStopTarget Type = "target.will_stop"
	// TypeDidStopTarget is emitted once the stop grace period has elapsed.
	TypeDidStopTarget Type = "target.did_stop"

	// TypeWillCopy is emitted before the backup copy begins.
	TypeWillCopy Type = "backup.will_copy"
	// TypeDidCopy is emitted after the backup copy succeeded.
	TypeDidCopy Type = "backup.did_copy"

	// TypeWillStartTarget is emitted before asking the controller to start.
	TypeWillStartTarget Type = "target.will_start"
	// TypeDidStartTarget is emitted once the target process is launched.
	TypeDidStartTarget Type = "target.did_start"

	// TypeError carries a fault from any step so the caller can log or alert.
	TypeError Type = "reload.error"
)

// Event is one lifecycle notification. Within a single reload cycle the
// step events are emitted in a fixed order, each at most once.
type Event struct {
	Timestamp time.Time
	Type      Type

	// SessionID identifies the emitting session.
	SessionID string

	// Cycle is the reload sequence number the event belongs to, starting
	// at 1. Zero for events outside any cycle (watch faults).
	Cycle uint64

	// Err carries the originating fault for TypeError events.
	Err error
}

// New creates a lifecycle event for a reload cycle step.
func New(t Type, sessionID string, cycle uint64) Event {
	return Event{
		Type:      t,
		SessionID: sessionID,
		Cycle:     cycle,
		Timestamp: time.Now(),
	}
}

// NewError creates a reload.error event carrying the causing fault.
func NewError(sessionID string, cycle uint64, err error) Event {
	return Event{
		Type:      TypeError,
		SessionID: sessionID,
		Cycle:     cycle,
		Err:       err,
		Timestamp: time.Now(),
	}
}
