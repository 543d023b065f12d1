package device

import (
	"fmt"
	"time"
)

// State is the availability state of a monitored device.
type State string

const (
	// StateUnknown is assigned on (re)registration, before any probe.
	StateUnknown State = "UNKNOWN"

	// StateUp means the last probe succeeded.
	StateUp State = "UP"

	// StatePending means a failure streak is in progress but the device
	// still has suppression tolerance left.
	StatePending State = "PENDING"

	// StateDown means the failure streak exhausted the tolerance.
	StateDown State = "DOWN"
)

// AllStates lists every valid State.
var AllStates = []State{StateUnknown, StateUp, StatePending, StateDown}

// ParseState converts a stored string into a State.
func ParseState(s string) (State, error) {
	for _, st := range AllStates {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
}

// NotifyKind tells the dispatcher which message, if any, a transition warrants.
type NotifyKind string

const (
	NotifyNone      NotifyKind = "none"
	NotifyDown      NotifyKind = "down"
	NotifyRecovered NotifyKind = "recovered"
)

// ParseNotifyKind converts a stored string into a NotifyKind.
func ParseNotifyKind(s string) (NotifyKind, error) {
	switch NotifyKind(s) {
	case NotifyNone, NotifyDown, NotifyRecovered:
		return NotifyKind(s), nil
	default:
		return "", fmt.Errorf("%w: notification %q", ErrInvalidTransition, s)
	}
}

// Device is one monitored endpoint as held in the registry.
//
// CurrentSuppressCount stays within [0, SuppressCount]. It equals
// SuppressCount whenever State is UP or UNKNOWN and is 0 in DOWN.
type Device struct {
	Address              string    `json:"address"`
	Description          string    `json:"description"`
	State                State     `json:"state"`
	LastStateChange      time.Time `json:"last_state_change"`
	SuppressCount        int       `json:"suppress_count"`
	CurrentSuppressCount int       `json:"current_suppress_count"`

	// SeenUp records whether the device has answered a probe since it was
	// last (re)registered.
	SeenUp bool `json:"seen_up"`
}

// NewDevice returns a freshly registered device: UNKNOWN with full tolerance.
func NewDevice(address, description string, suppressCount int, now time.Time) Device {
	if suppressCount < 0 {
		suppressCount = 0
	}
	return Device{
		Address:              address,
		Description:          description,
		State:                StateUnknown,
		LastStateChange:      now.UTC(),
		SuppressCount:        suppressCount,
		CurrentSuppressCount: suppressCount,
	}
}

// Transition is one row of the append-only transition log.
type Transition struct {
	ID            int64      `json:"id"`
	CreatedAt     time.Time  `json:"created_at"`
	Address       string     `json:"address"`
	Description   string     `json:"description"`
	PreviousState State      `json:"previous_state"`
	NewState      State      `json:"new_state"`
	Notification  NotifyKind `json:"notification"`
	NotifiedAt    *time.Time `json:"notified_at,omitempty"`
}

// PendingNotification reports whether the transition still owes a message.
func (t Transition) PendingNotification() bool {
	return t.Notification != NotifyNone && t.NotifiedAt == nil
}
