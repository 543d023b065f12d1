package device

import "time"

// Policy holds the tunables of the state machine that are not per device.
type Policy struct {
	// NotifyUnconfirmedDown makes a device that was never seen UP since
	// registration notify when it reaches DOWN. When false such a
	// transition is recorded but stays silent.
	NotifyUnconfirmedDown bool
}

// Outcome is the result of folding one probe result into a device.
type Outcome struct {
	// Previous is the device exactly as it was evaluated. Apply uses its
	// state and counter as the optimistic concurrency check.
	Previous Device

	// Device is the device after the probe.
	Device Device

	// Write is false when nothing changed and nothing needs persisting.
	Write bool

	// Transition is non-nil when State changed.
	Transition *Transition

	// Notify is the message the transition warrants.
	Notify NotifyKind
}

// Evaluate applies one probe result to dev and returns what changed.
//
// It never performs I/O. A probe error must be passed as reachable=false.
func Evaluate(dev Device, reachable bool, now time.Time, policy Policy) Outcome {
	now = now.UTC()
	out := Outcome{Previous: dev, Device: dev, Notify: NotifyNone}

	if reachable {
		if dev.State == StateUp {
			return out
		}

		next := dev
		next.State = StateUp
		next.LastStateChange = now
		next.CurrentSuppressCount = next.SuppressCount
		next.SeenUp = true

		if dev.State == StateDown {
			out.Notify = NotifyRecovered
		}
		return out.commit(next, now)
	}

	if dev.State == StateDown {
		return out
	}

	next := dev
	remaining := min(dev.CurrentSuppressCount, dev.SuppressCount)
	if remaining <= 0 {
		next.State = StateDown
		next.LastStateChange = now
		next.CurrentSuppressCount = 0

		if dev.State == StateUp || dev.SeenUp || policy.NotifyUnconfirmedDown {
			out.Notify = NotifyDown
		}
		return out.commit(next, now)
	}

	next.CurrentSuppressCount = remaining - 1
	if dev.State == StatePending {
		out.Device = next
		out.Write = true
		return out
	}

	next.State = StatePending
	next.LastStateChange = now
	return out.commit(next, now)
}

// commit records a state change from out.Previous to next.
func (out Outcome) commit(next Device, now time.Time) Outcome {
	out.Device = next
	out.Write = true
	out.Transition = &Transition{
		CreatedAt:     now,
		Address:       next.Address,
		Description:   next.Description,
		PreviousState: out.Previous.State,
		NewState:      next.State,
		Notification:  out.Notify,
	}
	return out
}
