package notify

import (
	"fmt"
	"time"

	"github.com/nerrad567/iotmon/internal/device"
)

// Message is one alert about one device.
type Message struct {
	TransitionID int64             `json:"transition_id"`
	Address      string            `json:"address"`
	Description  string            `json:"description"`
	Previous     device.State      `json:"previous_state"`
	Current      device.State      `json:"new_state"`
	Kind         device.NotifyKind `json:"kind"`
	At           time.Time         `json:"at"`
}

// FromTransition builds the message for a committed transition.
func FromTransition(tr device.Transition) (Message, error) {
	if tr.Notification != device.NotifyDown && tr.Notification != device.NotifyRecovered {
		return Message{}, fmt.Errorf("%w: transition %d (%s)", ErrNothingToSend, tr.ID, tr.Notification)
	}
	return Message{
		TransitionID: tr.ID,
		Address:      tr.Address,
		Description:  tr.Description,
		Previous:     tr.PreviousState,
		Current:      tr.NewState,
		Kind:         tr.Notification,
		At:           tr.CreatedAt,
	}, nil
}

// Subject returns the one-line summary used as e-mail subject.
func (m Message) Subject() string {
	return fmt.Sprintf("State of %s (%s) has changed from %s to %s",
		m.Address, m.Description, m.Previous, m.Current)
}

// Body returns the message text.
func (m Message) Body() string {
	if m.Kind == device.NotifyRecovered {
		return "UP now, just FYI."
	}
	return "DOWN!  Please investigate."
}

// Text returns subject and body as one block, for channels without a subject.
func (m Message) Text() string {
	return m.Subject() + "\n" + m.Body()
}
