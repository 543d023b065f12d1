package notify

import "errors"

var (
	// ErrDelivery wraps every failure to hand a message to a channel.
	ErrDelivery = errors.New("notify: delivery failed")

	// ErrNothingToSend is returned when a message carries no notification.
	ErrNothingToSend = errors.New("notify: transition does not notify")
)
