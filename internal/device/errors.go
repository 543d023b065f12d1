package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrConcurrentUpdate) {
//	    // the row changed underneath us, retry next cycle
//	}
var (
	// ErrDeviceNotFound is returned when an address is not in the registry.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned when a device fails validation before write.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidState is returned when a stored state is not recognised.
	ErrInvalidState = errors.New("device: invalid state")

	// ErrInvalidTransition is returned when a transition record is malformed.
	ErrInvalidTransition = errors.New("device: invalid transition")

	// ErrConcurrentUpdate is returned when an outcome is applied to a row
	// whose state or counter no longer matches what it was evaluated against.
	ErrConcurrentUpdate = errors.New("device: concurrent update")
)
