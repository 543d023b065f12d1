package monitor

import "errors"

// ErrInternal is returned by Run when a cycle panicked. The process should
// exit rather than keep probing with unknown state.
var ErrInternal = errors.New("monitor: internal error")
