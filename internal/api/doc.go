// Package api implements the read-only status API and WebSocket stream of
// iotmon.
//
// Endpoints (all under /api/v1):
//
//	GET /health                            process health and last cycle summary
//	GET /devices[?state=DOWN]              registered devices
//	GET /devices/{address}                 one device
//	GET /devices/{address}/transitions     transition history of one device
//	GET /transitions                       transition history of all devices
//	GET /ws                                WebSocket transition stream
//
// WebSocket clients subscribe to the "device.transition" channel and receive
// one event per committed state change. The Hub is a monitor observer, so
// events are only ever sent for transitions that are already persisted.
//
// The API has no authentication and binds to 127.0.0.1 by default.
package api
