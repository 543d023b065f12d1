package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementProbe      = "device_probe"
	MeasurementTransition = "device_transition"
)

// WriteProbeResult records one probe of one device. Non-blocking.
func (c *Client) WriteProbeResult(address, description string, reachable bool, state string, took time.Duration, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(probePoint(address, description, reachable, state, took, at))
}

// WriteTransition records a committed state change. Non-blocking.
func (c *Client) WriteTransition(address, from, to, notification string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(transitionPoint(address, from, to, notification, at))
}

func probePoint(address, description string, reachable bool, state string, took time.Duration, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementProbe,
		map[string]string{
			"address":     address,
			"description": description,
		},
		map[string]interface{}{
			"reachable":   reachable,
			"state":       state,
			"duration_ms": float64(took) / float64(time.Millisecond),
		},
		at,
	)
}

func transitionPoint(address, from, to, notification string, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementTransition,
		map[string]string{
			"address": address,
			"from":    from,
			"to":      to,
		},
		map[string]interface{}{
			"notification": notification,
			"count":        int64(1),
		},
		at,
	)
}
