// Package influxdb writes iotmon probe telemetry to InfluxDB v2.
//
// The SQLite transition log only keeps state changes for the retention
// horizon. When enabled, this package additionally records every probe
// result and every transition as time-series points, for graphing
// availability over long periods.
//
// Measurements:
//
//	device_probe       tags: address, description   fields: reachable, state, duration_ms
//	device_transition  tags: address, from, to      fields: notification, count
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteProbeResult("192.168.1.20", "Garage camera", true, "UP", 12*time.Millisecond, time.Now())
//
// Writes are non-blocking and batched (batch_size, flush_interval).
// Asynchronous write errors are delivered to the SetOnError callback.
package influxdb
