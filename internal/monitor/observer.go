package monitor

import (
	"context"

	"github.com/nerrad567/iotmon/internal/device"
	"github.com/nerrad567/iotmon/internal/infrastructure/influxdb"
	"github.com/nerrad567/iotmon/internal/probe"
)

// Observer receives probe results and committed transitions. Observers run
// on the cycle goroutine and must not block.
type Observer interface {
	// ObserveProbe is called once per probed device with the device as it
	// was committed after the probe.
	ObserveProbe(ctx context.Context, dev device.Device, res probe.Result)

	// ObserveTransition is called for every committed transition.
	ObserveTransition(ctx context.Context, tr device.Transition)
}

// InfluxObserver writes probe results and transitions as InfluxDB points.
type InfluxObserver struct {
	client *influxdb.Client
}

// NewInfluxObserver returns an observer writing through client.
func NewInfluxObserver(client *influxdb.Client) *InfluxObserver {
	return &InfluxObserver{client: client}
}

// ObserveProbe implements Observer.
func (o *InfluxObserver) ObserveProbe(_ context.Context, dev device.Device, res probe.Result) {
	o.client.WriteProbeResult(dev.Address, dev.Description, res.Reachable, string(dev.State), res.Took, res.At)
}

// ObserveTransition implements Observer.
func (o *InfluxObserver) ObserveTransition(_ context.Context, tr device.Transition) {
	o.client.WriteTransition(tr.Address, string(tr.PreviousState), string(tr.NewState), string(tr.Notification), tr.CreatedAt)
}
