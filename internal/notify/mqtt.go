package notify

import (
	"context"
	"time"

	"github.com/nerrad567/iotmon/internal/device"
	"github.com/nerrad567/iotmon/internal/infrastructure/mqtt"
	"github.com/nerrad567/iotmon/internal/probe"
)

// TypeMQTT is the channel name of MQTTNotifier.
const TypeMQTT = "mqtt"

// Publisher is the subset of *mqtt.Client used by MQTTNotifier.
type Publisher interface {
	PublishJSON(ctx context.Context, topic string, v any, retained bool) error
}

// MQTTNotifier publishes alerts and retained device state.
type MQTTNotifier struct {
	publisher Publisher
	topics    mqtt.Topics
}

// NewMQTTNotifier returns an MQTT channel publishing through p.
func NewMQTTNotifier(p Publisher) *MQTTNotifier {
	return &MQTTNotifier{publisher: p}
}

type alertPayload struct {
	Message
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type statePayload struct {
	Address     string       `json:"address"`
	Description string       `json:"description"`
	State       device.State `json:"state"`
	Since       time.Time    `json:"since"`
}

// Type implements Notifier.
func (n *MQTTNotifier) Type() string { return TypeMQTT }

// Send implements Notifier. Alerts are events, so they are not retained.
func (n *MQTTNotifier) Send(ctx context.Context, m Message) error {
	return n.publisher.PublishJSON(ctx, n.topics.DeviceAlert(m.Address), alertPayload{
		Message: m,
		Subject: m.Subject(),
		Body:    m.Body(),
	}, false)
}

// ObserveTransition publishes the new state of a device as a retained
// message, for every committed transition including PENDING edges.
// Publish failures are dropped; the next transition overwrites the topic.
func (n *MQTTNotifier) ObserveTransition(ctx context.Context, tr device.Transition) {
	_ = n.publisher.PublishJSON(ctx, n.topics.DeviceState(tr.Address), statePayload{
		Address:     tr.Address,
		Description: tr.Description,
		State:       tr.NewState,
		Since:       tr.CreatedAt,
	}, true)
}

// ObserveProbe implements the monitor observer interface; raw probe results
// are not published over MQTT.
func (n *MQTTNotifier) ObserveProbe(context.Context, device.Device, probe.Result) {}
