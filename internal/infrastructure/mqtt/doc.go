// Package mqtt provides MQTT publishing for iotmon.
//
// iotmon only publishes; it never subscribes. The broker carries three
// kinds of message:
//
//	iotmon/system/status        retained online/offline status, with an LWT
//	iotmon/state/{address}      retained current state of each device
//	iotmon/alert/{address}      one event per notified transition
//
// Home automation systems can subscribe to the state topics to mirror
// device availability, and to the alert topics to raise their own alarms.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.Notify.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.DeviceState("192.168.1.20"), state, true)
//
// # Security
//
// Enable TLS (broker.tls) for anything but a local broker. Credentials are
// best supplied via IOTMON_MQTT_USERNAME and IOTMON_MQTT_PASSWORD.
package mqtt
