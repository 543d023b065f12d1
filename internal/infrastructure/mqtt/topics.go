package mqtt

import "strings"

// TopicPrefix is the root of every iotmon topic.
const TopicPrefix = "iotmon"

// Topics provides builders for iotmon MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DeviceState("192.168.1.20") // "iotmon/state/192.168.1.20"
type Topics struct{}

// SystemStatus returns the retained online/offline status topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// DeviceState returns the retained state topic for a device.
func (Topics) DeviceState(address string) string {
	return TopicPrefix + "/state/" + topicSegment(address)
}

// DeviceAlert returns the alert topic for a device.
func (Topics) DeviceAlert(address string) string {
	return TopicPrefix + "/alert/" + topicSegment(address)
}

// topicSegment makes an address safe to use as one topic level.
// MQTT reserves '/', '+' and '#'.
func topicSegment(address string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(address)
}
