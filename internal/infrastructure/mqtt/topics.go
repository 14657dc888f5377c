package mqtt

import "strings"

// TopicPrefix is the root of every topic the service publishes or consumes.
const TopicPrefix = "localtuya"

// Topics builds topic names. The zero value is ready to use.
//
//	topics := mqtt.Topics{}
//	topics.DeviceState("bf3a1c0d9e")   // localtuya/state/bf3a1c0d9e
//	topics.DeviceCommand("bf3a1c0d9e") // localtuya/command/bf3a1c0d9e
type Topics struct{}

// DeviceState is the retained JSON state of one device.
func (Topics) DeviceState(deviceID string) string {
	return TopicPrefix + "/state/" + deviceID
}

// DeviceCommand carries property writes, anticipations and refresh requests for one device.
func (Topics) DeviceCommand(deviceID string) string {
	return TopicPrefix + "/command/" + deviceID
}

// AllDeviceCommands matches the command topic of every device.
func (Topics) AllDeviceCommands() string {
	return TopicPrefix + "/command/+"
}

// AllDeviceStates matches the state topic of every device.
func (Topics) AllDeviceStates() string {
	return TopicPrefix + "/state/+"
}

// BridgeHealth is the retained health document of the device bridge.
func (Topics) BridgeHealth() string {
	return TopicPrefix + "/health/bridge"
}

// ServiceStatus is the retained online/offline status of the service (also the will topic).
func (Topics) ServiceStatus() string {
	return TopicPrefix + "/system/status"
}

// DeviceIDFromTopic extracts the device id from a state or command topic.
// It returns "" when the topic is not a per-device topic.
func (Topics) DeviceIDFromTopic(topic string) string {
	for _, kind := range [...]string{"/state/", "/command/"} {
		id, ok := strings.CutPrefix(topic, TopicPrefix+kind)
		if ok && id != "" && !strings.Contains(id, "/") {
			return id
		}
	}
	return ""
}
