package mqtt

import "fmt"

// Topic prefix for the gateway's own system topics. Per-device state and
// command topics are not derived from a fixed scheme: they come straight
// from the node configuration's device.topic field, so a deployment can
// match whatever naming convention its other MQTT consumers already use.
const (
	// TopicPrefixSystem is the base for the gateway's own status topics.
	TopicPrefixSystem = "knxgw/system"

	// commandTopicSuffix is appended to a device's configured topic to
	// form the topic the gateway subscribes to for inbound writes.
	commandTopicSuffix = "/set"
)

// Topics provides builders for the gateway's system topics and for
// deriving a device's command topic from its configured state topic.
//
//	topics := mqtt.Topics{}
//	cmd := topics.CommandTopic("knx/livingroom/light")
//	// Returns: "knx/livingroom/light/set"
type Topics struct{}

// SystemStatus returns the gateway's online/offline status topic, used
// for both the Last Will and Testament and the graceful-shutdown publish.
//
// Example: knxgw/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// CommandTopic returns the topic the gateway subscribes to for inbound
// GroupValueWrite requests targeting a device's group
// address, derived from that device's configured state topic.
//
// Example: CommandTopic("knx/livingroom/light") -> "knx/livingroom/light/set"
func (Topics) CommandTopic(stateTopic string) string {
	return stateTopic + commandTopicSuffix
}
