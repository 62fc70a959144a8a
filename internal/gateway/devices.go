package gateway

import (
	"fmt"
	"sync"

	"github.com/dawret/knxgw/internal/frame"
	"github.com/dawret/knxgw/internal/infrastructure/config"
	"github.com/dawret/knxgw/internal/infrastructure/mqtt"
)

// device holds the resolved mapping for one configured group address:
// its ASAP identifier, MQTT state topic, and datapoint type.
type device struct {
	group frame.GroupAddress
	asap  uint8
	topic string
	dpt   string
}

// DeviceTable resolves group addresses to their configured ASAP, MQTT
// topic, and datapoint type, and resolves MQTT command topics back to a
// group address. It satisfies application.AddressTable.
type DeviceTable struct {
	mu        sync.RWMutex
	byGroup   map[frame.GroupAddress]device
	byTopic   map[string]device // keyed by the device's state topic
	byCommand map[string]device // keyed by the derived command topic
}

// NewDeviceTable builds a DeviceTable from the node's configured devices.
// Each device's group address is parsed here, and a malformed one is
// returned as an error naming the device's topic.
func NewDeviceTable(devices []config.DeviceConfig) (*DeviceTable, error) {
	t := &DeviceTable{
		byGroup:   make(map[frame.GroupAddress]device, len(devices)),
		byTopic:   make(map[string]device, len(devices)),
		byCommand: make(map[string]device, len(devices)),
	}
	for _, d := range devices {
		group, err := frame.ParseGroupAddress(d.Group)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", d.Topic, err)
		}
		dev := device{group: group, asap: d.ASAP, topic: d.Topic, dpt: d.DPT}
		t.byGroup[group] = dev
		t.byTopic[d.Topic] = dev
		t.byCommand[mqtt.Topics{}.CommandTopic(d.Topic)] = dev
	}
	return t, nil
}

// ASAP implements application.AddressTable.
func (t *DeviceTable) ASAP(group frame.GroupAddress) (uint8, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	dev, ok := t.byGroup[group]
	return dev.asap, ok
}

// byGroupAddress looks up a device by its group address.
func (t *DeviceTable) byGroupAddress(group frame.GroupAddress) (device, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	dev, ok := t.byGroup[group]
	return dev, ok
}

// byCommandTopic looks up a device by the MQTT topic its commands arrive
// on.
func (t *DeviceTable) byCommandTopic(topic string) (device, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	dev, ok := t.byCommand[topic]
	return dev, ok
}

// commandTopics returns every command topic the forwarder should
// subscribe to.
func (t *DeviceTable) commandTopics() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	topics := make([]string, 0, len(t.byCommand))
	for topic := range t.byCommand {
		topics = append(topics, topic)
	}
	return topics
}
