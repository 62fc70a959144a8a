package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/dawret/knxgw/internal/application"
	"github.com/dawret/knxgw/internal/frame"
	"github.com/dawret/knxgw/internal/infrastructure/mqtt"
	"github.com/dawret/knxgw/internal/transceiver"
)

// stateQoS and commandQoS are the MQTT QoS levels used for state publishes
// and command subscriptions respectively.
const (
	stateQoS   = 1
	commandQoS = 1
)

// Facade is the subset of *application.Facade the forwarder depends on.
type Facade interface {
	Indications() <-chan application.Indication
	Write(ctx context.Context, group frame.GroupAddress, dp frame.DataPoint) (transceiver.Confirmation, error)
	Respond(ctx context.Context, group frame.GroupAddress, dp frame.DataPoint) (transceiver.Confirmation, error)
}

// MQTTClient is the subset of *mqtt.Client the forwarder depends on.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Recorder persists accepted group traffic for the audit trail and bus
// metrics. It is best-effort: a Forwarder with a nil Recorder still
// forwards traffic, per the degrade-don't-block error policy.
type Recorder interface {
	RecordTelegram(ctx context.Context, source, group string, apci uint8, payload []byte)
}

// Logger is the minimal structured-logging surface the forwarder depends
// on.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Forwarder republishes decoded application-layer indications onto MQTT,
// and translates inbound MQTT command-topic messages into GroupValueWrite
// frames handed to the application facade. Its state cache suppresses
// redundant republishes, keyed one entry per group address since this
// gateway has no device abstraction above the group address.
type Forwarder struct {
	facade   Facade
	mqtt     MQTTClient
	devices  *DeviceTable
	recorder Recorder
	logger   Logger

	cacheMu sync.Mutex
	cache   map[frame.GroupAddress][]byte
}

// NewForwarder wires a Forwarder over facade and mqttClient using the
// mappings in devices. recorder and logger may be nil.
func NewForwarder(facade Facade, mqttClient MQTTClient, devices *DeviceTable, recorder Recorder, logger Logger) *Forwarder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Forwarder{
		facade:   facade,
		mqtt:     mqttClient,
		devices:  devices,
		recorder: recorder,
		logger:   logger,
		cache:    make(map[frame.GroupAddress][]byte),
	}
}

// Start subscribes to every configured device's command topic. Call once
// before Run.
func (fw *Forwarder) Start() error {
	for _, topic := range fw.devices.commandTopics() {
		if err := fw.mqtt.Subscribe(topic, commandQoS, fw.handleCommand); err != nil {
			return fmt.Errorf("gateway: subscribing to %s: %w", topic, err)
		}
	}
	return nil
}

// Run forwards facade indications to MQTT until ctx is cancelled or the
// facade's indication channel closes.
func (fw *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ind, ok := <-fw.facade.Indications():
			if !ok {
				return nil
			}
			fw.handleIndication(ctx, ind)
		}
	}
}

func (fw *Forwarder) handleIndication(ctx context.Context, ind application.Indication) {
	dev, ok := fw.devices.byGroupAddress(ind.Group)
	if !ok {
		fw.logger.Debug("indication for unconfigured group", "group", ind.Group.String())
		return
	}

	switch ind.Kind {
	case application.GroupValueRead:
		// No auto-response: the application facade's upper boundary only
		// logs reads. A future device layer could answer from the
		// forwarder's own cache here.
		fw.logger.Debug("group value read", "group", ind.Group.String(), "topic", dev.topic)
	case application.GroupValueWrite, application.GroupValueResponse:
		fw.publishState(dev, ind)
	}

	if fw.recorder != nil {
		fw.recorder.RecordTelegram(ctx, ind.Source.String(), ind.Group.String(), uint8(apciFor(ind.Kind)), ind.Data)
	}
}

func apciFor(kind application.Kind) int {
	switch kind {
	case application.GroupValueResponse:
		return 1
	case application.GroupValueWrite:
		return 2
	default:
		return 0
	}
}

func (fw *Forwarder) publishState(dev device, ind application.Indication) {
	value, err := decodeValue(dev.dpt, ind.ShortData, ind.Data)
	if err != nil {
		fw.logger.Warn("decoding group value", "topic", dev.topic, "error", err)
		return
	}
	payload, err := marshalState(value)
	if err != nil {
		fw.logger.Warn("marshalling state payload", "topic", dev.topic, "error", err)
		return
	}

	if fw.unchanged(dev.group, payload) {
		return
	}

	if err := fw.mqtt.Publish(dev.topic, payload, stateQoS, true); err != nil {
		fw.logger.Warn("publishing state", "topic", dev.topic, "error", err)
	}
}

func (fw *Forwarder) unchanged(group frame.GroupAddress, payload []byte) bool {
	fw.cacheMu.Lock()
	defer fw.cacheMu.Unlock()
	prev, ok := fw.cache[group]
	if ok && string(prev) == string(payload) {
		return true
	}
	fw.cache[group] = payload
	return false
}

// handleCommand translates an inbound MQTT command-topic message into a
// GroupValueWrite frame and dispatches it through the application facade.
func (fw *Forwarder) handleCommand(topic string, payload []byte) error {
	dev, ok := fw.devices.byCommandTopic(topic)
	if !ok {
		return fmt.Errorf("gateway: command on unconfigured topic %q", topic)
	}

	value, err := unmarshalCommand(payload)
	if err != nil {
		return err
	}
	dp, err := encodeValue(dev.dpt, value)
	if err != nil {
		return fmt.Errorf("gateway: encoding command for %q: %w", topic, err)
	}

	_, err = fw.facade.Write(context.Background(), dev.group, dp)
	if err != nil {
		return fmt.Errorf("gateway: writing %q: %w", topic, err)
	}
	return nil
}
