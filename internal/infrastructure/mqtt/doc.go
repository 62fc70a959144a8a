// Package mqtt provides MQTT client connectivity for the gateway's
// group-address/topic forwarder.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The gateway forwards decoded application-layer indications to MQTT,
// one topic per configured group address, and translates inbound MQTT
// command messages back into GroupValueWrite frames:
//
//	KNX bus <-> application facade <-> MQTT broker <-> other services
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.CommandTopic("knx/livingroom/light"), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("command on %s: %s", topic, payload)
//	        return nil
//	    })
//
//	client.PublishRetained("knx/livingroom/light", []byte(`{"value":true}`))
package mqtt
