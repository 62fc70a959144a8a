// Package gateway wires the protocol stack's application facade to MQTT:
// decoded group indications become retained state publishes, and inbound
// command-topic messages become GroupValueWrite frames
// handed back to the facade. It also carries the gateway's health
// reporting and bus-monitor diagnostics.
package gateway
