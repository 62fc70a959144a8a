package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dawret/knxgw/internal/frame"
)

// Config is the root configuration structure for the gateway. All
// configuration is loaded from YAML and can be overridden by environment
// variables.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Serial    SerialConfig    `yaml:"serial"`
	Transport TransportConfig `yaml:"transport"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Diag      DiagConfig      `yaml:"diagnostics"`
}

// DiagConfig controls the passive bus-monitor tap.
type DiagConfig struct {
	BusMonitor  bool `yaml:"bus_monitor"`
	BusmonQueue int  `yaml:"busmon_queue"`
}

// NodeConfig identifies this gateway on the bus and maps the group
// addresses it serves to MQTT topics and datapoint types.
type NodeConfig struct {
	// Address is this node's individual address ("area.line.device").
	// The original firmware's compile-time settings::ADDRESS constant
	// becomes a required field with no default.
	Address string         `yaml:"address"`
	Devices []DeviceConfig `yaml:"devices"`
}

// DeviceConfig maps one group address to the ASAP identifier and MQTT
// topic the gateway exposes it under, plus the datapoint type used to
// decode/encode its payload.
type DeviceConfig struct {
	Group string `yaml:"group"` // "main/middle/sub"
	ASAP  uint8  `yaml:"asap"`
	Topic string `yaml:"topic"`
	DPT   string `yaml:"dpt"` // "bool", "byte", "percentage", "float2byte", "scene", "rgb"
}

// SerialConfig contains the UART device settings for the transceiver.
type SerialConfig struct {
	Device     string `yaml:"device"`
	BufferPool int    `yaml:"buffer_pool"`
}

// TransportConfig tunes the connection-oriented transport layer.
type TransportConfig struct {
	InboundQueue     int `yaml:"inbound_queue"`
	ApplicationQueue int `yaml:"application_queue"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// String redacts the password so logging a MQTTAuthConfig never leaks it.
func (a MQTTAuthConfig) String() string {
	if a.Password == "" {
		return fmt.Sprintf("{Username:%s Password:}", a.Username)
	}
	return fmt.Sprintf("{Username:%s Password:<redacted>}", a.Username)
}

// MarshalJSON redacts the password in any JSON-encoded log record.
func (a MQTTAuthConfig) MarshalJSON() ([]byte, error) {
	password := ""
	if a.Password != "" {
		password = "<redacted>"
	}
	return []byte(fmt.Sprintf(`{"username":%q,"password":%q}`, a.Username, password)), nil
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// AuditConfig contains the telegram audit log settings.
type AuditConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MetricsConfig contains InfluxDB bus-metrics settings.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// String redacts the token so logging a MetricsConfig never leaks it.
func (m MetricsConfig) String() string {
	token := ""
	if m.Token != "" {
		token = "<redacted>"
	}
	return fmt.Sprintf("{Enabled:%v URL:%s Token:%s Org:%s Bucket:%s}", m.Enabled, m.URL, token, m.Org, m.Bucket)
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: KNXGW_SECTION_KEY
// For example: KNXGW_MQTT_PASSWORD, KNXGW_SERIAL_DEVICE
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Device:     "/dev/ttyUSB0",
			BufferPool: 16,
		},
		Transport: TransportConfig{
			InboundQueue:     8,
			ApplicationQueue: 4,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "knxgw",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Audit: AuditConfig{
			Path:        "./data/knxgw-audit.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Diag: DiagConfig{
			BusmonQueue: 16,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables follow the pattern
// KNXGW_SECTION_KEY.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KNXGW_NODE_ADDRESS"); v != "" {
		cfg.Node.Address = v
	}
	if v := os.Getenv("KNXGW_SERIAL_DEVICE"); v != "" {
		cfg.Serial.Device = v
	}
	if v := os.Getenv("KNXGW_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("KNXGW_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("KNXGW_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("KNXGW_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}
	if v := os.Getenv("KNXGW_METRICS_TOKEN"); v != "" {
		cfg.Metrics.Token = v
	}
}

// Validate checks the configuration for errors, aggregating every
// section's own validate() before returning.
func (c *Config) Validate() error {
	var errs []string

	if c.Node.Address == "" {
		errs = append(errs, "node.address is required")
	} else if _, err := frame.ParseIndividualAddress(c.Node.Address); err != nil {
		errs = append(errs, fmt.Sprintf("node.address: %v", err))
	}
	for i, d := range c.Node.Devices {
		errs = append(errs, d.validate(i)...)
	}

	errs = append(errs, c.Serial.validate()...)
	errs = append(errs, c.Transport.validate()...)
	errs = append(errs, c.MQTT.validate()...)
	errs = append(errs, c.Audit.validate()...)
	errs = append(errs, c.Metrics.validate()...)
	errs = append(errs, c.Diag.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (d DeviceConfig) validate(index int) []string {
	var errs []string
	if _, err := frame.ParseGroupAddress(d.Group); err != nil {
		errs = append(errs, fmt.Sprintf("node.devices[%d].group: %v", index, err))
	}
	if d.Topic == "" {
		errs = append(errs, fmt.Sprintf("node.devices[%d].topic is required", index))
	}
	switch d.DPT {
	case "bool", "byte", "percentage", "float2byte", "scene", "rgb":
	default:
		errs = append(errs, fmt.Sprintf("node.devices[%d].dpt %q is not recognised", index, d.DPT))
	}
	return errs
}

func (s SerialConfig) validate() []string {
	var errs []string
	if s.Device == "" {
		errs = append(errs, "serial.device is required")
	}
	if s.BufferPool < 1 {
		errs = append(errs, "serial.buffer_pool must be at least 1")
	}
	return errs
}

func (t TransportConfig) validate() []string {
	var errs []string
	if t.InboundQueue < 1 {
		errs = append(errs, "transport.inbound_queue must be at least 1")
	}
	if t.ApplicationQueue < 1 {
		errs = append(errs, "transport.application_queue must be at least 1")
	}
	return errs
}

func (m MQTTConfig) validate() []string {
	var errs []string
	if m.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if m.QoS < 0 || m.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	return errs
}

func (a AuditConfig) validate() []string {
	if !a.Enabled {
		return nil
	}
	var errs []string
	if a.Path == "" {
		errs = append(errs, "audit.path is required when audit.enabled is true")
	}
	return errs
}

func (d DiagConfig) validate() []string {
	if !d.BusMonitor {
		return nil
	}
	if d.BusmonQueue < 1 {
		return []string{"diagnostics.busmon_queue must be at least 1 when diagnostics.bus_monitor is true"}
	}
	return nil
}

func (m MetricsConfig) validate() []string {
	if !m.Enabled {
		return nil
	}
	var errs []string
	if m.URL == "" {
		errs = append(errs, "metrics.url is required when metrics.enabled is true")
	}
	if m.Bucket == "" {
		errs = append(errs, "metrics.bucket is required when metrics.enabled is true")
	}
	return errs
}
