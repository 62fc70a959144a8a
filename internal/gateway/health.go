package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dawret/knxgw/internal/infrastructure/mqtt"
	"github.com/dawret/knxgw/internal/transport"
)

// Status is the gateway's reported operational state.
type Status string

const (
	StatusStarting Status = "starting"
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusStopping Status = "stopping"
)

// healthMessage is the JSON payload published to the system status topic.
type healthMessage struct {
	Status          Status `json:"status"`
	Reason          string `json:"reason,omitempty"`
	TransportState  string `json:"transport_state"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	AuditHealthy    bool   `json:"audit_healthy"`
	MetricsHealthy  bool   `json:"metrics_healthy"`
	PublishedAtUnix int64  `json:"published_at"`
}

// TransportState is the subset of *transport.Transport the health
// reporter depends on.
type TransportState interface {
	State() transport.State
}

// BackendHealth is satisfied by the audit and metrics clients, both of
// which expose a HealthCheck(ctx) error method.
type BackendHealth interface {
	HealthCheck(ctx context.Context) error
}

// HealthReporterConfig configures a HealthReporter.
type HealthReporterConfig struct {
	Publisher MQTTClient
	Transport TransportState
	Audit     BackendHealth // nil if the audit trail is disabled
	Metrics   BackendHealth // nil if bus metrics are disabled
	Interval  time.Duration // default 30s
}

// HealthReporter periodically publishes the gateway's operational status
// to MQTT, checking this gateway's own transport and backend state.
type HealthReporter struct {
	cfg       HealthReporterConfig
	startTime time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a HealthReporter. Call Start to begin
// reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	return &HealthReporter{
		cfg:       cfg,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting in a background goroutine.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.loop(ctx)
}

// Stop stops reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		_ = h.publish(StatusStopping, "")
	})
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publish(status, reason)
}

func (h *HealthReporter) loop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	_ = h.PublishNow()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			_ = h.PublishNow()
		}
	}
}

func (h *HealthReporter) determineStatus() (Status, string) {
	// transport.Closed just means no connection-oriented session is
	// currently open with a peer, which is the normal steady state for
	// connectionless group traffic — it does not by itself indicate a
	// problem, so only the backend checks below can degrade health.
	if !h.backendHealthy(h.cfg.Audit) {
		return StatusDegraded, "audit backend unreachable"
	}
	if !h.backendHealthy(h.cfg.Metrics) {
		return StatusDegraded, "metrics backend unreachable"
	}
	return StatusHealthy, ""
}

func (h *HealthReporter) backendHealthy(backend BackendHealth) bool {
	if backend == nil {
		return true // disabled backends never degrade health
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return backend.HealthCheck(ctx) == nil
}

func (h *HealthReporter) publish(status Status, reason string) error {
	if h.cfg.Publisher == nil {
		return nil
	}
	msg := healthMessage{
		Status:          status,
		Reason:          reason,
		UptimeSeconds:   int64(time.Since(h.startTime).Seconds()),
		AuditHealthy:    h.backendHealthy(h.cfg.Audit),
		MetricsHealthy:  h.backendHealthy(h.cfg.Metrics),
		PublishedAtUnix: time.Now().Unix(),
	}
	if h.cfg.Transport != nil {
		msg.TransportState = h.cfg.Transport.State().String()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(mqtt.Topics{}.SystemStatus(), payload, 1, true)
}
