package gateway

import (
	"context"

	"github.com/dawret/knxgw/internal/audit"
)

// AuditRepository is the subset of *audit.SQLiteRepository the recorder
// depends on.
type AuditRepository interface {
	Record(ctx context.Context, t *audit.Telegram) error
}

// MetricsWriter is the subset of *influxdb.Client the recorder depends on.
type MetricsWriter interface {
	WriteTelegramMetric(source, destination string, apci int)
}

// CompositeRecorder fans RecordTelegram calls out to the audit trail and
// the bus-metrics writer. Either dependency may be nil, in which case
// that half of the recording is skipped — both backends are optional, and
// recording failures never block bus traffic.
//
// TPCI is not tracked here: the recorder sits at the application facade's
// boundary, where only group-addressed, APCI-bearing traffic surfaces.
// Recording transport-layer TPCI would mean tapping transport.Indications
// directly instead, which the gateway does not currently do.
type CompositeRecorder struct {
	audit   AuditRepository
	metrics MetricsWriter
}

// NewCompositeRecorder builds a CompositeRecorder. Either argument may be
// nil.
func NewCompositeRecorder(auditRepo AuditRepository, metrics MetricsWriter) *CompositeRecorder {
	return &CompositeRecorder{audit: auditRepo, metrics: metrics}
}

// RecordTelegram implements Recorder.
func (r *CompositeRecorder) RecordTelegram(ctx context.Context, source, group string, apci uint8, payload []byte) {
	if r.audit != nil {
		apciCopy := apci
		t := &audit.Telegram{
			Source:          source,
			Destination:     group,
			DestinationKind: "group",
			APCI:            &apciCopy,
			Payload:         payload,
		}
		_ = r.audit.Record(ctx, t) // best-effort: audit failures never block bus traffic
	}
	if r.metrics != nil {
		r.metrics.WriteTelegramMetric(source, group, int(apci))
	}
}
