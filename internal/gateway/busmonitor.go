package gateway

import (
	"context"

	"github.com/dawret/knxgw/internal/datalink"
)

// BusmonLogger is the minimal structured-logging surface the bus monitor
// depends on.
type BusmonLogger interface {
	Info(msg string, args ...any)
}

// BusSource is the subset of *datalink.Link the bus monitor depends on.
type BusSource interface {
	Busmon() <-chan datalink.Indication
}

// BusMonitor passively logs every frame the data-link facade taps onto
// its Busmon channel, for field diagnostics. It has no TCP connection of
// its own to manage: frames already arrive decoded from within this
// process, so there is no remote bus-monitor protocol to speak and no
// device/group-address database to maintain; it only logs.
type BusMonitor struct {
	source BusSource
	logger BusmonLogger
}

// NewBusMonitor creates a BusMonitor over source. logger may be nil, in
// which case frames are read and discarded.
func NewBusMonitor(source BusSource, logger BusmonLogger) *BusMonitor {
	return &BusMonitor{source: source, logger: logger}
}

// Run logs every busmon frame until ctx is cancelled or the channel
// closes.
func (m *BusMonitor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ind, ok := <-m.source.Busmon():
			if !ok {
				return nil
			}
			m.logFrame(ind)
		}
	}
}

func (m *BusMonitor) logFrame(ind datalink.Indication) {
	defer ind.Frame.Release()
	if m.logger == nil {
		return
	}
	f := ind.Frame
	m.logger.Info("busmon frame",
		"source", f.SourceAddress().String(),
		"dest_raw", f.DestinationRaw(),
		"tpci", f.TPCI(),
		"len", f.Len(),
	)
}
