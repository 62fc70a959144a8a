// Package datalink reshapes raw transceiver frames into the tagged
// indications the network layer consumes, and taps the same receive path
// for bus-monitor mode without altering the transceiver's ACK behaviour.
package datalink

import (
	"context"

	"github.com/dawret/knxgw/internal/frame"
	"github.com/dawret/knxgw/internal/transceiver"
)

// Kind tags the four indication shapes the data-link facade produces.
type Kind uint8

const (
	Data Kind = iota
	SystemBroadcast
	Busmon
	ServiceInformation
)

func (k Kind) String() string {
	switch k {
	case Data:
		return "data"
	case SystemBroadcast:
		return "system-broadcast"
	case Busmon:
		return "busmon"
	case ServiceInformation:
		return "service-information"
	default:
		return "unknown"
	}
}

// Indication is one event surfaced by the data-link facade.
type Indication struct {
	Kind  Kind
	Frame *frame.Frame
}

// Driver is the subset of *transceiver.Driver the facade depends on,
// narrowed for testability.
type Driver interface {
	Frames() <-chan *frame.Frame
	Send(ctx context.Context, f *frame.Frame) (transceiver.Confirmation, error)
}

// Link is the thin buffer between the transceiver driver and the network
// layer. Every transceiver-level frame is classified as Data and
// delivered on Indications(); SystemBroadcast and ServiceInformation
// distinctions are reserved for a future protocol extension. When
// busmonMode is enabled, a clone of every received frame is additionally
// offered to Busmon(), a separate passive tap consumed by the bus-monitor
// service; the clone is dropped when the pool has no free block or the
// tap channel is full. The network layer never sees Busmon traffic and
// does not need to filter it out itself.
type Link struct {
	driver     Driver
	busmonMode bool
	out        chan Indication
	busmon     chan Indication
}

// New wires a Link on top of driver.
func New(driver Driver, busmonMode bool, capacity int) *Link {
	return &Link{
		driver:     driver,
		busmonMode: busmonMode,
		out:        make(chan Indication, capacity),
		busmon:     make(chan Indication, capacity),
	}
}

// Indications returns the channel of Data indications for the network
// layer.
func (l *Link) Indications() <-chan Indication {
	return l.out
}

// Busmon returns the passive-tap channel, populated only when busmonMode
// was enabled at construction.
func (l *Link) Busmon() <-chan Indication {
	return l.busmon
}

// Run forwards frames from the driver until ctx is cancelled.
func (l *Link) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-l.driver.Frames():
			if !ok {
				return nil
			}
			l.publish(ctx, f)
		}
	}
}

func (l *Link) publish(ctx context.Context, f *frame.Frame) {
	if l.busmonMode {
		clone, err := f.Clone()
		if err == nil {
			select {
			case l.busmon <- Indication{Kind: Busmon, Frame: clone}:
			default:
				clone.Release()
			}
		}
	}
	select {
	case l.out <- Indication{Kind: Data, Frame: f}:
	case <-ctx.Done():
		f.Release()
	}
}

// Send submits f for transmission through the underlying driver.
func (l *Link) Send(ctx context.Context, f *frame.Frame) (transceiver.Confirmation, error) {
	return l.driver.Send(ctx, f)
}
