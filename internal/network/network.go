// Package network classifies data-link indications by destination address
// kind and forwards outbound requests to the link layer unchanged.
package network

import (
	"context"

	"github.com/dawret/knxgw/internal/datalink"
	"github.com/dawret/knxgw/internal/frame"
	"github.com/dawret/knxgw/internal/transceiver"
)

// Kind tags the four indication shapes the network layer produces for the
// transport layer above it.
type Kind uint8

const (
	DataIndividual Kind = iota
	DataBroadcast
	DataGroup
	DataSystemBroadcast
)

func (k Kind) String() string {
	switch k {
	case DataIndividual:
		return "data-individual"
	case DataBroadcast:
		return "data-broadcast"
	case DataGroup:
		return "data-group"
	case DataSystemBroadcast:
		return "data-system-broadcast"
	default:
		return "unknown"
	}
}

// Indication is one classified event delivered to the transport layer.
type Indication struct {
	Kind  Kind
	Frame *frame.Frame
}

// Link is the subset of *datalink.Link the network layer depends on.
type Link interface {
	Indications() <-chan datalink.Indication
	Send(ctx context.Context, f *frame.Frame) (transceiver.Confirmation, error)
}

// Network classifies inbound Data indications from the link layer and
// passes outbound requests straight through, with no field rewriting:
// that rewriting is the transport layer's job.
type Network struct {
	link Link
	out  chan Indication
}

// New wires a Network on top of link.
func New(link Link, capacity int) *Network {
	return &Network{link: link, out: make(chan Indication, capacity)}
}

// Indications returns the channel of classified Indications.
func (n *Network) Indications() <-chan Indication {
	return n.out
}

// Run classifies indications from the link layer until ctx is cancelled.
// Only Data indications carry a destination to classify; SystemBroadcast,
// Busmon, and ServiceInformation indications never reach this channel
// (Busmon is tapped separately off the link layer) so there is
// nothing to filter here beyond ignoring any non-Data kind defensively.
func (n *Network) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ind, ok := <-n.link.Indications():
			if !ok {
				return nil
			}
			if ind.Kind != datalink.Data {
				ind.Frame.Release()
				continue
			}
			n.classify(ctx, ind.Frame)
		}
	}
}

func (n *Network) classify(ctx context.Context, f *frame.Frame) {
	kind := DataIndividual
	if f.AddressKind() == frame.Group {
		if f.DestinationGroup().IsBroadcast() {
			kind = DataBroadcast
		} else {
			kind = DataGroup
		}
	}
	select {
	case n.out <- Indication{Kind: kind, Frame: f}:
	case <-ctx.Done():
		f.Release()
	}
}

// SendGroup dispatches f unchanged through the link layer; the
// transport layer owns any address rewriting before calling this.
func (n *Network) SendGroup(ctx context.Context, f *frame.Frame) (transceiver.Confirmation, error) {
	return n.link.Send(ctx, f)
}

// SendIndividual dispatches an individual-addressed or system-broadcast
// frame unchanged through the link layer.
func (n *Network) SendIndividual(ctx context.Context, f *frame.Frame) (transceiver.Confirmation, error) {
	return n.link.Send(ctx, f)
}
