// Package application implements the application-layer facade: APCI
// decoding on inbound group/individual data indications, and building
// GroupValueResponse frames to answer reads from the upper boundary.
package application

import (
	"context"

	"github.com/dawret/knxgw/internal/frame"
	"github.com/dawret/knxgw/internal/transceiver"
	"github.com/dawret/knxgw/internal/transport"
)

// APCI short-form service codes this facade understands.
const (
	apciGroupValueRead     = 0
	apciGroupValueResponse = 1
	apciGroupValueWrite    = 2
)

// Kind tags the three group-value services surfaced upward.
type Kind uint8

const (
	GroupValueRead Kind = iota
	GroupValueResponse
	GroupValueWrite
)

func (k Kind) String() string {
	switch k {
	case GroupValueResponse:
		return "group-value-response"
	case GroupValueWrite:
		return "group-value-write"
	default:
		return "group-value-read"
	}
}

// Indication is one decoded application-layer event. Group and Source are
// populated depending on whether the underlying transport indication was
// group- or individual-addressed; ASAP is resolved via the AddressTable
// for group traffic and is the zero value otherwise. ShortData and Data
// carry the payload for Response/Write; Read carries no payload.
type Indication struct {
	Kind      Kind
	Group     frame.GroupAddress
	Source    frame.IndividualAddress
	ASAP      uint8
	ShortData uint8
	Data      []byte
}

// AddressTable maps a group address to the ASAP identifier the upper
// boundary configured for it. The facade treats
// a miss as "no ASAP known" rather than an error: the indication still
// surfaces so it can be logged/audited.
type AddressTable interface {
	ASAP(group frame.GroupAddress) (uint8, bool)
}

// Transport is the subset of *transport.Transport the facade depends on.
type Transport interface {
	Indications() <-chan transport.Indication
	SendGroupData(ctx context.Context, dest frame.GroupAddress, f *frame.Frame) (transceiver.Confirmation, error)
}

// Logger is the minimal structured-logging surface the facade depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// responsePriority is the bus-access priority used for GroupValueResponse
// frames built by Respond: real KNX group communication conventionally
// runs at low priority, reserving system/urgent for bus-management and
// alarm traffic.
const responsePriority = frame.PriorityLow

// responseHopCount is the default hop count for locally-originated group
// frames.
const responseHopCount = 7

// Facade is the application-layer event loop.
type Facade struct {
	transport Transport
	pool      *frame.Pool
	addresses AddressTable
	logger    Logger
	out       chan Indication
}

// New wires a Facade on top of tr. addresses may be nil, in which case
// ASAP is never resolved for group traffic.
func New(tr Transport, pool *frame.Pool, addresses AddressTable, logger Logger, capacity int) *Facade {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Facade{transport: tr, pool: pool, addresses: addresses, logger: logger, out: make(chan Indication, capacity)}
}

// Indications returns the channel of decoded application-layer events.
func (a *Facade) Indications() <-chan Indication {
	return a.out
}

// Run decodes transport indications until ctx is cancelled.
func (a *Facade) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ind, ok := <-a.transport.Indications():
			if !ok {
				return nil
			}
			a.handle(ctx, ind)
		}
	}
}

func (a *Facade) handle(ctx context.Context, ind transport.Indication) {
	switch ind.Kind {
	case transport.DataGroup, transport.DataTagGroup:
		a.decodeGroup(ctx, ind.Frame)
	case transport.DataIndividual, transport.DataConnected:
		a.decodeIndividual(ctx, ind)
	default:
		if ind.Frame != nil {
			ind.Frame.Release()
		}
	}
}

func (a *Facade) decodeGroup(ctx context.Context, f *frame.Frame) {
	defer f.Release()
	if !f.HasAPCI() {
		a.logger.Warn("group frame without APCI, dropping")
		return
	}
	group := f.DestinationGroup()
	asap, _ := a.resolveASAP(group)
	a.publish(ctx, decodeService(f, group, 0, asap))
}

func (a *Facade) decodeIndividual(ctx context.Context, ind transport.Indication) {
	f := ind.Frame
	defer f.Release()
	if !f.HasAPCI() {
		a.logger.Warn("individual data frame without APCI, dropping")
		return
	}
	a.publish(ctx, decodeService(f, 0, ind.Peer, 0))
}

func decodeService(f *frame.Frame, group frame.GroupAddress, source frame.IndividualAddress, asap uint8) Indication {
	ind := Indication{Group: group, Source: source, ASAP: asap}
	switch f.APCIShort() {
	case apciGroupValueResponse:
		ind.Kind = GroupValueResponse
	case apciGroupValueWrite:
		ind.Kind = GroupValueWrite
	default:
		ind.Kind = GroupValueRead
	}
	if ind.Kind != GroupValueRead {
		ind.ShortData = f.APCIShortData()
		if data := f.ApplicationData(); len(data) > 0 {
			ind.Data = append([]byte(nil), data...)
		}
	}
	return ind
}

func (a *Facade) resolveASAP(group frame.GroupAddress) (uint8, bool) {
	if a.addresses == nil {
		return 0, false
	}
	return a.addresses.ASAP(group)
}

func (a *Facade) publish(ctx context.Context, ind Indication) {
	select {
	case a.out <- ind:
	case <-ctx.Done():
	}
}

// Respond answers a GroupValueRead by building a GroupValueResponse frame
// from dp and dispatching it through the transport layer.
func (a *Facade) Respond(ctx context.Context, group frame.GroupAddress, dp frame.DataPoint) (transceiver.Confirmation, error) {
	f, err := frame.FromDataPoint(a.pool, dp)
	if err != nil {
		return transceiver.Confirmation{}, err
	}
	f.SetAPCIShort(apciGroupValueResponse)
	f.SetPriority(responsePriority)
	f.SetHopCount(responseHopCount)
	return a.transport.SendGroupData(ctx, group, f)
}

// Write emits a GroupValueWrite frame carrying dp's value to group.
func (a *Facade) Write(ctx context.Context, group frame.GroupAddress, dp frame.DataPoint) (transceiver.Confirmation, error) {
	f, err := frame.FromDataPoint(a.pool, dp)
	if err != nil {
		return transceiver.Confirmation{}, err
	}
	f.SetAPCIShort(apciGroupValueWrite)
	f.SetPriority(responsePriority)
	f.SetHopCount(responseHopCount)
	return a.transport.SendGroupData(ctx, group, f)
}
