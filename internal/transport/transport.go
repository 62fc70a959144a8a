// Package transport implements the KNX transport layer: the TPCI decode
// for connectionless group/broadcast traffic, and the four-state
// connection-oriented state machine for individual-address peer-to-peer
// sessions. All connection-state mutation happens inside Run's own
// goroutine; nothing else touches it, so there is no lock around it.
package transport

import (
	"context"
	"time"

	"github.com/dawret/knxgw/internal/frame"
	"github.com/dawret/knxgw/internal/network"
	"github.com/dawret/knxgw/internal/transceiver"
)

// State is one of the four connection states of the transport state machine.
type State uint8

const (
	Closed State = iota
	OpenIdle
	OpenWait
	Connecting // reserved: no transition in this profile enters it directly.
)

func (s State) String() string {
	switch s {
	case OpenIdle:
		return "open-idle"
	case OpenWait:
		return "open-wait"
	case Connecting:
		return "connecting"
	default:
		return "closed"
	}
}

// inactivityTimeout tears a connection down when nothing is heard from
// the peer for this long.
const inactivityTimeout = 6 * time.Second

// maxRepeats bounds how many times a NAK'd send is retried before the
// connection is abandoned.
const maxRepeats = 3

// Kind tags the indications the transport layer surfaces to the
// application facade.
type Kind uint8

const (
	DataGroup Kind = iota
	DataTagGroup
	DataBroadcast
	DataSystemBroadcast
	DataIndividual
	DataConnected
	Connect
	Disconnect
)

func (k Kind) String() string {
	switch k {
	case DataGroup:
		return "data-group"
	case DataTagGroup:
		return "data-tag-group"
	case DataBroadcast:
		return "data-broadcast"
	case DataSystemBroadcast:
		return "data-system-broadcast"
	case DataIndividual:
		return "data-individual"
	case DataConnected:
		return "data-connected"
	case Connect:
		return "connect"
	case Disconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Indication is one event delivered to the application facade.
type Indication struct {
	Kind  Kind
	Peer  frame.IndividualAddress
	Frame *frame.Frame // nil for Connect/Disconnect
}

// Network is the subset of *network.Network the transport layer depends
// on.
type Network interface {
	Indications() <-chan network.Indication
	SendGroup(ctx context.Context, f *frame.Frame) (transceiver.Confirmation, error)
	SendIndividual(ctx context.Context, f *frame.Frame) (transceiver.Confirmation, error)
}

// Logger is the minimal structured-logging surface the transport layer
// depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// connection holds the single peer-to-peer session this node can have
// open at a time.
type connection struct {
	state      State
	peer       frame.IndividualAddress
	seqSend    uint8
	seqRecv    uint8
	repCount   int
	lastSent   *frame.Frame
	hasPeer    bool
}

// Transport is the transport-layer event loop.
type Transport struct {
	net     Network
	pool    *frame.Pool
	address frame.IndividualAddress
	logger  Logger

	out  chan Indication
	conn connection

	inactivity *time.Timer
}

// New wires a Transport on top of net. address is this node's individual
// address, used as the source of every control frame the state machine
// emits.
func New(net Network, pool *frame.Pool, address frame.IndividualAddress, logger Logger, capacity int) *Transport {
	if logger == nil {
		logger = noopLogger{}
	}
	timer := time.NewTimer(inactivityTimeout)
	timer.Stop()
	return &Transport{
		net:        net,
		pool:       pool,
		address:    address,
		logger:     logger,
		out:        make(chan Indication, capacity),
		inactivity: timer,
	}
}

// Indications returns the channel of outbound Indications.
func (t *Transport) Indications() <-chan Indication {
	return t.out
}

// Run processes network-layer indications and the inactivity timer until
// ctx is cancelled. Exactly one event is processed per iteration, which
// is what keeps connection-state mutation single-threaded.
func (t *Transport) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if t.conn.lastSent != nil {
				t.conn.lastSent.Release()
			}
			return ctx.Err()
		case <-t.inactivity.C:
			if t.conn.state != Closed {
				t.logger.Debug("transport inactivity timeout, tearing down connection", "peer", t.conn.peer.String())
				t.actionA6(ctx)
			}
		case ind, ok := <-t.net.Indications():
			if !ok {
				return nil
			}
			t.handle(ctx, ind)
		}
	}
}

func (t *Transport) handle(ctx context.Context, ind network.Indication) {
	switch ind.Kind {
	case network.DataBroadcast:
		t.handleBroadcast(ctx, ind.Frame)
	case network.DataGroup:
		t.handleGroup(ctx, ind.Frame)
	case network.DataSystemBroadcast:
		t.surface(ctx, Indication{Kind: DataSystemBroadcast, Frame: ind.Frame})
	case network.DataIndividual:
		t.handleIndividual(ctx, ind.Frame)
	default:
		ind.Frame.Release()
	}
}

func (t *Transport) handleBroadcast(ctx context.Context, f *frame.Frame) {
	if sixBitTPCI(f.TPCI()) != 0 {
		t.logger.Warn("invalid TPCI on broadcast frame", "tpci", f.TPCI())
		f.Release()
		return
	}
	t.surface(ctx, Indication{Kind: DataBroadcast, Frame: f})
}

func (t *Transport) handleGroup(ctx context.Context, f *frame.Frame) {
	switch sixBitTPCI(f.TPCI()) {
	case 0:
		t.surface(ctx, Indication{Kind: DataGroup, Frame: f})
	case 1:
		t.surface(ctx, Indication{Kind: DataTagGroup, Frame: f})
	default:
		t.logger.Warn("invalid TPCI on group frame", "tpci", f.TPCI())
		f.Release()
	}
}

func (t *Transport) handleIndividual(ctx context.Context, f *frame.Frame) {
	src := f.SourceAddress()
	kind, seq := decodeTPCI(f.TPCI())
	switch kind {
	case tpduConnectionless:
		t.surface(ctx, Indication{Kind: DataIndividual, Peer: src, Frame: f})
	case tpduConnect:
		t.handleConnect(ctx, src)
		f.Release()
	case tpduDisconnect:
		t.handleDisconnect(ctx, src)
		f.Release()
	case tpduConnected:
		t.handleConnectedData(ctx, src, seq, f)
	case tpduAck:
		t.handleAck(ctx, src, seq)
		f.Release()
	case tpduNak:
		t.handleNak(ctx, src, seq)
		f.Release()
	default:
		t.logger.Warn("invalid TPCI on individual frame", "tpci", f.TPCI())
		f.Release()
	}
}

func (t *Transport) surface(ctx context.Context, ind Indication) {
	select {
	case t.out <- ind:
	case <-ctx.Done():
		if ind.Frame != nil {
			ind.Frame.Release()
		}
	}
}

// --- connection-oriented dispatch ---

func (t *Transport) handleConnect(ctx context.Context, src frame.IndividualAddress) {
	if t.conn.state == Closed {
		t.actionA1(ctx, src)
		return
	}
	if t.conn.hasPeer && src == t.conn.peer {
		t.actionA6(ctx)
		return
	}
	t.actionA10(ctx, src)
}

func (t *Transport) handleDisconnect(ctx context.Context, src frame.IndividualAddress) {
	if !t.conn.hasPeer || src != t.conn.peer {
		return
	}
	if t.conn.state == Closed {
		return
	}
	t.actionA5(ctx)
}

func (t *Transport) handleConnectedData(ctx context.Context, src frame.IndividualAddress, seq uint8, f *frame.Frame) {
	if t.conn.state == Closed || !t.conn.hasPeer || src != t.conn.peer {
		t.actionA10(ctx, src)
		f.Release()
		return
	}
	switch {
	case seq == t.conn.seqRecv:
		t.actionA2(ctx, f)
	case seq == mod16(int(t.conn.seqRecv)-1):
		t.actionA3(ctx, seq)
		f.Release()
	default:
		f.Release() // out-of-sequence: silently dropped
	}
}

func (t *Transport) handleAck(ctx context.Context, src frame.IndividualAddress, seq uint8) {
	if t.conn.state != OpenWait || !t.conn.hasPeer || src != t.conn.peer {
		if !t.conn.hasPeer || src != t.conn.peer {
			t.actionA10(ctx, src)
		}
		return
	}
	if seq == t.conn.seqSend {
		t.actionA8(ctx)
	}
}

func (t *Transport) handleNak(ctx context.Context, src frame.IndividualAddress, seq uint8) {
	if t.conn.state != OpenWait || !t.conn.hasPeer || src != t.conn.peer {
		if !t.conn.hasPeer || src != t.conn.peer {
			t.actionA10(ctx, src)
		}
		return
	}
	if seq != t.conn.seqSend {
		return
	}
	if t.conn.repCount < maxRepeats {
		t.actionA9(ctx)
		return
	}
	t.actionDisconnectExhausted(ctx)
}

// --- actions ---

func (t *Transport) actionA1(ctx context.Context, peer frame.IndividualAddress) {
	t.conn = connection{state: OpenIdle, peer: peer, hasPeer: true}
	t.armInactivity()
	t.surface(ctx, Indication{Kind: Connect, Peer: peer})
}

func (t *Transport) actionA2(ctx context.Context, f *frame.Frame) {
	t.sendControl(ctx, t.conn.peer, tpciAck(t.conn.seqRecv))
	t.armInactivity()
	t.conn.seqRecv = mod16(int(t.conn.seqRecv) + 1)
	t.surface(ctx, Indication{Kind: DataConnected, Peer: t.conn.peer, Frame: f})
}

func (t *Transport) actionA3(ctx context.Context, seq uint8) {
	t.sendControl(ctx, t.conn.peer, tpciAck(seq))
	t.armInactivity()
}

// actionA4 sends a T_NAK to the peer. The event table in this profile
// never drives it directly (malformed connected-data TPDUs are dropped
// rather than NAK'd), but it is kept available for a future
// extension that needs to signal a receive-side failure explicitly.
func (t *Transport) actionA4(ctx context.Context, seq uint8) { //nolint:unused
	t.sendControl(ctx, t.conn.peer, tpciNak(seq))
	t.disarmInactivity()
}

func (t *Transport) actionA5(ctx context.Context) {
	t.disarmInactivity()
	peer := t.conn.peer
	t.resetConnection()
	t.surface(ctx, Indication{Kind: Disconnect, Peer: peer})
}

func (t *Transport) actionA6(ctx context.Context) {
	peer := t.conn.peer
	t.sendControl(ctx, peer, tpciDisconnect)
	t.disarmInactivity()
	t.resetConnection()
	t.surface(ctx, Indication{Kind: Disconnect, Peer: peer})
}

func (t *Transport) actionA7(ctx context.Context, payload *frame.Frame) (transceiver.Confirmation, error) {
	payload.SetSourceAddress(t.address)
	payload.SetDestinationIndividual(t.conn.peer)
	payload.SetHopCount(7)
	payload.SetTPCI(tpciConnectedData(t.conn.seqSend))
	payload.SetChecksum()

	clone, err := payload.Clone()
	if err != nil {
		return transceiver.Confirmation{}, err
	}
	if t.conn.lastSent != nil {
		t.conn.lastSent.Release()
	}
	t.conn.lastSent = clone
	t.conn.repCount = 0
	t.conn.state = OpenWait
	t.armInactivity()
	return t.net.SendIndividual(ctx, payload)
}

func (t *Transport) actionA8(ctx context.Context) {
	t.conn.seqSend = mod16(int(t.conn.seqSend) + 1)
	t.conn.state = OpenIdle
	if t.conn.lastSent != nil {
		t.conn.lastSent.Release()
		t.conn.lastSent = nil
	}
	t.armInactivity()
}

func (t *Transport) actionA9(ctx context.Context) {
	t.conn.repCount++
	t.armInactivity()
	if t.conn.lastSent == nil {
		return
	}
	resend, err := t.conn.lastSent.Clone()
	if err != nil {
		t.logger.Warn("failed to clone frame for retransmission", "error", err)
		return
	}
	if _, err := t.net.SendIndividual(ctx, resend); err != nil {
		t.logger.Warn("retransmission failed", "error", err)
	}
}

func (t *Transport) actionA10(ctx context.Context, src frame.IndividualAddress) {
	t.sendControl(ctx, src, tpciDisconnect)
}

func (t *Transport) actionDisconnectExhausted(ctx context.Context) {
	peer := t.conn.peer
	t.disarmInactivity()
	t.resetConnection()
	t.surface(ctx, Indication{Kind: Disconnect, Peer: peer})
}

// sendControl builds and transmits a TPCI-only standard frame (no APCI),
// used for T_Connect's replies, T_Ack, T_Nak, and T_Disconnect.
func (t *Transport) sendControl(ctx context.Context, dest frame.IndividualAddress, tpci byte) {
	f, err := frame.New(t.pool, frame.Standard, frame.MinSize(frame.Standard))
	if err != nil {
		t.logger.Warn("failed to allocate control frame", "error", err)
		return
	}
	f.SetSourceAddress(t.address)
	f.SetDestinationIndividual(dest)
	f.SetHopCount(7)
	f.SetTPCI(tpci)
	f.SetChecksum()
	if _, err := t.net.SendIndividual(ctx, f); err != nil {
		t.logger.Warn("failed to send control frame", "error", err)
	}
}

func (t *Transport) resetConnection() {
	if t.conn.lastSent != nil {
		t.conn.lastSent.Release()
	}
	t.conn = connection{state: Closed}
}

func (t *Transport) armInactivity() {
	t.disarmInactivity()
	t.inactivity.Reset(inactivityTimeout)
}

func (t *Transport) disarmInactivity() {
	if !t.inactivity.Stop() {
		select {
		case <-t.inactivity.C:
		default:
		}
	}
}

func mod16(v int) uint8 {
	return uint8(((v % 16) + 16) % 16)
}

// SendGroupData rewrites source/dest/hop count on f per the transport layer's "outbound group
// send", recomputes the checksum, and dispatches it through the network
// layer; the TPCI byte is left as the caller built it. Called by the
// application facade to answer GroupValueRead/emit GroupValueWrite.
func (t *Transport) SendGroupData(ctx context.Context, dest frame.GroupAddress, f *frame.Frame) (transceiver.Confirmation, error) {
	f.SetSourceAddress(t.address)
	f.SetDestinationGroup(dest)
	f.SetHopCount(7)
	f.SetChecksum()
	return t.net.SendGroup(ctx, f)
}

// SendConnectedData sends payload to the currently open peer as connected
// data (action A7). The connection must be OpenIdle: no connection, or a
// send already awaiting acknowledgement, is rejected.
func (t *Transport) SendConnectedData(ctx context.Context, payload *frame.Frame) (transceiver.Confirmation, error) {
	if t.conn.state != OpenIdle {
		payload.Release()
		return transceiver.Confirmation{}, frame.ErrInvalidTPDU
	}
	return t.actionA7(ctx, payload)
}

// State reports the current connection state, for diagnostics and tests.
func (t *Transport) State() State {
	return t.conn.state
}
