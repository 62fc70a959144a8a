package application

import (
	"context"
	"testing"
	"time"

	"github.com/dawret/knxgw/internal/datapoint"
	"github.com/dawret/knxgw/internal/frame"
	"github.com/dawret/knxgw/internal/transceiver"
	"github.com/dawret/knxgw/internal/transport"
)

type fakeTransport struct {
	in   chan transport.Indication
	sent []frame.GroupAddress
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan transport.Indication, 8)}
}

func (f *fakeTransport) Indications() <-chan transport.Indication { return f.in }

func (f *fakeTransport) SendGroupData(_ context.Context, dest frame.GroupAddress, fr *frame.Frame) (transceiver.Confirmation, error) {
	f.sent = append(f.sent, dest)
	fr.Release()
	return transceiver.Confirmation{OK: true}, nil
}

type fakeTable struct {
	asap map[frame.GroupAddress]uint8
}

func (t *fakeTable) ASAP(g frame.GroupAddress) (uint8, bool) {
	v, ok := t.asap[g]
	return v, ok
}

func groupFrame(t *testing.T, pool *frame.Pool, apciShort uint8) *frame.Frame {
	t.Helper()
	f, err := frame.New(pool, frame.Standard, 9)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	f.SetSourceAddress(frame.NewIndividualAddress(1, 1, 10))
	f.SetDestinationGroup(frame.NewGroupAddress(1, 1, 98))
	f.SetAPCIShort(apciShort)
	f.SetChecksum()
	return f
}

func TestDecodeGroupValueRead(t *testing.T) {
	pool := frame.NewPool(8)
	tr := newFakeTransport()
	table := &fakeTable{asap: map[frame.GroupAddress]uint8{frame.NewGroupAddress(1, 1, 98): 42}}
	facade := New(tr, pool, table, nil, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go facade.Run(ctx)

	tr.in <- transport.Indication{Kind: transport.DataGroup, Frame: groupFrame(t, pool, apciGroupValueRead)}

	select {
	case ind := <-facade.Indications():
		if ind.Kind != GroupValueRead {
			t.Errorf("Kind = %v, want GroupValueRead", ind.Kind)
		}
		if ind.ASAP != 42 {
			t.Errorf("ASAP = %d, want 42", ind.ASAP)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestDecodeGroupValueWrite(t *testing.T) {
	pool := frame.NewPool(8)
	tr := newFakeTransport()
	facade := New(tr, pool, nil, nil, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go facade.Run(ctx)

	tr.in <- transport.Indication{Kind: transport.DataGroup, Frame: groupFrame(t, pool, apciGroupValueWrite)}

	select {
	case ind := <-facade.Indications():
		if ind.Kind != GroupValueWrite {
			t.Errorf("Kind = %v, want GroupValueWrite", ind.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestRespondSendsGroupValueResponse(t *testing.T) {
	pool := frame.NewPool(8)
	tr := newFakeTransport()
	facade := New(tr, pool, nil, nil, 4)

	group := frame.NewGroupAddress(1, 1, 98)
	conf, err := facade.Respond(context.Background(), group, datapoint.Bool(true))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !conf.OK {
		t.Error("conf.OK = false, want true")
	}
	if len(tr.sent) != 1 || tr.sent[0] != group {
		t.Errorf("sent = %v, want [%v]", tr.sent, group)
	}
}
