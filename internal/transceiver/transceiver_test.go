package transceiver

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dawret/knxgw/internal/frame"
)

// fakePort is an in-memory Port: reads are served from a preloaded
// queue of "chunks" (one chunk per expected Read call, empty chunk means
// a timeout), writes are recorded for assertions.
type fakePort struct {
	mu      sync.Mutex
	reads   [][]byte
	writes  [][]byte
	closed  bool
}

func (p *fakePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.reads) == 0 {
		return 0, nil
	}
	chunk := p.reads[0]
	p.reads = p.reads[1:]
	if len(chunk) == 0 {
		return 0, nil
	}
	n := copy(buf, chunk)
	return n, nil
}

func (p *fakePort) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	p.writes = append(p.writes, cp)
	return len(buf), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// queueBytes turns a byte slice into one read-chunk per byte, matching
// the driver's one-byte-at-a-time reads.
func queueBytes(data []byte) [][]byte {
	chunks := make([][]byte, len(data))
	for i, b := range data {
		chunks[i] = []byte{b}
	}
	return chunks
}

func groupValueReadBytes() []byte {
	b := []byte{0xBC, 0x11, 0x0A, 0x09, 0x62, 0xE1, 0x00, 0x00, 0x00}
	chk := byte(0xFF)
	for _, x := range b[:len(b)-1] {
		chk ^= x
	}
	b[len(b)-1] = chk
	return b
}

func TestDriverReceivesAddressedGroupFrame(t *testing.T) {
	data := groupValueReadBytes() // dest 1/1/98, a group address: ACK expected
	port := &fakePort{reads: queueBytes(data)}
	pool := frame.NewPool(4)
	addr := frame.NewIndividualAddress(1, 1, 1)
	d := New(port, pool, addr, nil, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go d.Run(ctx)

	select {
	case f := <-d.Frames():
		defer f.Release()
		if f.DestinationGroup().String() != "1/1/98" {
			t.Errorf("got dest %s, want 1/1/98", f.DestinationGroup().String())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for received frame")
	}

	port.mu.Lock()
	defer port.mu.Unlock()
	if len(port.writes) == 0 {
		t.Fatal("expected an ACK write for a group-addressed frame, got none")
	}
	if port.writes[0][0] != cmdAckReq|ackFlagACK {
		t.Errorf("ACK byte = %#x, want %#x", port.writes[0][0], cmdAckReq|ackFlagACK)
	}
}

func TestDriverDropsShortFrame(t *testing.T) {
	// Standard lead byte followed immediately by silence: never reaches
	// the minimum size.
	port := &fakePort{reads: append(queueBytes([]byte{0xBC, 0x11}), nil, nil, nil, nil, nil)}
	pool := frame.NewPool(4)
	addr := frame.NewIndividualAddress(1, 1, 1)
	d := New(port, pool, addr, nil, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	select {
	case <-d.Frames():
		t.Fatal("expected no frame delivered for an undersized capture")
	default:
	}
}

func TestSendFrameCommandSequence(t *testing.T) {
	pool := frame.NewPool(4)
	addr := frame.NewIndividualAddress(1, 1, 1)
	data := groupValueReadBytes()

	echo := append([]byte{}, data...)
	con := []byte{lDataConValue | lDataConSuccess}
	port := &fakePort{reads: queueBytes(append(echo, con...))}
	d := New(port, pool, addr, nil, 4)

	f, err := frame.Parse(pool, data)
	if err != nil {
		t.Fatalf("frame.Parse: %v", err)
	}

	conf := d.sendFrame(f)
	if conf.Err != nil {
		t.Fatalf("sendFrame error: %v", conf.Err)
	}
	if !conf.OK {
		t.Error("conf.OK = false, want true")
	}

	port.mu.Lock()
	defer port.mu.Unlock()
	if len(port.writes) != len(data) {
		t.Fatalf("got %d writes, want %d", len(port.writes), len(data))
	}
	for i, w := range port.writes {
		wantCmd := cmdDataBase | byte(i)
		if i == len(data)-1 {
			wantCmd = cmdEndBase | byte(i)
		}
		if !bytes.Equal(w, []byte{wantCmd, data[i]}) {
			t.Errorf("write[%d] = %#v, want [%#x %#x]", i, w, wantCmd, data[i])
		}
	}
}

func TestSendFrameRejectsBadConfirmation(t *testing.T) {
	pool := frame.NewPool(4)
	addr := frame.NewIndividualAddress(1, 1, 1)
	data := groupValueReadBytes()

	echo := append([]byte{}, data...)
	con := []byte{0x7F} // low 7 bits != lDataConValue
	port := &fakePort{reads: queueBytes(append(echo, con...))}
	d := New(port, pool, addr, nil, 4)

	f, err := frame.Parse(pool, data)
	if err != nil {
		t.Fatalf("frame.Parse: %v", err)
	}

	conf := d.sendFrame(f)
	if conf.Err == nil {
		t.Fatal("expected error for malformed confirmation byte")
	}
}
