package gateway

import (
	"context"
	"sync"
	"testing"

	"github.com/dawret/knxgw/internal/datalink"
	"github.com/dawret/knxgw/internal/frame"
)

func checksum(body []byte) byte {
	var x byte
	for _, b := range body {
		x ^= b
	}
	return ^x
}

func groupValueReadFrame(t *testing.T, pool *frame.Pool) *frame.Frame {
	t.Helper()
	body := []byte{0xBC, 0x11, 0x0A, 0x09, 0x62, 0xE1, 0x00, 0x00}
	data := append(body, checksum(body))
	f, err := frame.Parse(pool, data)
	if err != nil {
		t.Fatalf("frame.Parse() error = %v", err)
	}
	return f
}

type fakeBusSource struct {
	ch chan datalink.Indication
}

func (s fakeBusSource) Busmon() <-chan datalink.Indication { return s.ch }

type fakeBusmonLogger struct {
	mu    sync.Mutex
	calls int
}

func (l *fakeBusmonLogger) Info(string, ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
}

func TestBusMonitorLogsFrame(t *testing.T) {
	pool := frame.NewPool(2)
	source := fakeBusSource{ch: make(chan datalink.Indication, 1)}
	logger := &fakeBusmonLogger{}
	monitor := NewBusMonitor(source, logger)

	source.ch <- datalink.Indication{Kind: datalink.Busmon, Frame: groupValueReadFrame(t, pool)}
	close(source.ch)

	if err := monitor.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if logger.calls != 1 {
		t.Errorf("logger calls = %d, want 1", logger.calls)
	}
	if got, want := pool.Available(), 2; got != want {
		t.Errorf("pool.Available() = %d, want %d (frame should be released)", got, want)
	}
}

func TestBusMonitorNilLoggerDoesNotPanic(t *testing.T) {
	pool := frame.NewPool(2)
	source := fakeBusSource{ch: make(chan datalink.Indication, 1)}
	monitor := NewBusMonitor(source, nil)

	source.ch <- datalink.Indication{Kind: datalink.Busmon, Frame: groupValueReadFrame(t, pool)}
	close(source.ch)

	if err := monitor.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestBusMonitorRunExitsOnContextCancel(t *testing.T) {
	source := fakeBusSource{ch: make(chan datalink.Indication)}
	monitor := NewBusMonitor(source, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := monitor.Run(ctx); err == nil {
		t.Fatal("Run() expected error from cancelled context")
	}
}
