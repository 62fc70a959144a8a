// Package transceiver implements the byte-at-a-time UART protocol to the
// NCN5121-class line-coupler transceiver: start-of-frame detection,
// inter-byte silence timeouts, conditional acknowledgement of addressed
// frames, per-byte command framing for transmit, and the local
// L_Data.con confirmation path.
package transceiver

import (
	"context"
	"fmt"
	"time"

	"github.com/tarm/serial"

	"github.com/dawret/knxgw/internal/frame"
)

// Baud and framing required by the NCN5121-class transceiver.
const (
	BaudRate = 38400
	DataBits = 8
)

// interByteTimeout is the silence window that terminates a byte read: on
// receive it marks either end-of-frame or a resync point; on transmit it
// bounds how long we wait for the transceiver's echo.
const interByteTimeout = 2600 * time.Microsecond

// UART command bytes.
const (
	cmdAckReq     byte = 0x10
	ackFlagACK    byte = 0x01
	ackFlagBusy   byte = 0x02
	ackFlagNak    byte = 0x04
	cmdDataBase   byte = 0x80 // Start (i==0) / Cont (i>0): cmdDataBase | i
	cmdEndBase    byte = 0x40 // End (i==last): cmdEndBase | i

	lDataConMask    byte = 0x7F
	lDataConValue   byte = 0x0B
	lDataConSuccess byte = 0x80
)

// Port is the UART surface the driver needs. *serial.Port satisfies it;
// tests supply a fake that doesn't require real hardware.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Logger is the minimal structured-logging surface the driver depends on,
// satisfied by *logging.Logger and easy to fake in tests.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Open opens the serial device for the transceiver at 8E1, 38400 baud,
// with the per-byte read timeout the receive and transmit paths both
// depend on for inter-byte silence detection.
func Open(device string) (*serial.Port, error) {
	cfg := &serial.Config{
		Name:        device,
		Baud:        BaudRate,
		Size:        DataBits,
		Parity:      serial.ParityEven,
		StopBits:    serial.Stop1,
		ReadTimeout: interByteTimeout,
	}
	return serial.OpenPort(cfg)
}

// Confirmation is the outcome of a transmit attempt, reported through the
// local L_Data.con byte.
type Confirmation struct {
	OK  bool
	Err error
}

// sendRequest couples a frame to send with the one-shot channel its
// confirmation is delivered on.
type sendRequest struct {
	f    *frame.Frame
	done chan Confirmation
}

// Driver owns the UART and serves the receive and transmit duties
// receive and transmit are mutually exclusive on the
// wire, so both are driven from a single goroutine (Run) rather than two
// independently-scheduled ones.
type Driver struct {
	port    Port
	pool    *frame.Pool
	address frame.IndividualAddress
	logger  Logger

	rx chan *frame.Frame
	tx chan sendRequest
}

// New constructs a Driver. rxCapacity should match the link-layer inbound
// channel capacity; pool supplies the buffers inbound frames
// are parsed into.
func New(port Port, pool *frame.Pool, address frame.IndividualAddress, logger Logger, rxCapacity int) *Driver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Driver{
		port:    port,
		pool:    pool,
		address: address,
		logger:  logger,
		rx:      make(chan *frame.Frame, rxCapacity),
		tx:      make(chan sendRequest, rxCapacity),
	}
}

// Frames returns the channel inbound, successfully-parsed frames are
// published on. The data-link facade (internal/datalink) is the sole
// intended consumer.
func (d *Driver) Frames() <-chan *frame.Frame {
	return d.rx
}

// Send submits f for transmission and blocks until the transceiver's
// local confirmation is read back (or ctx is cancelled). Ownership of f
// passes to the driver; callers must not touch f again after calling Send
// except via the returned Confirmation.
func (d *Driver) Send(ctx context.Context, f *frame.Frame) (Confirmation, error) {
	req := sendRequest{f: f, done: make(chan Confirmation, 1)}
	select {
	case d.tx <- req:
	case <-ctx.Done():
		return Confirmation{}, ctx.Err()
	}
	select {
	case conf := <-req.done:
		return conf, nil
	case <-ctx.Done():
		return Confirmation{}, ctx.Err()
	}
}

// Run drives the receive/transmit loop until ctx is cancelled or the port
// returns a fatal error. It never sleeps except via UART reads and the
// inter-byte timeout: each iteration either services one pending transmit
// to completion, or polls for one inbound byte.
func (d *Driver) Run(ctx context.Context) error {
	defer d.port.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-d.tx:
			req.done <- d.sendFrame(req.f)
		default:
		}

		b, err := d.readByte()
		if err != nil {
			if err == ErrTimeout {
				continue
			}
			d.logger.Error("transceiver read failed", "error", err)
			continue
		}

		variant, ok := frame.ClassifyLeadByte(b)
		if !ok {
			d.logger.Debug("discarding non-frame-start byte", "byte", fmt.Sprintf("%#x", b))
			continue
		}
		if err := d.receiveFrame(b, variant); err != nil {
			d.logger.Warn("frame receive failed", "error", err)
		}
	}
}

// receiveFrame reads the remainder of a telegram after its lead byte has
// already identified the variant, acknowledging it before the payload is
// fully read if it is addressed to this node or any group.
func (d *Driver) receiveFrame(lead byte, variant frame.Variant) error {
	header := make([]byte, frame.HeaderRemainder(variant)+1)
	header[0] = lead
	if err := d.readFull(header[1:]); err != nil {
		return err
	}

	kind, dst := frame.HeaderDestination(variant, header)
	if kind == frame.Group || frame.IndividualAddress(dst) == d.address {
		if err := d.sendACK(); err != nil {
			d.logger.Warn("link-layer ACK failed", "error", err)
		}
	}

	total := frame.DeclaredTotalSize(variant, header)
	buf := make([]byte, total)
	copy(buf, header)
	n := len(header)
	for n < total {
		b, err := d.readByte()
		if err != nil {
			if err == ErrTimeout {
				break
			}
			return err
		}
		buf[n] = b
		n++
	}

	if n < frame.MinSize(variant) {
		d.dumpUntilSilence()
		return ErrShortFrame
	}

	f, err := frame.Parse(d.pool, buf[:n])
	if err != nil {
		d.dumpUntilSilence()
		return err
	}

	select {
	case d.rx <- f:
	default:
		f.Release()
		d.logger.Warn("link-layer inbound channel full, dropping frame")
	}
	return nil
}

// sendACK emits a link-layer ACK to the transceiver before the remainder
// of an addressed frame is consumed.
func (d *Driver) sendACK() error {
	_, err := d.port.Write([]byte{cmdAckReq | ackFlagACK})
	return err
}

// sendFrame serializes f to the transceiver using the NCN command
// vocabulary, reads back the per-byte echo, and validates the trailing
// L_Data.con confirmation.
func (d *Driver) sendFrame(f *frame.Frame) Confirmation {
	defer f.Release()
	data := f.Bytes()
	last := len(data) - 1

	for i, b := range data {
		cmd := cmdDataBase | byte(i) //nolint:gosec // i bounded by frame.MaxSize
		if i == last {
			cmd = cmdEndBase | byte(i) //nolint:gosec // i bounded by frame.MaxSize
		}
		if _, err := d.port.Write([]byte{cmd, b}); err != nil {
			return Confirmation{Err: err}
		}
	}

	echo := make([]byte, len(data))
	if err := d.readFull(echo); err != nil {
		return Confirmation{Err: err}
	}

	con, err := d.readByte()
	if err != nil {
		return Confirmation{Err: err}
	}
	if con&lDataConMask != lDataConValue {
		return Confirmation{Err: fmt.Errorf("%w: %#x", ErrInvalidConfirmation, con)}
	}
	return Confirmation{OK: con&lDataConSuccess != 0}
}

// readByte reads a single byte within the inter-byte timeout. A read that
// returns no bytes (the port's configured ReadTimeout elapsed) is reported
// as ErrTimeout rather than an I/O error.
func (d *Driver) readByte() (byte, error) {
	buf := make([]byte, 1)
	n, err := d.port.Read(buf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrTimeout
	}
	return buf[0], nil
}

// readFull reads exactly len(buf) bytes, one at a time, each within the
// inter-byte timeout.
func (d *Driver) readFull(buf []byte) error {
	for i := range buf {
		b, err := d.readByte()
		if err != nil {
			return err
		}
		buf[i] = b
	}
	return nil
}

// dumpUntilSilence discards bytes until a read times out, resynchronizing
// after a malformed or undersized frame.
func (d *Driver) dumpUntilSilence() {
	for {
		if _, err := d.readByte(); err == ErrTimeout {
			return
		} else if err != nil {
			return
		}
	}
}
