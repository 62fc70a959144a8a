package transceiver

import "errors"

var (
	// ErrTimeout is returned internally when a read does not complete
	// within the inter-byte silence window; the driver loop treats it as
	// "nothing arrived this tick", not a fatal condition.
	ErrTimeout = errors.New("transceiver: read timeout")

	// ErrShortFrame is returned when the UART goes silent before the
	// minimum-sized frame for the variant has been received.
	ErrShortFrame = errors.New("transceiver: frame shorter than minimum size")

	// ErrInvalidConfirmation is returned when the byte following a
	// transmitted frame does not carry the expected L_Data.con marker in
	// its low 7 bits.
	ErrInvalidConfirmation = errors.New("transceiver: invalid L_Data.con marker")

	// ErrClosed is returned by Send when the driver has stopped.
	ErrClosed = errors.New("transceiver: driver closed")
)
