package frame

import "errors"

// Sentinel errors for the frame codec, compared with errors.Is and wrapped
// with %w by callers that add context (offset, offending byte, peer).
var (
	// ErrInvalidLength is returned when a declared or requested frame size
	// falls outside the bounds of its variant, or the declared length field
	// does not match the number of bytes actually present.
	ErrInvalidLength = errors.New("frame: invalid length")

	// ErrOutOfMemory is returned when the buffer pool has no free buffers.
	ErrOutOfMemory = errors.New("frame: buffer pool exhausted")

	// ErrChecksum is returned when the trailing checksum byte does not
	// match the bitwise-NOT of the XOR of the preceding bytes.
	ErrChecksum = errors.New("frame: checksum mismatch")

	// ErrInvalidTPDU is returned by upper layers when a TPCI byte does not
	// match any recognised pattern.
	ErrInvalidTPDU = errors.New("frame: invalid tpdu")
)
