// Package frame implements the KNX TP1 standard and extended telegram
// codec: header layout, control/APCI/TPCI bit fields, checksum, and a
// discriminated-union facade over the two frame variants backed by a
// pre-sized buffer pool.
package frame

import "encoding/binary"

// Variant distinguishes the two on-wire telegram shapes. They share a
// frame-type bit but differ in header offsets and maximum payload size.
type Variant uint8

const (
	Standard Variant = iota
	Extended
)

func (v Variant) String() string {
	if v == Extended {
		return "extended"
	}
	return "standard"
}

// Priority is the 2-bit bus-access priority carried in control byte 1.
type Priority uint8

const (
	PrioritySystem Priority = 0x0
	PriorityNormal Priority = 0x1
	PriorityUrgent Priority = 0x2
	PriorityLow    Priority = 0x3
)

// Size bounds per variant, inclusive, in total on-wire bytes including the
// trailing checksum.
const (
	standardMinSize = 8
	standardMaxSize = 24
	extendedMinSize = 9
	extendedMaxSize = 263
)

// Control byte 1 bit layout.
const (
	ctrl1FrameType = 0x80 // bit7: 1 = standard
	ctrl1Repeated  = 0x20 // bit5: 0 = repeated, 1 = not-repeated
	ctrl1Priority  = 0x0C // bits3-2

	// Reserved bits the original firmware always sets alongside the
	// frame-type bit; real TP1 transceivers expect them high.
	frameTypeStandardByte = 0x90
	frameTypeExtendedByte = 0x10

	// frameTypeMask isolates the bits that identify a frame-start byte on
	// the wire: masking control byte 1 by this value yields
	// frameTypeStandardByte or frameTypeExtendedByte.
	frameTypeMask = 0xD3
)

// tpciOffset, the AT/hop-count byte offset, the length-field offset, and
// the address offsets all differ between variants. They are kept as plain
// per-variant switches rather than a shared "trait" abstraction: the
// mapping is small, fixed, and not worth a level of indirection on the
// receive hot path.

func (v Variant) tpciOffset() int {
	if v == Extended {
		return 7
	}
	return 6
}

func (v Variant) atHopOffset() int {
	if v == Extended {
		return 1
	}
	return 5
}

func (v Variant) lengthFieldOffset() int {
	if v == Extended {
		return 6
	}
	return 5
}

func (v Variant) srcAddrOffset() int {
	if v == Extended {
		return 2
	}
	return 1
}

func (v Variant) dstAddrOffset() int {
	if v == Extended {
		return 4
	}
	return 3
}

func (v Variant) sizeBounds() (min, max int) {
	if v == Extended {
		return extendedMinSize, extendedMaxSize
	}
	return standardMinSize, standardMaxSize
}

// totalFromDeclaredLength converts the on-wire length field to the total
// frame size (including header and checksum).
func (v Variant) totalFromDeclaredLength(lengthField byte) int {
	if v == Extended {
		return int(lengthField) + 9
	}
	return int(lengthField&0x0F) + 8
}

// declaredLengthFromTotal is the inverse of totalFromDeclaredLength.
func (v Variant) declaredLengthFromTotal(total int) byte {
	if v == Extended {
		return byte(total - 9) //nolint:gosec // bounded by extendedMaxSize
	}
	return byte(total-8) & 0x0F
}

// ClassifyLeadByte reports whether b is a valid frame-start byte — the
// first byte of an inbound telegram, masked by frameTypeMask — and which
// variant it begins.
func ClassifyLeadByte(b byte) (Variant, bool) {
	switch b & frameTypeMask {
	case frameTypeStandardByte:
		return Standard, true
	case frameTypeExtendedByte:
		return Extended, true
	default:
		return 0, false
	}
}

// HeaderRemainder returns how many more bytes a receiver must read, after
// the lead byte already consumed, to have a complete fixed-size header
// (through and including the length field) for the given variant.
func HeaderRemainder(v Variant) int {
	return v.tpciOffset() - 1
}

// MinSize returns the minimum total on-wire size for the given variant.
func MinSize(v Variant) int {
	min, _ := v.sizeBounds()
	return min
}

// DeclaredTotalSize returns the total on-wire frame size declared by a
// header (lead byte included) read so far. header must be at least
// HeaderRemainder(v)+1 bytes.
func DeclaredTotalSize(v Variant, header []byte) int {
	return v.totalFromDeclaredLength(header[v.lengthFieldOffset()])
}

// HeaderDestination extracts the address kind and raw destination value
// from a partially-read header, before the rest of the frame (and thus
// the checksum) is available — used to decide whether to acknowledge a
// frame while it is still arriving.
func HeaderDestination(v Variant, header []byte) (AddressKind, uint16) {
	kind := Individual
	if header[v.atHopOffset()]&0x80 != 0 {
		kind = Group
	}
	o := v.dstAddrOffset()
	return kind, binary.BigEndian.Uint16(header[o : o+2])
}

// Frame is a parsed or in-progress KNX telegram, backed by a buffer drawn
// from a Pool. The zero value is not usable; construct via New, Parse, or
// FromDataPoint, and call Release when done with it.
type Frame struct {
	variant Variant
	pool    *Pool
	backing *block
	buf     []byte
}

// New allocates a Frame of the given variant and total on-wire size from
// pool, pre-setting the frame-type control bits and the length field.
// Callers then OR in the remaining fields in any order; writers never
// clear bits, so a zero-initialized buffer is the only precondition.
func New(pool *Pool, variant Variant, size int) (*Frame, error) {
	min, max := variant.sizeBounds()
	if size < min || size > max {
		return nil, ErrInvalidLength
	}
	backing, err := pool.acquire()
	if err != nil {
		return nil, err
	}
	f := &Frame{variant: variant, pool: pool, backing: backing, buf: backing[:size]}
	f.setFrameType()
	f.buf[variant.lengthFieldOffset()] |= variant.declaredLengthFromTotal(size)
	return f, nil
}

// Parse validates and wraps a raw telegram read from the bus, copying it
// into a freshly acquired pooled buffer. It enforces (i) the frame-type
// byte identifies a known variant, (ii) the declared length matches the
// number of bytes supplied, (iii) the size falls within the variant's
// bounds, and (iv) the trailing checksum is correct.
func Parse(pool *Pool, data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, ErrInvalidLength
	}
	variant, ok := ClassifyLeadByte(data[0])
	if !ok {
		return nil, ErrInvalidLength
	}
	min, max := variant.sizeBounds()
	if len(data) < min || len(data) > max {
		return nil, ErrInvalidLength
	}
	if int(variant.totalFromDeclaredLength(data[variant.lengthFieldOffset()])) != len(data) {
		return nil, ErrInvalidLength
	}
	if checksum(data[:len(data)-1]) != data[len(data)-1] {
		return nil, ErrChecksum
	}
	backing, err := pool.acquire()
	if err != nil {
		return nil, err
	}
	copy(backing[:], data)
	return &Frame{variant: variant, pool: pool, backing: backing, buf: backing[:len(data)]}, nil
}

// Release returns the Frame's buffer to its pool. It is safe to call more
// than once; subsequent calls are no-ops. Callers must not use the Frame
// after calling Release.
func (f *Frame) Release() {
	if f.pool == nil {
		return
	}
	f.pool.release(f.backing)
	f.pool = nil
	f.backing = nil
	f.buf = nil
}

// Clone copies f into a new buffer drawn from the same pool, for callers
// that need to stash a frame (e.g. the transport layer's last_sent_frame)
// while the original continues to be mutated or released.
func (f *Frame) Clone() (*Frame, error) {
	backing, err := f.pool.acquire()
	if err != nil {
		return nil, err
	}
	copy(backing[:], f.buf)
	return &Frame{variant: f.variant, pool: f.pool, backing: backing, buf: backing[:len(f.buf)]}, nil
}

func (f *Frame) Variant() Variant { return f.variant }
func (f *Frame) Bytes() []byte    { return f.buf }
func (f *Frame) Len() int         { return len(f.buf) }

func (f *Frame) setFrameType() {
	if f.variant == Standard {
		f.buf[0] |= frameTypeStandardByte
	} else {
		f.buf[0] |= frameTypeExtendedByte
	}
}

func (f *Frame) Priority() Priority {
	return Priority(f.buf[0]&ctrl1Priority) >> 2
}

// SetPriority ORs the priority bits into control byte 1.
func (f *Frame) SetPriority(p Priority) {
	f.buf[0] |= byte(p) << 2 & ctrl1Priority
}

// NotRepeated reports whether the not-repeated bit is set (bit5=1).
func (f *Frame) NotRepeated() bool {
	return f.buf[0]&ctrl1Repeated != 0
}

// SetNotRepeated sets the not-repeated bit. It cannot be cleared once set
// (OR-in semantics); callers build a fresh frame to send a repeated copy
// with the bit unset.
func (f *Frame) SetNotRepeated() {
	f.buf[0] |= ctrl1Repeated
}

func (f *Frame) HopCount() uint8 {
	return (f.buf[f.variant.atHopOffset()] >> 4) & 0x07
}

// SetHopCount ORs the 3-bit hop count into the AT/hop-count byte.
func (f *Frame) SetHopCount(hc uint8) {
	f.buf[f.variant.atHopOffset()] |= (hc & 0x07) << 4
}

func (f *Frame) AddressKind() AddressKind {
	if f.buf[f.variant.atHopOffset()]&0x80 != 0 {
		return Group
	}
	return Individual
}

func (f *Frame) setAddressKind(k AddressKind) {
	if k == Group {
		f.buf[f.variant.atHopOffset()] |= 0x80
	}
}

func (f *Frame) SourceAddress() IndividualAddress {
	o := f.variant.srcAddrOffset()
	return IndividualAddress(binary.BigEndian.Uint16(f.buf[o : o+2]))
}

// SetSourceAddress ORs the address bytes into the source field.
func (f *Frame) SetSourceAddress(a IndividualAddress) {
	o := f.variant.srcAddrOffset()
	orUint16(f.buf[o:o+2], uint16(a))
}

// DestinationRaw returns the raw 16-bit destination value; callers
// interpret it as an IndividualAddress or GroupAddress based on
// AddressKind.
func (f *Frame) DestinationRaw() uint16 {
	o := f.variant.dstAddrOffset()
	return binary.BigEndian.Uint16(f.buf[o : o+2])
}

func (f *Frame) DestinationIndividual() IndividualAddress {
	return IndividualAddress(f.DestinationRaw())
}

func (f *Frame) DestinationGroup() GroupAddress {
	return GroupAddress(f.DestinationRaw())
}

// SetDestinationIndividual ORs an individual destination address and marks
// the address-type bit accordingly.
func (f *Frame) SetDestinationIndividual(a IndividualAddress) {
	o := f.variant.dstAddrOffset()
	orUint16(f.buf[o:o+2], uint16(a))
	f.setAddressKind(Individual)
}

// SetDestinationGroup ORs a group destination address and marks the
// address-type bit accordingly.
func (f *Frame) SetDestinationGroup(g GroupAddress) {
	o := f.variant.dstAddrOffset()
	orUint16(f.buf[o:o+2], uint16(g))
	f.setAddressKind(Group)
}

// TPCI returns the raw transport-layer PCI byte.
func (f *Frame) TPCI() byte {
	return f.buf[f.variant.tpciOffset()]
}

// SetTPCI ORs v into the TPCI byte.
func (f *Frame) SetTPCI(v byte) {
	f.buf[f.variant.tpciOffset()] |= v
}

// HasAPCI reports whether the frame carries an APCI byte beyond the bare
// TPCI byte. Control-only frames (T_Connect, T_Disconnect, T_Ack, T_Nak)
// are exactly standardMinSize and carry no APCI at all.
func (f *Frame) HasAPCI() bool {
	return f.variant.tpciOffset()+1 <= len(f.buf)-2
}

// APCI returns the 10-bit application-layer PCI field, straddling the low
// 2 bits of the TPCI byte and the full following byte. Only valid when
// HasAPCI is true.
func (f *Frame) APCI() uint16 {
	o := f.variant.tpciOffset()
	return uint16(f.buf[o]&0x03)<<8 | uint16(f.buf[o+1])
}

// SetAPCI ORs the 10-bit value into the APCI field.
func (f *Frame) SetAPCI(v uint16) {
	o := f.variant.tpciOffset()
	f.buf[o] |= byte(v>>8) & 0x03
	f.buf[o+1] |= byte(v)
}

// APCIShort returns the 4-bit short-form service code: the top 4 bits of
// the 10-bit APCI field.
func (f *Frame) APCIShort() uint8 {
	return uint8(f.APCI() >> 6) //nolint:gosec // 10-bit field, top 4 bits
}

// SetAPCIShort ORs a 4-bit short-form service code into the APCI field,
// preserving any short-data bits already written at this offset.
func (f *Frame) SetAPCIShort(short uint8) {
	f.SetAPCI(uint16(short&0x0F) << 6)
}

// APCIShortData returns the low 6 bits of the APCI field: the inline value
// used by 1-6 bit data points instead of a following data byte.
func (f *Frame) APCIShortData() uint8 {
	return uint8(f.APCI() & 0x3F) //nolint:gosec // 6-bit field
}

// SetAPCIShortData ORs a 6-bit inline value into the APCI field.
func (f *Frame) SetAPCIShortData(v uint8) {
	f.SetAPCI(uint16(v & 0x3F))
}

// ApplicationData returns the byte-form payload following the APCI field,
// up to (excluding) the trailing checksum byte. Empty when the frame
// carries no byte-form payload.
func (f *Frame) ApplicationData() []byte {
	o := f.variant.tpciOffset() + 2
	end := len(f.buf) - 1
	if o >= end {
		return nil
	}
	return f.buf[o:end]
}

// SetApplicationData copies data into the byte-form payload region; the
// frame must have been sized to fit it exactly (see FromDataPoint).
func (f *Frame) SetApplicationData(data []byte) {
	o := f.variant.tpciOffset() + 2
	copy(f.buf[o:len(f.buf)-1], data)
}

// Checksum returns the trailing checksum byte as received or last set.
func (f *Frame) Checksum() byte {
	return f.buf[len(f.buf)-1]
}

// SetChecksum computes and writes the checksum over every preceding byte.
func (f *Frame) SetChecksum() {
	f.buf[len(f.buf)-1] = checksum(f.buf[:len(f.buf)-1])
}

// VerifyChecksum reports whether the trailing byte matches the computed
// checksum of the preceding bytes.
func (f *Frame) VerifyChecksum() bool {
	return checksum(f.buf[:len(f.buf)-1]) == f.buf[len(f.buf)-1]
}

// checksum is the bitwise-NOT of the XOR of every byte supplied.
func checksum(data []byte) byte {
	var x byte
	for _, b := range data {
		x ^= b
	}
	return ^x
}

func orUint16(buf []byte, v uint16) {
	buf[0] |= byte(v >> 8)
	buf[1] |= byte(v)
}

// DataPoint is implemented by application-layer values that can be built
// into a Frame's payload via FromDataPoint. A value either packs into the
// APCI field's 6-bit short-data region (ByteLength()==0) or occupies
// ByteLength() bytes immediately after the APCI field.
type DataPoint interface {
	// ByteLength is the number of payload bytes the value needs, or 0 if
	// it fits in the APCI short-data field.
	ByteLength() int
	// ShortData returns the 6-bit inline value used when ByteLength is 0.
	ShortData() uint8
	// WriteBytes writes the value into buf, where len(buf) == ByteLength().
	WriteBytes(buf []byte)
}

// FromDataPoint builds a Frame sized to carry dp's payload, selecting the
// Standard variant when the byte-length fits (≤14 bytes) and Extended
// otherwise. The TPCI byte and APCI short-form code are left zero for the
// caller to OR in; only the frame-type bits, length field and data-point
// payload are written here. The checksum is not: SetChecksum must be
// called once the remaining header fields are set.
func FromDataPoint(pool *Pool, dp DataPoint) (*Frame, error) {
	byteLen := dp.ByteLength()
	variant := Standard
	if byteLen > 14 {
		variant = Extended
	}
	total := variant.tpciOffset() + 2 + byteLen + 1
	f, err := New(pool, variant, total)
	if err != nil {
		return nil, err
	}
	if byteLen > 0 {
		scratch := make([]byte, byteLen)
		dp.WriteBytes(scratch)
		f.SetApplicationData(scratch)
	} else {
		f.SetAPCIShortData(dp.ShortData())
	}
	return f, nil
}
