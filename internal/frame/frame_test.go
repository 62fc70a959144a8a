package frame

import (
	"bytes"
	"errors"
	"testing"
)

// groupValueReadBytes is the S1 scenario from the protocol design notes:
// a standard GroupValueRead from individual address 1.1.10 to group
// address 1/1/98, with a valid trailing checksum.
func groupValueReadBytes(t *testing.T) []byte {
	t.Helper()
	body := []byte{0xBC, 0x11, 0x0A, 0x09, 0x62, 0xE1, 0x00, 0x00}
	return append(body, checksum(body))
}

func TestParseGroupValueRead(t *testing.T) {
	pool := NewPool(2)
	data := groupValueReadBytes(t)

	f, err := Parse(pool, data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	defer f.Release()

	if f.Variant() != Standard {
		t.Errorf("Variant() = %v, want Standard", f.Variant())
	}
	if got, want := f.SourceAddress().String(), "1.1.10"; got != want {
		t.Errorf("SourceAddress() = %s, want %s", got, want)
	}
	if f.AddressKind() != Group {
		t.Errorf("AddressKind() = %v, want Group", f.AddressKind())
	}
	if got, want := f.DestinationGroup().String(), "1/1/98"; got != want {
		t.Errorf("DestinationGroup() = %s, want %s", got, want)
	}
	if f.TPCI() != 0x00 {
		t.Errorf("TPCI() = %#x, want 0x00", f.TPCI())
	}
	if got := f.APCIShort(); got != 0 {
		t.Errorf("APCIShort() = %d, want 0 (GroupValueRead)", got)
	}
	if got := f.APCIShortData(); got != 0 {
		t.Errorf("APCIShortData() = %d, want 0 (asap)", got)
	}
}

func TestParseChecksumFailure(t *testing.T) {
	pool := NewPool(2)
	data := groupValueReadBytes(t)
	data[len(data)-1] ^= 0xFF // S2: flip the checksum byte

	_, err := Parse(pool, data)
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("Parse error = %v, want ErrChecksum", err)
	}
	if got, want := pool.Available(), 2; got != want {
		t.Errorf("pool.Available() = %d after rejected frame, want %d (no leak)", got, want)
	}
}

func TestBroadcastGroup(t *testing.T) {
	pool := NewPool(2)
	body := []byte{0xBC, 0x11, 0x0A, 0x00, 0x00, 0xE1, 0x00, 0x00}
	data := append(body, checksum(body))

	f, err := Parse(pool, data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	defer f.Release()

	if !f.DestinationGroup().IsBroadcast() {
		t.Errorf("DestinationGroup().IsBroadcast() = false, want true for group 0/0/0")
	}
}

func TestParseRejectsLengthMismatch(t *testing.T) {
	pool := NewPool(1)
	data := groupValueReadBytes(t)
	data = append(data, 0x00) // declared length no longer matches len(data)

	if _, err := Parse(pool, data); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("Parse error = %v, want ErrInvalidLength", err)
	}
}

func TestPoolExhaustion(t *testing.T) {
	pool := NewPool(1)
	data := groupValueReadBytes(t)

	f1, err := Parse(pool, data)
	if err != nil {
		t.Fatalf("first Parse: %v", err)
	}
	defer f1.Release()

	if _, err := Parse(pool, data); !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("second Parse error = %v, want ErrOutOfMemory", err)
	}
}

// boolDataPoint is a minimal DataPoint used only to exercise the builder
// and round-trip properties in this package's tests.
type boolDataPoint bool

func (b boolDataPoint) ByteLength() int { return 0 }
func (b boolDataPoint) ShortData() uint8 {
	if b {
		return 1
	}
	return 0
}
func (b boolDataPoint) WriteBytes([]byte) {}

type byteDataPoint uint8

func (v byteDataPoint) ByteLength() int       { return 1 }
func (v byteDataPoint) ShortData() uint8      { return 0 }
func (v byteDataPoint) WriteBytes(buf []byte) { buf[0] = uint8(v) }

func TestFromDataPointRoundTripShort(t *testing.T) {
	pool := NewPool(4)
	f, err := FromDataPoint(pool, boolDataPoint(true))
	if err != nil {
		t.Fatalf("FromDataPoint: %v", err)
	}
	defer f.Release()

	f.SetSourceAddress(NewIndividualAddress(1, 1, 1))
	f.SetDestinationGroup(NewGroupAddress(1, 1, 1))
	f.SetAPCIShort(0x2) // GroupValueWrite
	f.SetHopCount(7)
	f.SetPriority(PriorityLow)
	f.SetChecksum()

	if !f.VerifyChecksum() {
		t.Fatalf("VerifyChecksum() = false after SetChecksum")
	}
	if got := f.APCIShort(); got != 0x2 {
		t.Errorf("APCIShort() = %#x, want 0x2", got)
	}
	if got := f.APCIShortData(); got != 1 {
		t.Errorf("APCIShortData() = %d, want 1", got)
	}

	roundtripped, err := Parse(NewPool(1), f.Bytes())
	if err != nil {
		t.Fatalf("Parse(Encode(frame)): %v", err)
	}
	defer roundtripped.Release()
	if !bytes.Equal(roundtripped.Bytes(), f.Bytes()) {
		t.Errorf("round-tripped bytes differ")
	}
}

func TestFromDataPointByteForm(t *testing.T) {
	pool := NewPool(4)
	f, err := FromDataPoint(pool, byteDataPoint(0x42))
	if err != nil {
		t.Fatalf("FromDataPoint: %v", err)
	}
	defer f.Release()

	f.SetAPCIShort(0x1) // GroupValueResponse
	f.SetChecksum()

	data := f.ApplicationData()
	if len(data) != 1 || data[0] != 0x42 {
		t.Fatalf("ApplicationData() = %v, want [0x42]", data)
	}
	if !f.VerifyChecksum() {
		t.Fatalf("VerifyChecksum() = false")
	}
}

func TestFromDataPointExtendedVariant(t *testing.T) {
	pool := NewPool(2)
	f, err := FromDataPoint(pool, byteDataPoint0(20))
	if err != nil {
		t.Fatalf("FromDataPoint: %v", err)
	}
	defer f.Release()
	if f.Variant() != Extended {
		t.Errorf("Variant() = %v, want Extended for a 20-byte payload", f.Variant())
	}
}

// byteDataPoint0 returns a DataPoint whose byte-length exceeds the
// standard-frame ceiling (14 bytes), forcing the Extended variant.
func byteDataPoint0(n int) DataPoint { return sized(n) }

type sized int

func (s sized) ByteLength() int  { return int(s) }
func (s sized) ShortData() uint8 { return 0 }
func (s sized) WriteBytes(buf []byte) {
	for i := range buf {
		buf[i] = byte(i)
	}
}

func TestControlOnlyFrameHasNoAPCI(t *testing.T) {
	pool := NewPool(1)
	f, err := New(pool, Standard, standardMinSize)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer f.Release()
	f.SetTPCI(0x80) // T_Connect
	f.SetChecksum()

	if f.HasAPCI() {
		t.Errorf("HasAPCI() = true for a control-only frame, want false")
	}
}

func TestAddressParsing(t *testing.T) {
	ia, err := ParseIndividualAddress("1.1.10")
	if err != nil {
		t.Fatalf("ParseIndividualAddress: %v", err)
	}
	if ia.String() != "1.1.10" {
		t.Errorf("ia.String() = %s, want 1.1.10", ia.String())
	}

	ga, err := ParseGroupAddress("1/1/98")
	if err != nil {
		t.Fatalf("ParseGroupAddress: %v", err)
	}
	if ga.String() != "1/1/98" {
		t.Errorf("ga.String() = %s, want 1/1/98", ga.String())
	}

	if _, err := ParseGroupAddress("1/1"); err == nil {
		t.Error("ParseGroupAddress(\"1/1\") succeeded, want error")
	}
}
