package datapoint

import (
	"errors"
	"math"
	"testing"
)

func TestPercentageRoundTrip(t *testing.T) {
	cases := []uint8{0, 1, 50, 99, 100}
	for _, want := range cases {
		encoded := EncodePercentage(want)
		got, err := DecodePercentage(encoded)
		if err != nil {
			t.Fatalf("DecodePercentage(%v): %v", encoded, err)
		}
		if diff := int(got) - int(want); diff < -1 || diff > 1 {
			t.Errorf("EncodePercentage(%d) round-trips to %d, outside rounding tolerance", want, got)
		}
	}
}

func TestFloat2ByteRoundTrip(t *testing.T) {
	cases := []float64{0, 21.5, -5, 100.25, -50}
	for _, want := range cases {
		encoded, err := EncodeFloat2Byte(want)
		if err != nil {
			t.Fatalf("EncodeFloat2Byte(%v): %v", want, err)
		}
		got, err := DecodeFloat2Byte(encoded)
		if err != nil {
			t.Fatalf("DecodeFloat2Byte(%v): %v", encoded, err)
		}
		if math.Abs(got-want) > 0.1 {
			t.Errorf("EncodeFloat2Byte(%v) round-trips to %v, want within 0.1", want, got)
		}
	}
}

func TestDecodeFloat2ByteInvalidSentinel(t *testing.T) {
	if _, err := DecodeFloat2Byte([]byte{0x7F, 0xFF}); err == nil {
		t.Error("DecodeFloat2Byte(invalid sentinel) succeeded, want error")
	}
}

func TestEncodeFloat2ByteOutOfRange(t *testing.T) {
	cases := []float64{671088.65, -671088.65, 1e9, -1e9}
	for _, value := range cases {
		if _, err := EncodeFloat2Byte(value); !errors.Is(err, ErrEncodingFailed) {
			t.Errorf("EncodeFloat2Byte(%v) = err %v, want ErrEncodingFailed", value, err)
		}
	}
}

func TestSceneRoundTrip(t *testing.T) {
	for scene := uint8(0); scene <= sceneMax; scene++ {
		encoded := EncodeScene(scene)
		got, err := DecodeScene(encoded)
		if err != nil {
			t.Fatalf("DecodeScene(%v): %v", encoded, err)
		}
		if got != scene {
			t.Errorf("EncodeScene(%d) round-trips to %d", scene, got)
		}
	}
}

func TestDecodeSceneOutOfRange(t *testing.T) {
	if _, err := DecodeScene([]byte{64}); err == nil {
		t.Error("DecodeScene(64) succeeded, want error (max is 63)")
	}
}

func TestRGBRoundTrip(t *testing.T) {
	want := RGB{R: 255, G: 128, B: 0}
	got, err := DecodeRGB(EncodeRGB(want))
	if err != nil {
		t.Fatalf("DecodeRGB: %v", err)
	}
	if got != want {
		t.Errorf("RGB round-trip = %+v, want %+v", got, want)
	}
}

func TestBoolShortData(t *testing.T) {
	if Bool(true).ShortData() != 1 {
		t.Error("Bool(true).ShortData() != 1")
	}
	if Bool(false).ShortData() != 0 {
		t.Error("Bool(false).ShortData() != 0")
	}
	if DecodeBool(1) != true {
		t.Error("DecodeBool(1) != true")
	}
}

func TestByteWriteBytes(t *testing.T) {
	buf := make([]byte, 1)
	Byte(0x42).WriteBytes(buf)
	if buf[0] != 0x42 {
		t.Errorf("WriteBytes produced %#x, want 0x42", buf[0])
	}
	got, err := DecodeByte(buf)
	if err != nil || got != 0x42 {
		t.Errorf("DecodeByte(%v) = (%v, %v), want (0x42, nil)", buf, got, err)
	}
}
