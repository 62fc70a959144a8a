package frame

import (
	"fmt"
	"strconv"
	"strings"
)

// IndividualAddress identifies a physical device on the bus as area.line.device
// (4/4/8 bits), packed big-endian into 16 bits.
type IndividualAddress uint16

// NewIndividualAddress builds an IndividualAddress from its area/line/device
// components, masking each to its field width.
func NewIndividualAddress(area, line, device uint8) IndividualAddress {
	return IndividualAddress(uint16(area&0x0F)<<12 | uint16(line&0x0F)<<8 | uint16(device))
}

func (a IndividualAddress) Area() uint8   { return uint8(a>>12) & 0x0F }
func (a IndividualAddress) Line() uint8   { return uint8(a>>8) & 0x0F }
func (a IndividualAddress) Device() uint8 { return uint8(a) }

func (a IndividualAddress) String() string {
	return fmt.Sprintf("%d.%d.%d", a.Area(), a.Line(), a.Device())
}

// ParseIndividualAddress parses "area.line.device" notation.
func ParseIndividualAddress(s string) (IndividualAddress, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return 0, fmt.Errorf("frame: invalid individual address %q", s)
	}
	area, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil || area > 15 {
		return 0, fmt.Errorf("frame: invalid individual address area in %q", s)
	}
	line, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil || line > 15 {
		return 0, fmt.Errorf("frame: invalid individual address line in %q", s)
	}
	device, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil || device > 255 {
		return 0, fmt.Errorf("frame: invalid individual address device in %q", s)
	}
	return NewIndividualAddress(uint8(area), uint8(line), uint8(device)), nil
}

// GroupAddress identifies a group object as main/middle/sub (5/3/8 bits).
// The all-zero value is the broadcast address.
type GroupAddress uint16

// NewGroupAddress builds a GroupAddress from its main/middle/sub components,
// masking each to its field width.
func NewGroupAddress(main, middle uint8, sub uint8) GroupAddress {
	return GroupAddress(uint16(main&0x1F)<<11 | uint16(middle&0x07)<<8 | uint16(sub))
}

func (g GroupAddress) Main() uint8   { return uint8(g>>11) & 0x1F }
func (g GroupAddress) Middle() uint8 { return uint8(g>>8) & 0x07 }
func (g GroupAddress) Sub() uint8    { return uint8(g) }

// IsBroadcast reports whether g is the all-zero group address.
func (g GroupAddress) IsBroadcast() bool { return g == 0 }

func (g GroupAddress) String() string {
	return fmt.Sprintf("%d/%d/%d", g.Main(), g.Middle(), g.Sub())
}

// ParseGroupAddress parses "main/middle/sub" notation.
func ParseGroupAddress(s string) (GroupAddress, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return 0, fmt.Errorf("frame: invalid group address %q", s)
	}
	main, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil || main > 31 {
		return 0, fmt.Errorf("frame: invalid group address main in %q", s)
	}
	middle, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil || middle > 7 {
		return 0, fmt.Errorf("frame: invalid group address middle in %q", s)
	}
	sub, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil || sub > 255 {
		return 0, fmt.Errorf("frame: invalid group address sub in %q", s)
	}
	return NewGroupAddress(uint8(main), uint8(middle), uint8(sub)), nil
}

// AddressKind distinguishes the two address families carried in a frame's
// address-type bit.
type AddressKind uint8

const (
	Individual AddressKind = 0
	Group      AddressKind = 1
)

func (k AddressKind) String() string {
	if k == Group {
		return "group"
	}
	return "individual"
}
