package decoder

import (
	"encoding/binary"

	"github.com/google/gopacket/layers"

	"github.com/Skinpack/JAProxy/internal/core"
)

const (
	ethernetHeaderLen = 14
	vlanHeaderLen     = 4
	sllHeaderLen      = 16
	nullHeaderLen     = 4

	etherTypeIPv4 = 0x0800
	etherTypeVLAN = 0x8100
	etherTypeQinQ = 0x88A8

	afInet = 2
)

// knownLinkTypes lists the link-layer framings StripLink can remove.
var knownLinkTypes = []layers.LinkType{
	layers.LinkTypeEthernet,
	layers.LinkTypeLinuxSLL,
	layers.LinkTypeRaw,
	layers.LinkTypeIPv4,
	layers.LinkTypeNull,
	layers.LinkTypeLoop,
}

// KnownLinkTypes returns the link-layer types the framer can strip.
func KnownLinkTypes() []layers.LinkType {
	out := make([]layers.LinkType, len(knownLinkTypes))
	copy(out, knownLinkTypes)
	return out
}

// IsKnownLinkType reports whether frames of the given link type can be
// stripped down to their IP header.
func IsKnownLinkType(lt layers.LinkType) bool {
	for _, known := range knownLinkTypes {
		if lt == known {
			return true
		}
	}
	return false
}

// StripLink removes the link-layer header of the given type, returning the
// span starting at the IP header. Non-IPv4 frames are rejected here so the
// framer only ever sees IP data.
func StripLink(lt layers.LinkType, data []byte) ([]byte, error) {
	switch lt {
	case layers.LinkTypeEthernet:
		return stripEthernet(data)
	case layers.LinkTypeLinuxSLL:
		return stripLinuxSLL(data)
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		return data, nil
	case layers.LinkTypeNull, layers.LinkTypeLoop:
		return stripNull(data)
	default:
		return nil, core.ErrUnknownLinkType
	}
}

// stripEthernet removes a 14-byte Ethernet header plus any VLAN tags
// (including stacked QinQ).
func stripEthernet(data []byte) ([]byte, error) {
	if len(data) < ethernetHeaderLen {
		return nil, core.ErrPacketTooShort
	}

	etherType := binary.BigEndian.Uint16(data[12:14])
	offset := ethernetHeaderLen

	for etherType == etherTypeVLAN || etherType == etherTypeQinQ {
		if len(data) < offset+vlanHeaderLen {
			return nil, core.ErrPacketTooShort
		}
		etherType = binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += vlanHeaderLen
	}

	if etherType != etherTypeIPv4 {
		return nil, core.ErrNotIPv4
	}
	return data[offset:], nil
}

// stripLinuxSLL removes the 16-byte Linux cooked capture header.
func stripLinuxSLL(data []byte) ([]byte, error) {
	if len(data) < sllHeaderLen {
		return nil, core.ErrPacketTooShort
	}
	if binary.BigEndian.Uint16(data[14:16]) != etherTypeIPv4 {
		return nil, core.ErrNotIPv4
	}
	return data[sllHeaderLen:], nil
}

// stripNull removes the 4-byte BSD null/loopback header. The address family
// is written in the capturing host's byte order, so both orders are accepted.
func stripNull(data []byte) ([]byte, error) {
	if len(data) < nullHeaderLen {
		return nil, core.ErrPacketTooShort
	}
	family := binary.LittleEndian.Uint32(data[0:4])
	if family != afInet && binary.BigEndian.Uint32(data[0:4]) != afInet {
		return nil, core.ErrNotIPv4
	}
	return data[nullHeaderLen:], nil
}
