// Package decoder implements the stateless IP/UDP framer: it turns captured
// byte spans into UDPViews without buffering or reassembly.
package decoder

import (
	"encoding/binary"
	"net/netip"

	"github.com/Skinpack/JAProxy/internal/core"
)

const (
	ipv4HeaderMinLen = 20
	udpHeaderLen     = 8

	protocolUDP = 17
)

// ParseUDP decodes a byte span that begins at an IPv4 header into a UDPView.
// The returned view borrows data's bytes.
//
// Rejected frames: non-IPv4, fragmented (MF set or nonzero offset), non-UDP
// transport, truncated headers, and frames whose declared UDP length exceeds
// the captured span. Checksums are not validated; outbound frames seen by the
// capture may carry offloaded (unset) checksums.
func ParseUDP(data []byte) (core.UDPView, error) {
	if len(data) < ipv4HeaderMinLen {
		return core.UDPView{}, core.ErrPacketTooShort
	}
	if data[0]>>4 != 4 {
		return core.UDPView{}, core.ErrNotIPv4
	}

	// IHL is in 32-bit words and includes options.
	headerLen := int(data[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen || len(data) < headerLen {
		return core.UDPView{}, core.ErrPacketTooShort
	}

	// Flags and fragment offset (2 bytes at offset 6). Fragments carry only a
	// slice of the UDP datagram, so they are dropped rather than misparsed.
	flagsOffset := binary.BigEndian.Uint16(data[6:8])
	moreFragments := flagsOffset&0x2000 != 0
	fragmentOffset := flagsOffset & 0x1FFF
	if moreFragments || fragmentOffset != 0 {
		return core.UDPView{}, core.ErrFragmented
	}

	if data[9] != protocolUDP {
		return core.UDPView{}, core.ErrNotUDP
	}

	srcAddr := netip.AddrFrom4([4]byte(data[12:16]))
	dstAddr := netip.AddrFrom4([4]byte(data[16:20]))

	udp := data[headerLen:]
	if len(udp) < udpHeaderLen {
		return core.UDPView{}, core.ErrPacketTooShort
	}

	srcPort := binary.BigEndian.Uint16(udp[0:2])
	dstPort := binary.BigEndian.Uint16(udp[2:4])

	// Declared UDP length includes the 8-byte header. The payload span is
	// bounded by it, not by the captured length.
	udpLen := int(binary.BigEndian.Uint16(udp[4:6]))
	if udpLen < udpHeaderLen || udpLen > len(udp) {
		return core.UDPView{}, core.ErrLengthMismatch
	}

	return core.UDPView{
		Src:     core.Endpoint{Addr: srcAddr, Port: srcPort},
		Dst:     core.Endpoint{Addr: dstAddr, Port: dstPort},
		Payload: udp[udpHeaderLen:udpLen],
	}, nil
}
