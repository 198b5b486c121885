// Package core defines core data structures with zero external dependencies.
package core

import (
	"fmt"
	"net/netip"
	"time"
)

// Endpoint is an IPv4 address and UDP port pair. A listener is bound to
// exactly one server Endpoint for its whole lifetime.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

// NewEndpoint parses addr as a dotted-quad IPv4 address. The port must be
// in 1-65535.
func NewEndpoint(addr string, port uint16) (Endpoint, error) {
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	a = a.Unmap()
	if !a.Is4() {
		return Endpoint{}, fmt.Errorf("address %q: %w", addr, ErrNotIPv4)
	}
	if port == 0 {
		return Endpoint{}, fmt.Errorf("port must be nonzero")
	}
	return Endpoint{Addr: a, Port: port}, nil
}

// IsValid reports whether the endpoint carries an IPv4 address and a nonzero port.
func (e Endpoint) IsValid() bool {
	return e.Addr.Is4() && e.Port != 0
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Addr, e.Port)
}

// UDPView is a decoded view of a single IPv4/UDP frame. Payload borrows the
// frame's bytes and is only valid until the capture callback returns.
type UDPView struct {
	Src     Endpoint
	Dst     Endpoint
	Payload []byte
}

// RawPacket is an application-layer payload handed to a sink. Data is an
// owned copy, so the packet may outlive the frame it was taken from.
type RawPacket struct {
	Data      []byte
	Timestamp time.Time
}
