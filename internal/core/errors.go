// Package core defines sentinel errors.
package core

import "errors"

var (
	// Frame decoding errors. All of these are transient: the listener drops
	// the offending frame and keeps the loop running.
	ErrPacketTooShort  = errors.New("japroxy: packet too short")
	ErrNotIPv4         = errors.New("japroxy: not an IPv4 packet")
	ErrNotUDP          = errors.New("japroxy: not a UDP packet")
	ErrFragmented      = errors.New("japroxy: IP fragment")
	ErrLengthMismatch  = errors.New("japroxy: UDP length exceeds captured data")
	ErrUnknownLinkType = errors.New("japroxy: unknown link-layer type")

	// Listener lifecycle errors.
	ErrAlreadyStarted = errors.New("japroxy: listener already started")
	ErrNotStarted     = errors.New("japroxy: listener not started")
)
