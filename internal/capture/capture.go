// Package capture wraps the platform packet-capture primitives behind a
// single Handle interface: live pcap, pcap replay files, and AF_PACKET on
// Linux. All fallible operations report through the result carrier so a
// failed step keeps its partial value and diagnostic together.
package capture

import (
	"fmt"
	"time"

	"github.com/google/gopacket/layers"

	"github.com/Skinpack/JAProxy/internal/decoder"
	"github.com/Skinpack/JAProxy/internal/result"
)

// Backend selects the capture primitive.
type Backend string

const (
	BackendPcap     Backend = "pcap"
	BackendAFPacket Backend = "afpacket"
	BackendFile     Backend = "file"
)

// Frame is one captured frame. Data is borrowed from the capture buffer and
// only valid until the callback returns.
type Frame struct {
	Data      []byte
	Timestamp time.Time
	Length    int // original wire length
}

// Callback is invoked once per frame on the capture goroutine, sequentially.
// It must not block indefinitely; a slow callback causes kernel-side drops.
type Callback func(Frame)

// Stats is a point-in-time snapshot of the capture counters. Values observed
// from other goroutines may lag but never regress.
type Stats struct {
	Received  int
	Dropped   int // dropped by the kernel buffer
	IfDropped int // dropped by the interface
}

// Handle is the capture adapter contract. A Handle is owned by exactly one
// listener; apart from BreakLoop, its operations must not be called
// concurrently.
type Handle interface {
	// LinkType returns the current link-layer type of delivered frames.
	LinkType() layers.LinkType
	// SupportedLinkTypes enumerates the link types the device can be
	// switched to, in the adapter's preference order.
	SupportedLinkTypes() result.Result[[]layers.LinkType]
	// SetLinkType installs the given link type if the device supports it.
	SetLinkType(lt layers.LinkType) result.Result[layers.LinkType]
	// SetFilter compiles and installs a BPF expression on the open handle.
	SetFilter(expr string) result.Result[string]
	// Loop blocks, invoking cb per frame, until BreakLoop is called, the
	// capture source is exhausted (replay), or the primitive fails. The
	// result is successful iff termination was a break or a clean
	// end-of-capture.
	Loop(cb Callback) result.Result[bool]
	// BreakLoop makes an in-flight Loop return after the current frame.
	// Safe to call from any goroutine, bounded by the read timeout.
	BreakLoop()
	// Stats returns the received/dropped counters.
	Stats() result.Result[Stats]
	// Close releases the platform handle.
	Close()
}

// Options configures Open.
type Options struct {
	Backend      Backend
	Device       string
	File         string // replay file for BackendFile
	SnapLen      int
	Promiscuous  bool
	Timeout      time.Duration // read timeout; bounds BreakLoop latency
	BufferSizeMB int           // AF_PACKET ring size
}

// DefaultOptions returns the options used when fields are left zero.
func DefaultOptions() Options {
	return Options{
		Backend:      BackendPcap,
		SnapLen:      65535,
		Promiscuous:  true,
		Timeout:      100 * time.Millisecond,
		BufferSizeMB: 8,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Backend == "" {
		o.Backend = def.Backend
	}
	if o.SnapLen <= 0 {
		o.SnapLen = def.SnapLen
	}
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	if o.BufferSizeMB <= 0 {
		o.BufferSizeMB = def.BufferSizeMB
	}
	return o
}

// Open acquires a capture handle for the configured backend.
func Open(opts Options) result.Result[Handle] {
	opts = opts.withDefaults()

	switch opts.Backend {
	case BackendPcap:
		r := OpenLive(opts.Device, int32(opts.SnapLen), opts.Promiscuous, opts.Timeout)
		if !r.IsSuccess() {
			return result.Fail[Handle](r.ErrString())
		}
		return result.Success[Handle](r.Value())
	case BackendFile:
		r := OpenOffline(opts.File)
		if !r.IsSuccess() {
			return result.Fail[Handle](r.ErrString())
		}
		return result.Success[Handle](r.Value())
	case BackendAFPacket:
		return openAFPacket(opts)
	default:
		return result.Fail[Handle](fmt.Sprintf("unsupported capture backend: %s", opts.Backend))
	}
}

// NegotiateLinkType makes the handle deliver frames the framer can strip:
// the current datalink is kept when known; otherwise the supported list is
// walked in the adapter's order and the first known entry is installed.
// Performed once, before the loop starts.
func NegotiateLinkType(h Handle) result.Result[layers.LinkType] {
	if lt := h.LinkType(); decoder.IsKnownLinkType(lt) {
		return result.Success(lt)
	}

	supported := h.SupportedLinkTypes()
	if !supported.IsSuccess() {
		return result.Fail[layers.LinkType](supported.ErrString())
	}

	for _, lt := range supported.Value() {
		if decoder.IsKnownLinkType(lt) {
			return h.SetLinkType(lt)
		}
	}
	return result.Fail[layers.LinkType]("no supported datalink type is known")
}
