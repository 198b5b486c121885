package capture

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/Skinpack/JAProxy/internal/result"
)

// datalinkNames maps libpcap datalink names to gopacket link types. Names
// missing here cannot be stripped by the framer, so dropping them from the
// supported list does not change negotiation.
var datalinkNames = map[string]layers.LinkType{
	"EN10MB":    layers.LinkTypeEthernet,
	"LINUX_SLL": layers.LinkTypeLinuxSLL,
	"RAW":       layers.LinkTypeRaw,
	"IPV4":      layers.LinkTypeIPv4,
	"NULL":      layers.LinkTypeNull,
	"LOOP":      layers.LinkTypeLoop,
}

// PcapHandle adapts a gopacket/pcap handle, live or replay.
type PcapHandle struct {
	h       *pcap.Handle
	offline bool
	brk     atomic.Bool
}

// OpenLive opens a live capture on the named device. The read timeout bounds
// how long BreakLoop may need to take effect; it must be positive.
func OpenLive(device string, snapLen int32, promiscuous bool, timeout time.Duration) result.Result[*PcapHandle] {
	if timeout <= 0 {
		// BlockForever would make BreakLoop wait for the next frame.
		return result.Fail[*PcapHandle]("read timeout must be positive")
	}
	h, err := pcap.OpenLive(device, snapLen, promiscuous, timeout)
	if err != nil {
		return result.Fail[*PcapHandle](fmt.Sprintf("failed to open device %s: %v", device, err))
	}
	return result.Success(&PcapHandle{h: h})
}

// OpenOffline opens a pcap savefile for replay. The loop terminates cleanly
// at end-of-file.
func OpenOffline(path string) result.Result[*PcapHandle] {
	h, err := pcap.OpenOffline(path)
	if err != nil {
		return result.Fail[*PcapHandle](fmt.Sprintf("failed to open capture file %s: %v", path, err))
	}
	return result.Success(&PcapHandle{h: h, offline: true})
}

func (p *PcapHandle) LinkType() layers.LinkType {
	return p.h.LinkType()
}

func (p *PcapHandle) SupportedLinkTypes() result.Result[[]layers.LinkType] {
	datalinks, err := p.h.ListDataLinks()
	if err != nil {
		return result.Fail[[]layers.LinkType](err.Error())
	}
	// Preserve libpcap's order; unmapped names are unknown by definition.
	types := make([]layers.LinkType, 0, len(datalinks))
	for _, dl := range datalinks {
		if lt, ok := datalinkNames[dl.Name]; ok {
			types = append(types, lt)
		}
	}
	return result.Success(types)
}

func (p *PcapHandle) SetLinkType(lt layers.LinkType) result.Result[layers.LinkType] {
	return result.FromError(lt, p.h.SetLinkType(lt))
}

func (p *PcapHandle) SetFilter(expr string) result.Result[string] {
	return result.FromError(expr, p.h.SetBPFFilter(expr))
}

// Loop reads frames until BreakLoop, end-of-capture, or a primitive error.
// The break flag is polled between reads, so a pending break takes effect
// within one read timeout. A break requested before Loop is entered makes it
// return immediately; the flag is never reset, so a broken handle stays
// broken until closed.
func (p *PcapHandle) Loop(cb Callback) result.Result[bool] {
	for {
		if p.brk.Load() {
			return result.Success(true)
		}

		data, ci, err := p.h.ZeroCopyReadPacketData()
		switch {
		case err == nil:
		case errors.Is(err, pcap.NextErrorTimeoutExpired):
			continue
		case errors.Is(err, io.EOF):
			return result.Success(true)
		default:
			return result.FailWith(false, err.Error())
		}

		cb(Frame{Data: data, Timestamp: ci.Timestamp, Length: ci.Length})
	}
}

func (p *PcapHandle) BreakLoop() {
	p.brk.Store(true)
}

func (p *PcapHandle) Stats() result.Result[Stats] {
	if p.offline {
		// libpcap keeps no counters for savefiles.
		return result.Fail[Stats]("statistics are not available in replay mode")
	}
	s, err := p.h.Stats()
	if err != nil {
		return result.Fail[Stats](err.Error())
	}
	return result.Success(Stats{
		Received:  s.PacketsReceived,
		Dropped:   s.PacketsDropped,
		IfDropped: s.PacketsIfDropped,
	})
}

func (p *PcapHandle) Close() {
	p.h.Close()
}
