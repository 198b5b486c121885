package capture

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"github.com/Skinpack/JAProxy/internal/result"
)

// AFPacketHandle captures through a Linux AF_PACKET TPacket v3 ring.
// AF_PACKET always delivers Ethernet framing, so datalink negotiation is
// trivial here.
type AFPacketHandle struct {
	tp      *afpacket.TPacket
	snapLen int
	brk     atomic.Bool
}

func openAFPacket(opts Options) result.Result[Handle] {
	frameSize, blockSize, numBlocks, err := afpacketSizes(opts.SnapLen, opts.BufferSizeMB)
	if err != nil {
		return result.Fail[Handle](err.Error())
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(opts.Device),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(opts.Timeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return result.Fail[Handle](fmt.Sprintf("failed to open AF_PACKET socket on %s: %v", opts.Device, err))
	}
	return result.Success[Handle](&AFPacketHandle{tp: tp, snapLen: opts.SnapLen})
}

// afpacketSizes derives ring geometry meeting PACKET_MMAP's alignment rules:
// frame size must divide block size, block size must be a multiple of the
// page size.
func afpacketSizes(snapLen, bufferSizeMB int) (frameSize, blockSize, numBlocks int, err error) {
	pageSize := os.Getpagesize()
	if snapLen < pageSize {
		frameSize = pageSize / (pageSize / snapLen)
	} else {
		frameSize = (snapLen/pageSize + 1) * pageSize
	}
	blockSize = frameSize * 128
	numBlocks = bufferSizeMB * 1024 * 1024 / blockSize
	if numBlocks < 1 {
		return 0, 0, 0, fmt.Errorf("buffer of %d MB too small for frame size %d", bufferSizeMB, frameSize)
	}
	return frameSize, blockSize, numBlocks, nil
}

func (h *AFPacketHandle) LinkType() layers.LinkType {
	return layers.LinkTypeEthernet
}

func (h *AFPacketHandle) SupportedLinkTypes() result.Result[[]layers.LinkType] {
	return result.Success([]layers.LinkType{layers.LinkTypeEthernet})
}

func (h *AFPacketHandle) SetLinkType(lt layers.LinkType) result.Result[layers.LinkType] {
	if lt != layers.LinkTypeEthernet {
		return result.FailWith(lt, "AF_PACKET delivers Ethernet frames only")
	}
	return result.Success(lt)
}

func (h *AFPacketHandle) SetFilter(expr string) result.Result[string] {
	// libpcap compiles the expression; the raw program is installed on the
	// AF_PACKET socket.
	pcapBPF, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, h.snapLen, expr)
	if err != nil {
		return result.FailWith(expr, fmt.Sprintf("failed to compile BPF filter: %v", err))
	}
	rawBPF := make([]bpf.RawInstruction, len(pcapBPF))
	for i, ins := range pcapBPF {
		rawBPF[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return result.FromError(expr, h.tp.SetBPF(rawBPF))
}

func (h *AFPacketHandle) Loop(cb Callback) result.Result[bool] {
	for {
		if h.brk.Load() {
			return result.Success(true)
		}

		data, ci, err := h.tp.ZeroCopyReadPacketData()
		if err != nil {
			if errors.Is(err, afpacket.ErrTimeout) {
				continue
			}
			return result.FailWith(false, err.Error())
		}

		cb(Frame{Data: data, Timestamp: ci.Timestamp, Length: ci.Length})
	}
}

func (h *AFPacketHandle) BreakLoop() {
	h.brk.Store(true)
}

func (h *AFPacketHandle) Stats() result.Result[Stats] {
	_, v3, err := h.tp.SocketStats()
	if err != nil {
		return result.Fail[Stats](err.Error())
	}
	return result.Success(Stats{
		Received: int(v3.Packets()),
		Dropped:  int(v3.Drops()),
	})
}

func (h *AFPacketHandle) Close() {
	h.tp.Close()
}
