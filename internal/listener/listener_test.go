package listener

import (
	"encoding/binary"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skinpack/JAProxy/internal/capture"
	"github.com/Skinpack/JAProxy/internal/core"
	"github.com/Skinpack/JAProxy/internal/result"
)

// fakeHandle feeds canned frames to the loop callback, then blocks until
// BreakLoop, emulating a live handle with a short read timeout.
type fakeHandle struct {
	lt        layers.LinkType
	frames    [][]byte
	loopErr   string
	filter    string
	filterErr string

	brkOnce sync.Once
	brk     chan struct{}
	closed  bool
}

func newFakeHandle(frames ...[]byte) *fakeHandle {
	return &fakeHandle{
		lt:     layers.LinkTypeRaw,
		frames: frames,
		brk:    make(chan struct{}),
	}
}

func (f *fakeHandle) LinkType() layers.LinkType { return f.lt }

func (f *fakeHandle) SupportedLinkTypes() result.Result[[]layers.LinkType] {
	return result.Success([]layers.LinkType{f.lt})
}

func (f *fakeHandle) SetLinkType(lt layers.LinkType) result.Result[layers.LinkType] {
	f.lt = lt
	return result.Success(lt)
}

func (f *fakeHandle) SetFilter(expr string) result.Result[string] {
	if f.filterErr != "" {
		return result.FailWith(expr, f.filterErr)
	}
	f.filter = expr
	return result.Success(expr)
}

func (f *fakeHandle) Loop(cb capture.Callback) result.Result[bool] {
	for _, data := range f.frames {
		cb(capture.Frame{Data: data, Timestamp: time.Now(), Length: len(data)})
	}
	if f.loopErr != "" {
		return result.FailWith(false, f.loopErr)
	}
	for {
		select {
		case <-f.brk:
			return result.Success(true)
		case <-time.After(10 * time.Millisecond):
			// emulates the read timeout poll
		}
	}
}

func (f *fakeHandle) BreakLoop() {
	f.brkOnce.Do(func() { close(f.brk) })
}

func (f *fakeHandle) Stats() result.Result[capture.Stats] {
	return result.Success(capture.Stats{Received: len(f.frames)})
}

func (f *fakeHandle) Close() { f.closed = true }

// recorder collects sink invocations per direction.
type recorder struct {
	mu      sync.Mutex
	client  []core.RawPacket
	server  []core.RawPacket
	inOrder []core.Direction
}

func (r *recorder) sinks() Sinks {
	return Sinks{
		OnClientPacket: func(p core.RawPacket) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.client = append(r.client, p)
			r.inOrder = append(r.inOrder, core.FromClient)
		},
		OnServerPacket: func(p core.RawPacket) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.server = append(r.server, p)
			r.inOrder = append(r.inOrder, core.FromServer)
		},
	}
}

// ipv4UDPFrame builds a frame starting at the IPv4 header, matching the raw
// link type of the fake handle.
func ipv4UDPFrame(src, dst string, srcPort, dstPort uint16, payload []byte) []byte {
	srcIP := netip.MustParseAddr(src).As4()
	dstIP := netip.MustParseAddr(dst).As4()

	udpLen := 8 + len(payload)
	data := make([]byte, 20+udpLen)
	data[0] = 0x45
	binary.BigEndian.PutUint16(data[2:4], uint16(20+udpLen))
	data[8] = 64
	data[9] = 17
	copy(data[12:16], srcIP[:])
	copy(data[16:20], dstIP[:])

	udp := data[20:]
	binary.BigEndian.PutUint16(udp[0:2], srcPort)
	binary.BigEndian.PutUint16(udp[2:4], dstPort)
	binary.BigEndian.PutUint16(udp[4:6], uint16(udpLen))
	copy(udp[8:], payload)
	return data
}

func serverEndpoint(t *testing.T) core.Endpoint {
	t.Helper()
	server, err := core.NewEndpoint("192.168.1.10", 29070)
	require.NoError(t, err)
	return server
}

func newTestListener(t *testing.T, h *fakeHandle, sinks Sinks) *Listener {
	t.Helper()
	l, err := New(serverEndpoint(t), nil, sinks)
	require.NoError(t, err)
	l.open = func(capture.Options) result.Result[capture.Handle] {
		return result.Success[capture.Handle](h)
	}
	return l
}

func runToCompletion(t *testing.T, l *Listener) result.Result[bool] {
	t.Helper()
	require.NoError(t, l.Start())
	l.Stop()
	res := l.Wait()
	l.Close()
	return res
}

var getstatus = append([]byte{0xFF, 0xFF, 0xFF, 0xFF}, "getstatus"...)
var statusResponse = append([]byte{0xFF, 0xFF, 0xFF, 0xFF}, "statusResponse\n"...)

func TestDispatchClientPacket(t *testing.T) {
	h := newFakeHandle(ipv4UDPFrame("10.0.0.5", "192.168.1.10", 50000, 29070, getstatus))
	rec := &recorder{}
	l := newTestListener(t, h, rec.sinks())

	res := runToCompletion(t, l)

	require.True(t, res.IsSuccess())
	require.Len(t, rec.client, 1)
	assert.Empty(t, rec.server)
	assert.Equal(t, getstatus, rec.client[0].Data)
	assert.Len(t, rec.client[0].Data, 13)
}

func TestDispatchServerPacket(t *testing.T) {
	h := newFakeHandle(ipv4UDPFrame("192.168.1.10", "10.0.0.5", 29070, 50000, statusResponse))
	rec := &recorder{}
	l := newTestListener(t, h, rec.sinks())

	res := runToCompletion(t, l)

	require.True(t, res.IsSuccess())
	require.Len(t, rec.server, 1)
	assert.Empty(t, rec.client)
	assert.Equal(t, statusResponse, rec.server[0].Data)
}

func TestUnrelatedTrafficDropped(t *testing.T) {
	h := newFakeHandle(ipv4UDPFrame("10.0.0.5", "10.0.0.7", 50000, 27015, []byte("whatever")))
	rec := &recorder{}
	l := newTestListener(t, h, rec.sinks())

	runToCompletion(t, l)

	assert.Empty(t, rec.client)
	assert.Empty(t, rec.server)
}

func TestFragmentedFrameDropped(t *testing.T) {
	frame := ipv4UDPFrame("10.0.0.5", "192.168.1.10", 50000, 29070, getstatus)
	binary.BigEndian.PutUint16(frame[6:8], 0x2000) // MF=1

	h := newFakeHandle(frame)
	rec := &recorder{}
	l := newTestListener(t, h, rec.sinks())

	runToCompletion(t, l)

	assert.Empty(t, rec.client)
	assert.Empty(t, rec.server)
}

func TestCaptureOrderPreservedAcrossDirections(t *testing.T) {
	h := newFakeHandle(
		ipv4UDPFrame("10.0.0.5", "192.168.1.10", 50000, 29070, getstatus),
		ipv4UDPFrame("192.168.1.10", "10.0.0.5", 29070, 50000, statusResponse),
		ipv4UDPFrame("10.0.0.5", "192.168.1.10", 50000, 29070, getstatus),
	)
	rec := &recorder{}
	l := newTestListener(t, h, rec.sinks())

	runToCompletion(t, l)

	assert.Equal(t, []core.Direction{core.FromClient, core.FromServer, core.FromClient}, rec.inOrder)
}

func TestPayloadIsOwnedCopy(t *testing.T) {
	frame := ipv4UDPFrame("10.0.0.5", "192.168.1.10", 50000, 29070, getstatus)
	h := newFakeHandle(frame)
	rec := &recorder{}
	l := newTestListener(t, h, rec.sinks())

	runToCompletion(t, l)

	// Scribble over the capture buffer; the delivered packet must not change.
	for i := range frame {
		frame[i] = 0
	}
	require.Len(t, rec.client, 1)
	assert.Equal(t, getstatus, rec.client[0].Data)
}

func TestFilterString(t *testing.T) {
	server, err := core.NewEndpoint("1.2.3.4", 29070)
	require.NoError(t, err)

	want := "udp and ((dst 1.2.3.4 and dst port 29070) or (src 1.2.3.4 and src port 29070))"
	assert.Equal(t, want, Filter(server))
}

func TestFilterInstalledOnStart(t *testing.T) {
	h := newFakeHandle()
	l := newTestListener(t, h, Sinks{})

	require.NoError(t, l.Start())
	defer l.Close()
	l.Stop()

	assert.Equal(t, Filter(serverEndpoint(t)), h.filter)
}

func TestStartFailsOnFilterInstall(t *testing.T) {
	h := newFakeHandle()
	h.filterErr = "syntax error"
	l := newTestListener(t, h, Sinks{})

	err := l.Start()

	var startErr *StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, "installing filter", startErr.Step)
	assert.Equal(t, "syntax error", startErr.Diag)
	assert.True(t, h.closed, "failed start must release the handle")
}

func TestStartupAtomicity(t *testing.T) {
	l, err := New(serverEndpoint(t), nil, Sinks{})
	require.NoError(t, err)

	failing := true
	h := newFakeHandle()
	l.open = func(capture.Options) result.Result[capture.Handle] {
		if failing {
			return result.Fail[capture.Handle]("permission denied")
		}
		return result.Success[capture.Handle](h)
	}

	var startErr *StartError
	require.ErrorAs(t, l.Start(), &startErr)
	assert.Equal(t, "opening capture handle", startErr.Step)

	// The fault is gone; the same listener must start cleanly.
	failing = false
	require.NoError(t, l.Start())
	l.Stop()
	require.True(t, l.Wait().IsSuccess())
	l.Close()
}

func TestStartWhileRunning(t *testing.T) {
	h := newFakeHandle()
	l := newTestListener(t, h, Sinks{})

	require.NoError(t, l.Start())
	defer l.Close()

	assert.ErrorIs(t, l.Start(), core.ErrAlreadyStarted)
	l.Stop()
}

func TestStopIdempotent(t *testing.T) {
	h := newFakeHandle()
	l := newTestListener(t, h, Sinks{})

	l.Stop() // before start: no-op

	require.NoError(t, l.Start())
	l.Stop()
	l.Stop()
	require.True(t, l.Wait().IsSuccess())
	l.Stop() // after the loop exited: no-op
	l.Close()
}

func TestStopResponsiveness(t *testing.T) {
	h := newFakeHandle()
	l := newTestListener(t, h, Sinks{})

	require.NoError(t, l.Start())
	l.Stop()

	doneCh := make(chan result.Result[bool], 1)
	go func() { doneCh <- l.Wait() }()

	select {
	case res := <-doneCh:
		assert.True(t, res.IsSuccess())
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop within the read-timeout bound")
	}
	l.Close()
}

func TestLoopErrorSurfacesThroughWait(t *testing.T) {
	h := newFakeHandle()
	h.loopErr = "the interface went down"
	l := newTestListener(t, h, Sinks{})

	require.NoError(t, l.Start())
	res := l.Wait()

	assert.False(t, res.IsSuccess())
	assert.Equal(t, "the interface went down", res.ErrString())
	l.Close()
}

func TestWaitBeforeStart(t *testing.T) {
	l, err := New(serverEndpoint(t), nil, Sinks{})
	require.NoError(t, err)

	assert.False(t, l.Wait().IsSuccess())
}

func TestStatsPassthrough(t *testing.T) {
	h := newFakeHandle(ipv4UDPFrame("10.0.0.5", "192.168.1.10", 50000, 29070, getstatus))
	l := newTestListener(t, h, Sinks{})

	require.False(t, l.Stats().IsSuccess(), "no stats before start")

	require.NoError(t, l.Start())
	l.Stop()
	require.True(t, l.Wait().IsSuccess())

	stats := l.Stats()
	require.True(t, stats.IsSuccess())
	assert.Equal(t, 1, stats.Value().Received)
	l.Close()
}

func TestNewRejectsInvalidEndpoint(t *testing.T) {
	_, err := New(core.Endpoint{}, nil, Sinks{})
	assert.Error(t, err)
}
