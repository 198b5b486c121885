// Package listener orchestrates the capture pipeline: it binds a capture
// handle to one server endpoint, installs the BPF filter, and forwards each
// UDP payload to a per-direction sink.
package listener

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/gopacket/layers"

	"github.com/Skinpack/JAProxy/internal/capture"
	"github.com/Skinpack/JAProxy/internal/core"
	"github.com/Skinpack/JAProxy/internal/decoder"
	"github.com/Skinpack/JAProxy/internal/jka"
	"github.com/Skinpack/JAProxy/internal/result"
)

// Sinks receive one direction's payloads. Both are invoked on the capture
// goroutine, serially, in capture order; a nil sink drops its direction.
type Sinks struct {
	OnClientPacket func(core.RawPacket)
	OnServerPacket func(core.RawPacket)
}

// StartError describes which startup step failed and why. Startup is atomic:
// after a StartError the listener holds no resources and may be started again.
type StartError struct {
	Step string
	Diag string
}

func (e *StartError) Error() string {
	return fmt.Sprintf("listener start failed while %s: %s", e.Step, e.Diag)
}

// Filter returns the BPF expression restricting capture to the server
// endpoint. It is the only traffic restriction besides direction
// classification.
func Filter(server core.Endpoint) string {
	return fmt.Sprintf("udp and ((dst %s and dst port %d) or (src %s and src port %d))",
		server.Addr, server.Port, server.Addr, server.Port)
}

// Option configures a Listener.
type Option func(*Listener)

// WithCaptureOptions overrides the capture backend configuration.
func WithCaptureOptions(opts capture.Options) Option {
	return func(l *Listener) { l.opts = opts }
}

// Listener owns one capture handle bound to one server endpoint for its
// whole lifetime.
type Listener struct {
	server core.Endpoint
	codec  jka.Codec
	sinks  Sinks
	opts   capture.Options

	// open is swapped in tests to avoid touching real devices.
	open func(capture.Options) result.Result[capture.Handle]

	mu         sync.Mutex
	handle     capture.Handle
	done       chan struct{}
	loopResult result.Result[bool]
	running    bool
}

// New builds a listener bound to the given server endpoint. codec is the
// process-wide shared Huffman codec handed through to downstream decoders.
// No network resources are touched until Start.
func New(server core.Endpoint, codec jka.Codec, sinks Sinks, options ...Option) (*Listener, error) {
	if !server.IsValid() {
		return nil, fmt.Errorf("invalid server endpoint %s", server)
	}
	l := &Listener{
		server: server,
		codec:  codec,
		sinks:  sinks,
		opts:   capture.DefaultOptions(),
		open:   capture.Open,
	}
	for _, opt := range options {
		opt(l)
	}
	return l, nil
}

// Server returns the endpoint the listener is bound to.
func (l *Listener) Server() core.Endpoint {
	return l.server
}

// Codec returns the shared Huffman codec reference.
func (l *Listener) Codec() jka.Codec {
	return l.codec
}

// Start opens the capture handle, negotiates a datalink the framer can
// strip, installs the endpoint filter, and launches the blocking loop on a
// dedicated goroutine. Any failure is returned as a *StartError and leaves
// the listener restartable.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return core.ErrAlreadyStarted
	}
	if l.handle != nil {
		// Previous loop ended on its own; release before reopening.
		l.handle.Close()
		l.handle = nil
	}

	opened := l.open(l.opts)
	if !opened.IsSuccess() {
		return &StartError{Step: "opening capture handle", Diag: opened.ErrString()}
	}
	h := opened.Value()

	negotiated := capture.NegotiateLinkType(h)
	if !negotiated.IsSuccess() {
		h.Close()
		return &StartError{Step: "negotiating datalink", Diag: negotiated.ErrString()}
	}

	if installed := h.SetFilter(Filter(l.server)); !installed.IsSuccess() {
		h.Close()
		return &StartError{Step: "installing filter", Diag: installed.ErrString()}
	}

	l.handle = h
	l.done = make(chan struct{})
	l.running = true
	go l.run(h, negotiated.Value(), l.done)
	return nil
}

func (l *Listener) run(h capture.Handle, lt layers.LinkType, done chan struct{}) {
	res := h.Loop(func(f capture.Frame) {
		l.dispatch(lt, f)
	})

	l.mu.Lock()
	l.loopResult = res
	l.running = false
	l.mu.Unlock()
	close(done)
}

// dispatch is the per-frame fast path. Parse failures are dropped silently;
// they remain visible only through the capture statistics.
func (l *Listener) dispatch(lt layers.LinkType, f capture.Frame) {
	ipData, err := decoder.StripLink(lt, f.Data)
	if err != nil {
		return
	}
	view, err := decoder.ParseUDP(ipData)
	if err != nil {
		return
	}

	switch core.DirectionOf(view, l.server) {
	case core.FromClient:
		if l.sinks.OnClientPacket != nil {
			l.sinks.OnClientPacket(ownPacket(view, f.Timestamp))
		}
	case core.FromServer:
		if l.sinks.OnServerPacket != nil {
			l.sinks.OnServerPacket(ownPacket(view, f.Timestamp))
		}
	}
}

// ownPacket detaches the payload from the capture buffer so the sink may keep
// it past the callback.
func ownPacket(v core.UDPView, ts time.Time) core.RawPacket {
	return core.RawPacket{
		Data:      append([]byte(nil), v.Payload...),
		Timestamp: ts,
	}
}

// Wait blocks until the loop has exited and returns its outcome: success for
// a clean stop or end-of-capture, failure with a diagnostic for a fatal loop
// error.
func (l *Listener) Wait() result.Result[bool] {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	if done == nil {
		return result.Fail[bool](core.ErrNotStarted.Error())
	}
	<-done

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loopResult
}

// Stop requests the loop to break. Idempotent, safe from any goroutine, and
// a no-op before Start or after the loop has exited. The loop returns within
// one read timeout.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running || l.handle == nil {
		return
	}
	l.handle.BreakLoop()
}

// Stats returns the capture counters of the underlying handle.
func (l *Listener) Stats() result.Result[capture.Stats] {
	l.mu.Lock()
	h := l.handle
	l.mu.Unlock()

	if h == nil {
		return result.Fail[capture.Stats](core.ErrNotStarted.Error())
	}
	return h.Stats()
}

// Close stops the loop, joins it, and releases the capture handle. Safe to
// call multiple times and on a never-started listener.
func (l *Listener) Close() {
	l.Stop()

	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done != nil {
		<-done
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle != nil {
		l.handle.Close()
		l.handle = nil
	}
	l.done = nil
}
