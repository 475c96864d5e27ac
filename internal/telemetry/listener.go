// Package telemetry implements the Telemetry Listener (TL): a UDP
// listener that demuxes the decoder-app's framed binary protocol by
// instance id and dispatches typed events (spec.md §4.5).
package telemetry

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/SensorsIot/wsjt-x-MCP/internal/wirecodec"
)

// maxTrackedInstances bounds how many distinct instance_id decode
// histories are kept at once; older instances are evicted first.
const maxTrackedInstances = 64

// maxDecodeHistoryPerInstance bounds the sliding window of decodes kept
// per instance (spec.md's "sliding window", size fixed here rather than
// configurable since the spec gives no tuning knob for it).
const maxDecodeHistoryPerInstance = 200

// Listener is the TL. Zero value is not usable; use New.
type Listener struct {
	port int

	mu      sync.Mutex
	conn    *net.UDPConn
	running bool

	history *lru.Cache[string, *decodeHistory]
	logger  *log.Logger

	handlersMu sync.RWMutex
	onHeartbeat func(wirecodec.Heartbeat)
	onStatus    func(wirecodec.Status)
	onDecode    func(wirecodec.Decode)
	onClose     func(wirecodec.Close)
	onDrop      func()

	droppedPackets atomic.Uint64
}

type decodeHistory struct {
	mu      sync.Mutex
	decodes []wirecodec.Decode
}

func (h *decodeHistory) append(d wirecodec.Decode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.decodes = append(h.decodes, d)
	if len(h.decodes) > maxDecodeHistoryPerInstance {
		h.decodes = h.decodes[len(h.decodes)-maxDecodeHistoryPerInstance:]
	}
}

func (h *decodeHistory) snapshot() []wirecodec.Decode {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]wirecodec.Decode, len(h.decodes))
	copy(out, h.decodes)
	return out
}

// New creates a Listener for port; Run binds the socket on every
// interface.
func New(port int, logger *log.Logger) (*Listener, error) {
	if logger == nil {
		logger = log.Default()
	}
	cache, err := lru.New[string, *decodeHistory](maxTrackedInstances)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating history cache: %w", err)
	}
	return &Listener{port: port, history: cache, logger: logger}, nil
}

// OnHeartbeat/OnStatus/OnDecode/OnClose register the single callback for
// each event kind. Mirrors catserver's and slicestore's mutex-guarded
// registration style.
func (l *Listener) OnHeartbeat(fn func(wirecodec.Heartbeat)) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.onHeartbeat = fn
}

func (l *Listener) OnStatus(fn func(wirecodec.Status)) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.onStatus = fn
}

func (l *Listener) OnDecode(fn func(wirecodec.Decode)) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.onDecode = fn
}

func (l *Listener) OnClose(fn func(wirecodec.Close)) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.onClose = fn
}

// OnDrop registers the callback invoked once per datagram dropped for a
// bad magic, short read, or decode error, in addition to the running
// DroppedPackets counter.
func (l *Listener) OnDrop(fn func()) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.onDrop = fn
}

// Run binds the UDP socket and processes datagrams until Stop is called.
// Parse errors drop the offending datagram and are counted; they never
// stall subsequent reads (spec.md §4.5).
func (l *Listener) Run() error {
	addr := &net.UDPAddr{Port: l.port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("telemetry: listen on port %d: %w", l.port, err)
	}

	l.mu.Lock()
	l.conn = conn
	l.running = true
	l.mu.Unlock()

	buf := make([]byte, 65535)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			l.mu.Lock()
			stopped := !l.running
			l.mu.Unlock()
			if stopped {
				return nil
			}
			return fmt.Errorf("telemetry: read: %w", err)
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		l.handleDatagram(datagram)
	}
}

// Stop closes the socket, unblocking Run.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.running = false
	if l.conn != nil {
		l.conn.Close()
	}
}

// DroppedPackets reports the number of datagrams dropped for a bad magic,
// short read, or decode error.
func (l *Listener) DroppedPackets() uint64 {
	return l.droppedPackets.Load()
}

// DecodeHistory returns the sliding window of recent decodes for
// instanceID, or nil if no history is tracked for it.
func (l *Listener) DecodeHistory(instanceID string) []wirecodec.Decode {
	h, ok := l.history.Get(instanceID)
	if !ok {
		return nil
	}
	return h.snapshot()
}

func (l *Listener) handleDatagram(datagram []byte) {
	ev, err := wirecodec.DecodeInboundFrame(datagram)
	if err != nil {
		l.droppedPackets.Add(1)
		l.logger.Printf("telemetry: dropped datagram: %v", err)
		l.handlersMu.RLock()
		fn := l.onDrop
		l.handlersMu.RUnlock()
		if fn != nil {
			fn()
		}
		return
	}
	if ev == nil {
		return // recognized-but-uninteresting or unknown type
	}

	switch {
	case ev.Heartbeat != nil:
		l.dispatchHeartbeat(*ev.Heartbeat)
	case ev.Status != nil:
		l.dispatchStatus(*ev.Status)
	case ev.Decode != nil:
		l.recordDecode(*ev.Decode)
		l.dispatchDecode(*ev.Decode)
	case ev.Close != nil:
		l.dispatchClose(*ev.Close)
	}
}

func (l *Listener) recordDecode(d wirecodec.Decode) {
	h, ok := l.history.Get(d.InstanceID)
	if !ok {
		h = &decodeHistory{}
		l.history.Add(d.InstanceID, h)
	}
	h.append(d)
}

func (l *Listener) dispatchHeartbeat(hb wirecodec.Heartbeat) {
	l.handlersMu.RLock()
	fn := l.onHeartbeat
	l.handlersMu.RUnlock()
	if fn != nil {
		fn(hb)
	}
}

func (l *Listener) dispatchStatus(st wirecodec.Status) {
	l.handlersMu.RLock()
	fn := l.onStatus
	l.handlersMu.RUnlock()
	if fn != nil {
		fn(st)
	}
}

func (l *Listener) dispatchDecode(d wirecodec.Decode) {
	l.handlersMu.RLock()
	fn := l.onDecode
	l.handlersMu.RUnlock()
	if fn != nil {
		fn(d)
	}
}

func (l *Listener) dispatchClose(c wirecodec.Close) {
	l.handlersMu.RLock()
	fn := l.onClose
	l.handlersMu.RUnlock()
	if fn != nil {
		fn(c)
	}
}
