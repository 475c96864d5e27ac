// Package catserver implements the CAT Server (CAT): one TCP listener per
// slice, dialect auto-detection on accept, and a command loop that reads
// and mutates the shared slice state store (spec.md §4.4).
package catserver

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/SensorsIot/wsjt-x-MCP/internal/slicestore"
	"github.com/SensorsIot/wsjt-x-MCP/internal/wirecodec"
)

// EventKind distinguishes the two CAT-origin mutations the Coordinator
// must forward to the radio backend (spec.md §4.4).
type EventKind int

const (
	FrequencyChange EventKind = iota
	PTTChange
)

// Event is one CAT-origin mutation.
type Event struct {
	Kind        EventKind
	Index       int
	FrequencyHz uint64
	TX          bool
}

// detectTimeout bounds how long a connection handler waits for enough
// bytes to resolve the dialect before giving up and defaulting to B
// (spec.md §4.1.6 names no explicit timeout; this keeps a slow or silent
// peer from pinning a goroutine forever).
const detectTimeout = 5 * time.Second

// Server owns one listener per known slice index.
type Server struct {
	basePort int
	sss      *slicestore.Store
	logger   *log.Logger

	onEventMu sync.RWMutex
	onEvent   func(Event)

	statsMu        sync.RWMutex
	onDialect      func(wirecodec.Dialect)
	onCommand      func(index int, token string)

	mu        sync.Mutex
	listeners map[int]net.Listener
}

// New creates a Server. basePort is the loopback port slice 0 binds;
// slice i binds basePort+i.
func New(basePort int, sss *slicestore.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		basePort:  basePort,
		sss:       sss,
		logger:    logger,
		listeners: make(map[int]net.Listener),
	}
}

// OnEvent registers the single callback invoked for CAT-origin mutations.
// Mirrors the teacher's mutex-guarded single-callback pattern; only the
// Coordinator is expected to register one.
func (s *Server) OnEvent(fn func(Event)) {
	s.onEventMu.Lock()
	defer s.onEventMu.Unlock()
	s.onEvent = fn
}

func (s *Server) emit(ev Event) {
	s.onEventMu.RLock()
	fn := s.onEvent
	s.onEventMu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// OnDialectDetected registers the callback invoked once per accepted
// connection with the dialect serveConn resolved to.
func (s *Server) OnDialectDetected(fn func(wirecodec.Dialect)) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.onDialect = fn
}

// OnCommand registers the callback invoked once per command token
// handled on any slice, after it has been parsed successfully.
func (s *Server) OnCommand(fn func(index int, token string)) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.onCommand = fn
}

func (s *Server) emitDialect(d wirecodec.Dialect) {
	s.statsMu.RLock()
	fn := s.onDialect
	s.statsMu.RUnlock()
	if fn != nil {
		fn(d)
	}
}

func (s *Server) emitCommand(index int, token string) {
	s.statsMu.RLock()
	fn := s.onCommand
	s.statsMu.RUnlock()
	if fn != nil {
		fn(index, token)
	}
}

// Listen starts a loopback listener for index and serves connections
// until ctx is canceled. Connections are independent; a disconnect never
// mutates slice state (spec.md §4.4).
func (s *Server) Listen(ctx context.Context, index int) error {
	port := s.basePort + index
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("catserver: listen slice %d on port %d: %w", index, port, err)
	}

	s.mu.Lock()
	s.listeners[index] = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("catserver: accept slice %d: %w", index, err)
			}
		}
		go s.serveConn(index, conn)
	}
}

// StopListening closes the listener for index, if any.
func (s *Server) StopListening(index int) {
	s.mu.Lock()
	ln, ok := s.listeners[index]
	delete(s.listeners, index)
	s.mu.Unlock()
	if ok {
		ln.Close()
	}
}

func (s *Server) serveConn(index int, conn net.Conn) {
	defer conn.Close()

	dialect, peeked, err := detectDialect(conn)
	if err != nil {
		s.logger.Printf("catserver: slice %d dialect detection: %v", index, err)
		return
	}
	s.emitDialect(dialect)

	switch dialect {
	case wirecodec.DialectA:
		s.serveDialectA(index, conn, peeked)
	case wirecodec.DialectB:
		s.serveDialectB(index, conn, peeked)
	case wirecodec.DialectC:
		s.serveDialectC(index, conn, peeked)
	}
}

// detectDialect grows a probe buffer by reading from conn until
// wirecodec.DetectDialect can decide, or detectTimeout elapses (in which
// case it falls back to dialect B). It returns the dialect and whatever
// bytes were read so the caller's framer doesn't lose them.
func detectDialect(conn net.Conn) (wirecodec.Dialect, []byte, error) {
	_ = conn.SetReadDeadline(time.Now().Add(detectTimeout))
	defer conn.SetReadDeadline(time.Time{})

	buf := make([]byte, 0, wirecodec.MaxProbeBytes)
	chunk := make([]byte, 64)
	for {
		if d, ok := wirecodec.DetectDialect(buf); ok {
			return d, buf, nil
		}
		if len(buf) >= wirecodec.MaxProbeBytes {
			return wirecodec.DialectB, buf, nil
		}
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if len(buf) == 0 {
				return wirecodec.DialectUnknown, nil, err
			}
			d, ok := wirecodec.DetectDialect(buf)
			if !ok {
				d = wirecodec.DialectB
			}
			return d, buf, nil
		}
	}
}

// bufferedConn lets a dialect handler keep reading past the bytes already
// consumed during detection without losing them.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func newBufferedConn(conn net.Conn, preread []byte) *bufferedConn {
	r := bufio.NewReader(conn)
	if len(preread) > 0 {
		r = bufio.NewReader(newPrefixReader(preread, conn))
	}
	return &bufferedConn{Conn: conn, r: r}
}

type prefixReader struct {
	prefix []byte
	rest   net.Conn
}

func newPrefixReader(prefix []byte, rest net.Conn) *prefixReader {
	return &prefixReader{prefix: prefix, rest: rest}
}

func (p *prefixReader) Read(b []byte) (int, error) {
	if len(p.prefix) > 0 {
		n := copy(b, p.prefix)
		p.prefix = p.prefix[n:]
		return n, nil
	}
	return p.rest.Read(b)
}
