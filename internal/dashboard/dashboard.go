// Package dashboard serves the control plane's read-only HTTP/WebSocket
// surface (spec.md §6, OUT OF CORE consumer contract): a snapshot REST
// endpoint, a WebSocket event fan-out of everything the coordinator's
// bus publishes, and an access log that resolves User-Agent strings.
// Grounded on the teacher's websocket.go (upgrader configuration,
// per-connection write goroutine, stats aggregation) and
// session_stats_api.go (uaparser.Parser use on the access path).
package dashboard

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"
	"github.com/ua-parser/uap-go/uaparser"

	"github.com/SensorsIot/wsjt-x-MCP/internal/coordinator"
)

// upgrader mirrors the teacher's websocket.go settings: origin checking
// disabled (operator-facing LAN tool, not a public multi-tenant
// service), larger-than-default buffers for the occasional bulk
// snapshot frame.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 32768,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Backend is the subset of *coordinator.Coordinator the dashboard reads
// for its REST snapshot endpoints.
type Backend interface {
	ListInstances() []string
	GetStatus(instanceID string) (coordinator.InstanceStatus, error)
}

// Server is the dashboard's HTTP server. Zero value is not usable; use
// New.
type Server struct {
	backend  Backend
	logger   *log.Logger
	mux      *http.ServeMux
	uaParser *uaparser.Parser

	zstdMu  sync.Mutex
	zstdEnc *zstd.Encoder

	connsMu sync.Mutex
	conns   map[*wsConn]struct{}

	adif *adifLogger
	mqtt *mqttMirror
}

type wsConn struct {
	conn  *websocket.Conn
	mu    sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, body)
}

// Options configures a Server.
type Options struct {
	ADIFLogPath string
	MQTT        *MQTTOptions
}

// New builds a dashboard Server. Pass logger=nil to use log.Default().
func New(backend Backend, opts Options, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Default()
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("dashboard: new zstd encoder: %w", err)
	}

	s := &Server{
		backend:  backend,
		logger:   logger,
		mux:      http.NewServeMux(),
		uaParser: uaparser.NewFromSaved(),
		zstdEnc:  enc,
		conns:    make(map[*wsConn]struct{}),
	}

	if opts.ADIFLogPath != "" {
		s.adif = newADIFLogger(opts.ADIFLogPath)
	}
	if opts.MQTT != nil {
		mirror, err := newMQTTMirror(*opts.MQTT, logger)
		if err != nil {
			return nil, fmt.Errorf("dashboard: mqtt mirror: %w", err)
		}
		s.mqtt = mirror
	}

	s.routes()
	return s, nil
}

// Handler returns the dashboard's http.Handler for mounting in a
// net/http.Server (with or without additional middleware).
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/instances", s.withAccessLog(s.handleListInstances))
	s.mux.HandleFunc("/api/status/", s.withAccessLog(s.handleGetStatus))
	s.mux.HandleFunc("/ws", s.withAccessLog(s.handleWebSocket))
}

// withAccessLog resolves the request's User-Agent via uaparser before
// delegating, matching the teacher's access-logging shape in
// session_stats_api.go.
func (s *Server) withAccessLog(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := s.uaParser.Parse(r.UserAgent())
		s.logger.Printf("dashboard: %s %s ua=%s/%s", r.Method, r.URL.Path, client.UserAgent.Family, client.UserAgent.ToVersionString())
		next(w, r)
	}
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.backend.ListInstances())
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[len("/api/status/"):]
	if id == "" {
		http.Error(w, "missing instance id", http.StatusBadRequest)
		return
	}
	status, err := s.backend.GetStatus(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// handleWebSocket upgrades the connection, sends a zstd-compressed
// snapshot of every known instance's status, then registers the
// connection for the bus fan-out until it disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("dashboard: websocket upgrade: %v", err)
		return
	}
	conn := &wsConn{conn: raw}

	if err := s.sendSnapshot(conn); err != nil {
		s.logger.Printf("dashboard: send snapshot: %v", err)
	}

	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()

	defer func() {
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
		raw.Close()
	}()

	// Dashboard connections are read-only observers; drain and discard
	// any client frames (pings, accidental sends) until the peer closes.
	for {
		if _, _, err := raw.ReadMessage(); err != nil {
			return
		}
	}
}

type snapshotEntry struct {
	InstanceID string                     `json:"instance_id"`
	Status     coordinator.InstanceStatus `json:"status"`
}

func (s *Server) sendSnapshot(conn *wsConn) error {
	ids := s.backend.ListInstances()
	entries := make([]snapshotEntry, 0, len(ids))
	for _, id := range ids {
		st, err := s.backend.GetStatus(id)
		if err != nil {
			continue
		}
		entries = append(entries, snapshotEntry{InstanceID: id, Status: st})
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	s.zstdMu.Lock()
	compressed := s.zstdEnc.EncodeAll(raw, nil)
	s.zstdMu.Unlock()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.conn.WriteMessage(websocket.BinaryMessage, compressed)
}

// OnBusEvent is registered with coordinator.Coordinator.OnBusEvent. It
// fans a dashboard-bus event out to every connected WebSocket client,
// mirrors it to MQTT when configured, and appends an ADIF record for
// completed QSOs when configured.
func (s *Server) OnBusEvent(ev coordinator.BusEvent) {
	s.connsMu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.connsMu.Unlock()

	wire := busEventWire{Kind: string(ev.Kind), InstanceID: ev.InstanceID, Payload: ev.Payload, CorrelationID: ev.CorrelationID, At: time.Now().UTC()}
	for _, c := range conns {
		if err := c.writeJSON(wire); err != nil {
			s.logger.Printf("dashboard: write ws event: %v", err)
		}
	}

	if s.mqtt != nil {
		s.mqtt.publish(ev)
	}

	if s.adif != nil && ev.Kind == coordinator.BusQSOComplete {
		if outcome, ok := ev.Payload.(coordinator.QSOOutcome); ok {
			if err := s.adif.appendQSO(outcome); err != nil {
				s.logger.Printf("dashboard: append adif record: %v", err)
			}
		}
	}
}

type busEventWire struct {
	Kind          string    `json:"kind"`
	InstanceID    string    `json:"instance_id"`
	Payload       any       `json:"payload,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	At            time.Time `json:"at"`
}

// Close releases the zstd encoder and any MQTT connection.
func (s *Server) Close() {
	s.zstdMu.Lock()
	s.zstdEnc.Close()
	s.zstdMu.Unlock()
	if s.mqtt != nil {
		s.mqtt.close()
	}
}
