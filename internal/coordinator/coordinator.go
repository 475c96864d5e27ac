// Package coordinator implements the Slice→Instance Coordinator (SIC):
// the one-way glue between the Slice State Store, the CAT Server, the
// Radio Backend Client, the Process Supervisor and the QSO State Machine
// (spec.md §4.7). It is the only component in this module that depends
// on all the others -- the teacher's own "Manager holds Coordinator holds
// Manager" cyclic shape (spec.md §9) is deliberately not reproduced:
// every other package here is a leaf SIC imports, never the reverse.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SensorsIot/wsjt-x-MCP/internal/catserver"
	"github.com/SensorsIot/wsjt-x-MCP/internal/iniwriter"
	"github.com/SensorsIot/wsjt-x-MCP/internal/metrics"
	"github.com/SensorsIot/wsjt-x-MCP/internal/qso"
	"github.com/SensorsIot/wsjt-x-MCP/internal/radiobackend"
	"github.com/SensorsIot/wsjt-x-MCP/internal/slicestore"
	"github.com/SensorsIot/wsjt-x-MCP/internal/supervisor"
	"github.com/SensorsIot/wsjt-x-MCP/internal/telemetry"
	"github.com/SensorsIot/wsjt-x-MCP/internal/wirecodec"
)

// BusEventKind names the dashboard-bus events spec.md §6 lists.
type BusEventKind string

const (
	BusDecode            BusEventKind = "decode"
	BusStatus            BusEventKind = "status"
	BusInstanceLaunched   BusEventKind = "instance-launched"
	BusInstanceStopped    BusEventKind = "instance-stopped"
	BusSliceUpdated       BusEventKind = "slice-updated"
	BusQSOComplete        BusEventKind = "qso-complete"
	BusQSOFailed          BusEventKind = "qso-failed"
)

// BusEvent is one dashboard-bus notification (spec.md §6, OUT OF CORE
// consumer contract). CorrelationID is a fresh uuid per event; it
// identifies that one event and is not shared with the MCP call or
// decode that led to it.
type BusEvent struct {
	Kind          BusEventKind
	InstanceID    string
	Payload       any
	CorrelationID string
}

// QSOOutcome is the BusQSOComplete/BusQSOFailed payload: enough of the
// finished QSO's record and its slice's frequency/mode for a dashboard
// or ADIF logger to render a line without querying anything else.
// Reason is empty for BusQSOComplete.
type QSOOutcome struct {
	Status qso.Status
	Slice  slicestore.Slice
	Reason qso.FailReason
}

// Options configures a Coordinator.
type Options struct {
	TelemetryBasePort int
	CATBasePort       int
	DecoderBinaryPath string
	DataDir           string
	MyCall            string
	MyGrid            string
	StateTimeout      time.Duration
	MaxRetries        int
	StopTimeout       time.Duration
}

type instanceState struct {
	index         int
	instanceID    string
	telemetryPort int
	catPort       int

	qsm     *qso.Machine
	qsmStop chan struct{}
	outConn *net.UDPConn
}

// Coordinator is the SIC. Zero value is not usable; use New.
type Coordinator struct {
	opts    Options
	sss     *slicestore.Store
	rbc     *radiobackend.Client
	cat     *catserver.Server
	sup     *supervisor.Supervisor
	tl      *telemetry.Listener
	metrics *metrics.Registry
	logger  *log.Logger

	mu       sync.Mutex
	byIndex  map[int]*instanceState
	byID     map[string]*instanceState

	busMu sync.RWMutex
	onBus func(BusEvent)

	listenCtx    context.Context
	listenCancel context.CancelFunc
}

// New wires a Coordinator over its already-constructed leaf
// dependencies. Run starts the event plumbing; construction alone does
// no I/O.
func New(opts Options, sss *slicestore.Store, rbc *radiobackend.Client, cat *catserver.Server, sup *supervisor.Supervisor, tl *telemetry.Listener, reg *metrics.Registry, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = supervisor.DefaultStopTimeout
	}
	return &Coordinator{
		opts:    opts,
		sss:     sss,
		rbc:     rbc,
		cat:     cat,
		sup:     sup,
		tl:      tl,
		metrics: reg,
		logger:  logger,
		byIndex: make(map[int]*instanceState),
		byID:    make(map[string]*instanceState),
	}
}

// OnBusEvent registers the single callback for dashboard-bus events.
func (c *Coordinator) OnBusEvent(fn func(BusEvent)) {
	c.busMu.Lock()
	defer c.busMu.Unlock()
	c.onBus = fn
}

func (c *Coordinator) publish(ev BusEvent) {
	if ev.CorrelationID == "" {
		ev.CorrelationID = uuid.NewString()
	}
	c.busMu.RLock()
	fn := c.onBus
	c.busMu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// Run wires every cross-component callback and blocks until ctx is
// canceled. Callers run it in its own goroutine (or task, per spec.md
// §5's one-task-per-endpoint model); the listeners it drives (sss
// subscription, catserver OnEvent, telemetry OnDecode/OnStatus/OnClose,
// supervisor OnExited) are themselves each backed by their own task.
func (c *Coordinator) Run(ctx context.Context) {
	c.listenCtx, c.listenCancel = context.WithCancel(ctx)

	events, unsubscribe := c.sss.Subscribe(64)
	defer unsubscribe()

	c.cat.OnEvent(c.handleCATEvent)
	c.cat.OnDialectDetected(c.handleCATDialectDetected)
	c.cat.OnCommand(c.handleCATCommand)
	c.sup.OnExited(c.handleChildExited)
	c.tl.OnDecode(c.handleDecode)
	c.tl.OnStatus(c.handleStatus)
	c.tl.OnClose(c.handleClose)
	c.tl.OnDrop(c.handleTelemetryDrop)
	c.rbc.OnConnectionChange(c.handleRBCConnectionChange)
	c.rbc.OnReconnect(c.handleRBCReconnect)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handleSliceEvent(ev)
		case <-ctx.Done():
			c.shutdownAll()
			return
		}
	}
}

func (c *Coordinator) handleSliceEvent(ev slicestore.Event) {
	switch ev.Kind {
	case slicestore.SliceAdded:
		c.onSliceAdded(ev.Index, ev.State)
	case slicestore.SliceUpdated:
		c.onSliceUpdated(ev.Index, ev.State)
	case slicestore.SliceRemoved:
		c.onSliceRemoved(ev.Index, ev.State)
	}
}

// deriveInstanceID implements spec.md §4.7 step 1: "Slice-<Letter>"
// where Letter = 'A' + index.
func deriveInstanceID(index int) string {
	return fmt.Sprintf("Slice-%c", byte('A'+index))
}

func (c *Coordinator) onSliceAdded(index int, state slicestore.Slice) {
	instanceID := deriveInstanceID(index)
	telemetryPort := c.opts.TelemetryBasePort + index
	catPort := c.opts.CATBasePort + index

	outConn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: telemetryPort})
	if err != nil {
		c.logger.Printf("coordinator: dial outbound UDP for %s: %v", instanceID, err)
		return
	}

	inst := &instanceState{
		index:         index,
		instanceID:    instanceID,
		telemetryPort: telemetryPort,
		catPort:       catPort,
		qsmStop:       make(chan struct{}),
		outConn:       outConn,
	}
	inst.qsm = qso.New(instanceID, c.opts.MyCall, c.opts.MyGrid, c.opts.StateTimeout, c.opts.MaxRetries, c.logger)
	inst.qsm.OnSend(func(intent qso.Intent) error { return c.sendIntent(inst, intent) })
	inst.qsm.OnComplete(func() {
		if c.metrics != nil {
			c.metrics.QSOCompletedTotal.Inc()
			c.metrics.QSOActive.Dec()
		}
		sl, _ := c.sss.Snapshot(inst.index)
		c.publish(BusEvent{Kind: BusQSOComplete, InstanceID: instanceID, Payload: QSOOutcome{Status: inst.qsm.Status(), Slice: sl}})
	})
	inst.qsm.OnFailed(func(reason qso.FailReason) {
		if c.metrics != nil {
			c.metrics.QSOFailedTotal.WithLabelValues(string(reason)).Inc()
			c.metrics.QSOActive.Dec()
		}
		sl, _ := c.sss.Snapshot(inst.index)
		c.publish(BusEvent{Kind: BusQSOFailed, InstanceID: instanceID, Payload: QSOOutcome{Status: inst.qsm.Status(), Slice: sl, Reason: reason}})
	})
	inst.qsm.OnTransition(func(state qso.State) {
		if c.metrics == nil {
			return
		}
		c.metrics.QSOTransitionsTotal.WithLabelValues(state.String()).Inc()
		if state == qso.Calling && inst.qsm.Status().AttemptCount == 1 {
			c.metrics.QSOActive.Inc()
		}
	})

	c.mu.Lock()
	c.byIndex[index] = inst
	c.byID[instanceID] = inst
	c.mu.Unlock()

	go inst.qsm.Run(inst.qsmStop)

	if c.listenCtx != nil {
		go func() {
			if err := c.cat.Listen(c.listenCtx, index); err != nil {
				c.logger.Printf("coordinator: cat listener for slice %d: %v", index, err)
			}
		}()
	}

	if c.opts.DataDir != "" {
		path := filepath.Join(c.opts.DataDir, instanceID+".ini")
		cfg := iniwriter.InstanceConfig{
			RigName:        "TS-2000",
			CATNetworkPort: catPort,
			UDPServerPort:  telemetryPort,
			UDPServerHost:  "127.0.0.1",
			SoundInName:    "default",
			SoundOutName:   "default",
		}
		if err := iniwriter.WriteFile(path, cfg); err != nil {
			c.logger.Printf("coordinator: write ini for %s: %v", instanceID, err)
		}
	}

	if c.sup != nil {
		if _, err := c.sup.Spawn(instanceID, telemetryPort, catPort); err != nil {
			c.logger.Printf("coordinator: spawn %s: %v", instanceID, err)
		} else {
			if c.metrics != nil {
				c.metrics.SupervisorSpawnsTotal.Inc()
				c.metrics.SupervisorRunningGauge.Inc()
			}
			c.publish(BusEvent{Kind: BusInstanceLaunched, InstanceID: instanceID})
		}
	}

	_ = state // seed values already live in SSS; CAT reads it live on every query.
}

// onSliceUpdated has no cached state to refresh: catserver reads the
// slice store directly on every query, so "push the new frequency/mode
// into the CAT listener's cache" (spec.md §4.7) is satisfied for free.
// The event is still republished on the dashboard bus.
func (c *Coordinator) onSliceUpdated(index int, state slicestore.Slice) {
	inst, ok := c.lookupByIndex(index)
	if !ok {
		return
	}
	c.publish(BusEvent{Kind: BusSliceUpdated, InstanceID: inst.instanceID, Payload: state})
}

func (c *Coordinator) onSliceRemoved(index int, state slicestore.Slice) {
	inst, ok := c.lookupByIndex(index)
	if !ok {
		return
	}

	c.cat.StopListening(index)

	if c.sup != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.StopTimeout+time.Second)
		if err := c.sup.Stop(ctx, inst.instanceID, c.opts.StopTimeout); err != nil {
			c.logger.Printf("coordinator: stop %s: %v", inst.instanceID, err)
		}
		cancel()
		c.sup.Remove(inst.instanceID)
		if c.metrics != nil {
			c.metrics.SupervisorRunningGauge.Dec()
		}
	}

	close(inst.qsmStop)
	if inst.outConn != nil {
		inst.outConn.Close()
	}

	c.mu.Lock()
	delete(c.byIndex, index)
	delete(c.byID, inst.instanceID)
	c.mu.Unlock()

	c.publish(BusEvent{Kind: BusInstanceStopped, InstanceID: inst.instanceID, Payload: state})
}

// handleCATEvent forwards CAT-origin mutations to the radio backend
// (spec.md §4.4/§4.7). Frequency sets mirror via Tune; PTT toggles
// mirror the global xmit toggle. catserver applies the SSS mutation
// (including the single-transmitter enforcement) itself, right after
// emitting, so handleCATEvent only drives the radio backend side.
func (c *Coordinator) handleCATEvent(ev catserver.Event) {
	switch ev.Kind {
	case catserver.FrequencyChange:
		if err := c.rbc.Tune(ev.Index, ev.FrequencyHz); err != nil {
			c.logger.Printf("coordinator: tune slice %d: %v", ev.Index, err)
		}
	case catserver.PTTChange:
		if err := c.rbc.SetGlobalTx(ev.TX); err != nil {
			c.logger.Printf("coordinator: xmit slice %d: %v", ev.Index, err)
		}
	}
}

func (c *Coordinator) handleChildExited(instanceID string, err error) {
	c.logger.Printf("coordinator: %s exited unexpectedly: %v", instanceID, err)
	if c.metrics != nil {
		c.metrics.SupervisorExitsTotal.WithLabelValues("false").Inc()
		c.metrics.SupervisorRunningGauge.Dec()
	}
	c.publish(BusEvent{Kind: BusInstanceStopped, InstanceID: instanceID, Payload: err})
}

func (c *Coordinator) handleDecode(d wirecodec.Decode) {
	if c.metrics != nil {
		c.metrics.TelemetryDecodesTotal.WithLabelValues(d.InstanceID).Inc()
	}
	inst, ok := c.lookupByID(d.InstanceID)
	if ok {
		inst.qsm.Feed(d)
	}
	c.publish(BusEvent{Kind: BusDecode, InstanceID: d.InstanceID, Payload: d})
}

func (c *Coordinator) handleStatus(st wirecodec.Status) {
	c.publish(BusEvent{Kind: BusStatus, InstanceID: st.InstanceID, Payload: st})
}

func (c *Coordinator) handleClose(cl wirecodec.Close) {
	c.publish(BusEvent{Kind: BusInstanceStopped, InstanceID: cl.InstanceID, Payload: "decoder app sent Close"})
}

func (c *Coordinator) handleTelemetryDrop() {
	if c.metrics != nil {
		c.metrics.TelemetryDroppedPackets.Inc()
	}
}

func (c *Coordinator) handleRBCConnectionChange(connected bool) {
	if c.metrics == nil {
		return
	}
	if connected {
		c.metrics.RadioBackendConnected.Set(1)
	} else {
		c.metrics.RadioBackendConnected.Set(0)
	}
}

func (c *Coordinator) handleRBCReconnect() {
	if c.metrics != nil {
		c.metrics.RadioBackendReconnects.Inc()
	}
}

func (c *Coordinator) handleCATDialectDetected(d wirecodec.Dialect) {
	if c.metrics != nil {
		c.metrics.CATDialectDetections.WithLabelValues(d.String()).Inc()
	}
}

func (c *Coordinator) handleCATCommand(index int, token string) {
	if c.metrics != nil {
		c.metrics.CATCommandsTotal.WithLabelValues(fmt.Sprintf("%d", index), token).Inc()
	}
}

// sendIntent realizes a QSM transmit Intent as outbound UDP to the
// decoder app: a Reply built from the triggering decode when one is
// available (preferred -- arms the decoder's own sequencer, spec.md
// §4.8), otherwise a FreeText command.
func (c *Coordinator) sendIntent(inst *instanceState, intent qso.Intent) error {
	var frame []byte
	var err error
	if intent.BasedOnDecode != nil {
		d := intent.BasedOnDecode
		frame, err = wirecodec.EncodeReply(wirecodec.ReplyCommand{
			InstanceID: inst.instanceID,
			TimeMs:     d.TimeMs,
			SNRdB:      d.SNRdB,
			DTSeconds:  d.DTSeconds,
			DFHz:       d.DFHz,
			Mode:       d.Mode,
			Message:    intent.Message,
		})
	} else {
		frame, err = wirecodec.EncodeFreeText(inst.instanceID, intent.Message, true)
	}
	if err != nil {
		return fmt.Errorf("coordinator: encode intent for %s: %w", inst.instanceID, err)
	}
	_, err = inst.outConn.Write(frame)
	return err
}

// HaltTx sends the decoder app an immediate halt-transmit command,
// bypassing the QSM (spec.md's MCP "halt_tx" operation).
func (c *Coordinator) HaltTx(instanceID string, autoOnly bool) error {
	inst, ok := c.lookupByID(instanceID)
	if !ok {
		return fmt.Errorf("coordinator: unknown instance %q", instanceID)
	}
	frame, err := wirecodec.EncodeHaltTx(instanceID, autoOnly)
	if err != nil {
		return err
	}
	_, err = inst.outConn.Write(frame)
	return err
}

// StartInstance (re)spawns the decoder-app child process for an
// already-mapped instance without disturbing its CAT listener, slice
// state, or QSM -- for an operator restarting a wedged decoder app, as
// distinct from the slice-added/removed lifecycle that creates and
// destroys the mapping itself (spec.md's MCP "start_instance").
func (c *Coordinator) StartInstance(instanceID string) error {
	inst, ok := c.lookupByID(instanceID)
	if !ok {
		return fmt.Errorf("coordinator: unknown instance %q", instanceID)
	}
	if c.sup == nil {
		return fmt.Errorf("coordinator: no supervisor configured")
	}
	if _, err := c.sup.Spawn(instanceID, inst.telemetryPort, inst.catPort); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.SupervisorSpawnsTotal.Inc()
		c.metrics.SupervisorRunningGauge.Inc()
	}
	c.publish(BusEvent{Kind: BusInstanceLaunched, InstanceID: instanceID})
	return nil
}

// StopInstance stops only the decoder-app child process for an
// already-mapped instance, leaving its CAT listener, slice state, and
// QSM intact (spec.md's MCP "stop_instance").
func (c *Coordinator) StopInstance(instanceID string) error {
	inst, ok := c.lookupByID(instanceID)
	if !ok {
		return fmt.Errorf("coordinator: unknown instance %q", instanceID)
	}
	if c.sup == nil {
		return fmt.Errorf("coordinator: no supervisor configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.StopTimeout+time.Second)
	defer cancel()
	if err := c.sup.Stop(ctx, inst.instanceID, c.opts.StopTimeout); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.SupervisorRunningGauge.Dec()
	}
	c.publish(BusEvent{Kind: BusInstanceStopped, InstanceID: instanceID, Payload: "stop_instance requested"})
	return nil
}

// StartQSO begins an autonomous contact attempt on instanceID against
// targetCall (spec.md's MCP "execute_qso" operation). targetGrid is
// optional and purely informational (carried through to the QSO's
// ADIF record and dashboard status for distance/bearing display).
func (c *Coordinator) StartQSO(instanceID, targetCall, targetGrid string) error {
	inst, ok := c.lookupByID(instanceID)
	if !ok {
		return fmt.Errorf("coordinator: unknown instance %q", instanceID)
	}
	return inst.qsm.Start(targetCall, targetGrid)
}

// containsCall reports whether message has want as one of its
// whitespace-separated tokens, with want and each token normalized via
// qso.NormalizeCall the same way the QSM matches an addressed exchange.
func containsCall(message, want string) bool {
	want = qso.NormalizeCall(want)
	for _, tok := range strings.Fields(message) {
		if qso.NormalizeCall(tok) == want {
			return true
		}
	}
	return false
}

// ReplyToStation sends a one-off Reply built from the most recent decode
// matching fromCall in instanceID's decode history, with message text
// (spec.md's MCP "reply_to_station" operation).
func (c *Coordinator) ReplyToStation(instanceID, fromCall, message string) error {
	inst, ok := c.lookupByID(instanceID)
	if !ok {
		return fmt.Errorf("coordinator: unknown instance %q", instanceID)
	}
	var based *wirecodec.Decode
	if c.tl != nil {
		want := qso.NormalizeCall(fromCall)
		history := c.tl.DecodeHistory(instanceID)
		for i := len(history) - 1; i >= 0; i-- {
			d := history[i]
			if containsCall(d.Message, want) {
				based = &d
				break
			}
		}
	}
	var frame []byte
	var err error
	if based != nil {
		frame, err = wirecodec.EncodeReply(wirecodec.ReplyCommand{
			InstanceID: instanceID,
			TimeMs:     based.TimeMs,
			SNRdB:      based.SNRdB,
			DTSeconds:  based.DTSeconds,
			DFHz:       based.DFHz,
			Mode:       based.Mode,
			Message:    message,
		})
	} else {
		frame, err = wirecodec.EncodeFreeText(instanceID, message, true)
	}
	if err != nil {
		return err
	}
	_, err = inst.outConn.Write(frame)
	return err
}

// SetFrequency and SetMode satisfy the MCP "set_frequency"/"set_mode"
// operations by driving the same path a CAT client would (SSS mutation +
// RBC mirror), so a tool-initiated change is indistinguishable from a
// CAT-origin one to every other observer.
func (c *Coordinator) SetFrequency(index int, hz uint64) error {
	c.sss.ApplyPush(index, slicestore.Deltas{FrequencyHz: &hz})
	return c.rbc.Tune(index, hz)
}

func (c *Coordinator) SetMode(index int, mode slicestore.Mode) error {
	c.sss.ApplyPush(index, slicestore.Deltas{Mode: &mode})
	return c.rbc.SetMode(index, mode)
}

// EmergencyStop clears transmit on every known slice (spec.md §6's
// "emergency_stop": best-effort and idempotent).
func (c *Coordinator) EmergencyStop() {
	for _, sl := range c.sss.SnapshotAll() {
		if sl.Transmit {
			c.sss.SetTx(sl.Index, false)
		}
	}
	if err := c.rbc.SetGlobalTx(false); err != nil {
		c.logger.Printf("coordinator: emergency stop xmit: %v", err)
	}
}

// ListInstances returns every instance id currently tracked.
func (c *Coordinator) ListInstances() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.byID))
	for id := range c.byID {
		out = append(out, id)
	}
	return out
}

// InstanceStatus is a read-only cross-section of one instance's state
// for the MCP "get_status" operation and the dashboard.
type InstanceStatus struct {
	InstanceID string
	Slice      slicestore.Slice
	QSO        qso.Status
	Running    bool
}

// GetStatus returns InstanceStatus for instanceID, or an error if
// unknown (spec.md §7: "any operator command referencing a non-existent
// instance returns a short error").
func (c *Coordinator) GetStatus(instanceID string) (InstanceStatus, error) {
	inst, ok := c.lookupByID(instanceID)
	if !ok {
		return InstanceStatus{}, fmt.Errorf("coordinator: unknown instance %q", instanceID)
	}
	sl, _ := c.sss.Snapshot(inst.index)
	running := false
	if c.sup != nil {
		if procInst, ok := c.sup.Get(instanceID); ok {
			running = procInst.Running()
		}
	}
	return InstanceStatus{
		InstanceID: instanceID,
		Slice:      sl,
		QSO:        inst.qsm.Status(),
		Running:    running,
	}, nil
}

func (c *Coordinator) lookupByIndex(index int) (*instanceState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.byIndex[index]
	return inst, ok
}

func (c *Coordinator) lookupByID(instanceID string) (*instanceState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.byID[instanceID]
	return inst, ok
}

func (c *Coordinator) shutdownAll() {
	c.mu.Lock()
	indices := make([]int, 0, len(c.byIndex))
	for idx := range c.byIndex {
		indices = append(indices, idx)
	}
	c.mu.Unlock()
	for _, idx := range indices {
		if sl, ok := c.sss.Snapshot(idx); ok {
			c.onSliceRemoved(idx, sl)
		}
	}
}
