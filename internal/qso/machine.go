// Package qso implements the QSO State Machine (QSM): a per-instance,
// timed sequencer that consumes decodes, matches the fixed FT8-style
// exchange pattern, decides transmissions, and enforces timeouts and
// retries (spec.md §4.8). Every Machine runs its own single goroutine so
// state transitions can never interleave (spec.md §5: "state transitions
// execute on a single task"), the same actor-over-a-channel shape the
// teacher uses for its broadcaster's stopChan/heartbeat loop in
// decoder_wsjtx_udp.go, generalized from a ticker to a per-state
// re-armable timer.
package qso

import (
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/SensorsIot/wsjt-x-MCP/internal/wirecodec"
)

// State is one node of the QSO sequencer (spec.md §3/§4.8).
type State int

const (
	Idle State = iota
	Calling
	WaitingReply
	SendingReport
	WaitingReport
	SendingConfirm
	WaitingFinal
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Calling:
		return "Calling"
	case WaitingReply:
		return "WaitingReply"
	case SendingReport:
		return "SendingReport"
	case WaitingReport:
		return "WaitingReport"
	case SendingConfirm:
		return "SendingConfirm"
	case WaitingFinal:
		return "WaitingFinal"
	case Complete:
		return "Complete"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Defaults per spec.md §4.8.
const (
	DefaultStateTimeout = 15 * time.Second
	DefaultMaxRetries   = 3
)

// FailReason distinguishes the two terminal-failure error kinds spec.md
// §7 names: a bare QsoTimeout (no retries configured at all) and
// QsoMaxRetries (retries exhausted).
type FailReason string

const (
	ReasonTimeout    FailReason = "timeout"
	ReasonMaxRetries FailReason = "max_retries"
)

// Intent is one transmit decision the Machine hands to its Send
// callback. BasedOnDecode is non-nil when the intent is realized as a
// Reply built from that decode (preferred, arms the decoder's own
// sequencer per spec.md §4.8); nil means the caller should send a
// FreeText command instead.
type Intent struct {
	InstanceID    string
	Message       string
	BasedOnDecode *wirecodec.Decode
}

// Status is a read-only snapshot of the QSO record (spec.md §3).
type Status struct {
	MyCall           string
	MyGrid           string
	TargetCall       string
	TargetGrid       string
	State            State
	AttemptCount     int
	LastTransitionTS time.Time
}

var reportPattern = regexp.MustCompile(`^[Rr]?([+-]\d{1,2})$`)

// Machine is the per-instance QSM. Zero value is not usable; use New.
type Machine struct {
	instanceID   string
	myCall       string
	myGrid       string
	stateTimeout time.Duration
	maxRetries   int
	logger       *log.Logger

	sendMu sync.RWMutex
	send   func(Intent) error

	onTerminalMu sync.RWMutex
	onComplete   func()
	onFailed     func(reason FailReason)

	onTransitionMu sync.RWMutex
	onTransition   func(State)

	actions chan func()
	done    chan struct{}
	stopped sync.Once

	statusMu sync.RWMutex
	status   Status

	timer      *time.Timer
	generation int
	terminal   bool
}

// New creates a Machine for instanceID. stateTimeout and maxRetries fall
// back to spec.md's defaults when zero/negative.
func New(instanceID, myCall, myGrid string, stateTimeout time.Duration, maxRetries int, logger *log.Logger) *Machine {
	if stateTimeout <= 0 {
		stateTimeout = DefaultStateTimeout
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Machine{
		instanceID:   instanceID,
		myCall:       myCall,
		myGrid:       myGrid,
		stateTimeout: stateTimeout,
		maxRetries:   maxRetries,
		logger:       logger,
		actions:      make(chan func(), 8),
		done:         make(chan struct{}),
		status:       Status{MyCall: myCall, MyGrid: myGrid, State: Idle},
	}
}

// OnSend registers the callback used to realize a transmit Intent.
func (m *Machine) OnSend(fn func(Intent) error) {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	m.send = fn
}

// OnComplete/OnFailed register the terminal-event callbacks. Each fires
// at most once per QSO lifecycle (spec.md §4.8).
func (m *Machine) OnComplete(fn func()) {
	m.onTerminalMu.Lock()
	defer m.onTerminalMu.Unlock()
	m.onComplete = fn
}

func (m *Machine) OnFailed(fn func(reason FailReason)) {
	m.onTerminalMu.Lock()
	defer m.onTerminalMu.Unlock()
	m.onFailed = fn
}

// OnTransition registers the callback invoked every time setStatus moves
// the machine into a new state. The machine never re-enters Idle: a new
// Start goes straight from Complete or Failed to Calling.
func (m *Machine) OnTransition(fn func(State)) {
	m.onTransitionMu.Lock()
	defer m.onTransitionMu.Unlock()
	m.onTransition = fn
}

// Run processes actions (Start requests, decodes, timeouts) on a single
// goroutine until stop is closed. Callers must run it in its own
// goroutine before calling Start or Feed.
func (m *Machine) Run(stop <-chan struct{}) {
	for {
		select {
		case fn := <-m.actions:
			fn()
		case <-stop:
			m.stopped.Do(func() { close(m.done) })
			if m.timer != nil {
				m.timer.Stop()
			}
			return
		}
	}
}

// Status returns a consistent snapshot of the current QSO record.
func (m *Machine) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

func (m *Machine) setStatus(state State, attempt int, target string) {
	m.statusMu.Lock()
	m.status.State = state
	m.status.AttemptCount = attempt
	m.status.LastTransitionTS = time.Now()
	if target != "" {
		m.status.TargetCall = target
	}
	m.statusMu.Unlock()

	m.onTransitionMu.RLock()
	fn := m.onTransition
	m.onTransitionMu.RUnlock()
	if fn != nil {
		fn(state)
	}
}

// Start begins a new QSO against targetCall. targetGrid is optional (the
// Maidenhead locator the station reported in the CQ it was heard on, if
// any); it rides along purely for logging, never read by the state
// machine itself. Rejected with an error if a QSO is already in flight
// (state is not Idle/Complete/Failed), per spec.md §4.8: "Concurrent
// start requests for the same instance are rejected with an error."
func (m *Machine) Start(targetCall, targetGrid string) error {
	resp := make(chan error, 1)
	action := func() { resp <- m.doStart(targetCall, targetGrid) }
	select {
	case m.actions <- action:
	case <-m.done:
		return fmt.Errorf("qso: machine for %s has stopped", m.instanceID)
	}
	return <-resp
}

func (m *Machine) doStart(targetCall, targetGrid string) error {
	cur := m.Status().State
	if cur != Idle && cur != Complete && cur != Failed {
		return fmt.Errorf("qso: %s already has a QSO in progress (state %s)", m.instanceID, cur)
	}
	m.terminal = false
	m.setStatus(Calling, 1, targetCall)
	m.statusMu.Lock()
	m.status.TargetGrid = targetGrid
	m.statusMu.Unlock()
	m.transmitCQ()
	m.enterWaiting(WaitingReply)
	return nil
}

// Feed delivers one decode to the machine. Non-blocking from the
// caller's perspective once queued; actual matching happens on the
// Machine's own goroutine, preserving arrival order per instance
// (spec.md §5).
func (m *Machine) Feed(d wirecodec.Decode) {
	action := func() { m.onDecode(d) }
	select {
	case m.actions <- action:
	case <-m.done:
	}
}

func (m *Machine) onDecode(d wirecodec.Decode) {
	st := m.Status()
	switch st.State {
	case Calling, WaitingReply:
		if _, ok := matchAddressed(d.Message, st.TargetCall, m.myCall); ok {
			m.advanceToReport(d)
		}
	case SendingReport, WaitingReport:
		if rest, ok := matchAddressed(d.Message, st.TargetCall, m.myCall); ok {
			if _, ok := findReport(rest); ok {
				m.advanceToConfirm(d)
			}
		}
	case SendingConfirm, WaitingFinal:
		if rest, ok := matchAddressed(d.Message, st.TargetCall, m.myCall); ok {
			if hasFinal(rest) {
				m.complete()
			}
		}
	default:
		// Idle/Complete/Failed: no QSO in flight, decode is irrelevant.
	}
}

func (m *Machine) advanceToReport(d wirecodec.Decode) {
	m.cancelTimer()
	m.setStatus(SendingReport, 1, "")
	m.transmitReport(&d)
	m.enterWaiting(WaitingReport)
}

func (m *Machine) advanceToConfirm(d wirecodec.Decode) {
	m.cancelTimer()
	m.setStatus(SendingConfirm, 1, "")
	m.transmitConfirm(&d)
	m.enterWaiting(WaitingFinal)
}

func (m *Machine) complete() {
	m.cancelTimer()
	m.setStatus(Complete, 0, "")
	m.fireComplete()
}

// enterWaiting transitions into the passive half of the current phase
// and arms the state timer. Exiting any state (advance or timeout)
// always cancels the timer first (spec.md §5: "armed on state entry and
// disarmed on state exit").
func (m *Machine) enterWaiting(waiting State) {
	cur := m.Status()
	m.setStatus(waiting, cur.AttemptCount, "")
	m.generation++
	gen := m.generation
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.stateTimeout, func() {
		action := func() { m.onTimeout(gen) }
		select {
		case m.actions <- action:
		case <-m.done:
		}
	})
}

func (m *Machine) cancelTimer() {
	m.generation++
	if m.timer != nil {
		m.timer.Stop()
	}
}

func (m *Machine) onTimeout(gen int) {
	if gen != m.generation {
		return // stale timer, already superseded by an advance or a prior timeout
	}
	st := m.Status()
	switch st.State {
	case WaitingReply:
		m.retryOrFail(Calling, st, func() { m.transmitCQ() })
	case WaitingReport:
		m.retryOrFail(SendingReport, st, func() { m.transmitReport(nil) })
	case WaitingFinal:
		m.retryFinalOrComplete(st)
	}
}

func (m *Machine) retryOrFail(retryState State, st Status, retransmit func()) {
	if m.maxRetries <= 1 {
		m.setStatus(Failed, st.AttemptCount, "")
		m.fireFailed(ReasonTimeout)
		return
	}
	next := st.AttemptCount + 1
	if next > m.maxRetries {
		m.setStatus(Failed, st.AttemptCount, "")
		m.fireFailed(ReasonMaxRetries)
		return
	}
	m.setStatus(retryState, next, "")
	retransmit()
	switch retryState {
	case Calling:
		m.enterWaiting(WaitingReply)
	case SendingReport:
		m.enterWaiting(WaitingReport)
	}
}

// retryFinalOrComplete implements spec.md's deliberately loose
// WaitingFinal timeout rule ("Complete (tolerant) or Failed — see
// below"): retries the confirm like any other phase, but once retries
// are exhausted treats the contact as tolerantly complete rather than
// failed, since our own RR73 was very likely received even if we never
// heard a 73 back (Open Question decision, see DESIGN.md).
func (m *Machine) retryFinalOrComplete(st Status) {
	if m.maxRetries <= 1 {
		m.setStatus(Complete, st.AttemptCount, "")
		m.fireComplete()
		return
	}
	next := st.AttemptCount + 1
	if next > m.maxRetries {
		m.setStatus(Complete, st.AttemptCount, "")
		m.fireComplete()
		return
	}
	m.setStatus(SendingConfirm, next, "")
	m.transmitConfirm(nil)
	m.enterWaiting(WaitingFinal)
}

func (m *Machine) transmitCQ() {
	m.dispatch(Intent{
		InstanceID: m.instanceID,
		Message:    fmt.Sprintf("CQ %s %s", m.myCall, m.myGrid),
	})
}

// transmitReport sends our signal report to the target. d is the decode
// that triggered this transmission when one is available (nil on a bare
// timeout retransmit, in which case the intent falls back to FreeText --
// spec.md §4.8's "only one intent in flight" with no fresher decode to
// piggyback a Reply on).
func (m *Machine) transmitReport(d *wirecodec.Decode) {
	st := m.Status()
	snr := int32(0)
	if d != nil {
		snr = d.SNRdB
	}
	m.dispatch(Intent{
		InstanceID:    m.instanceID,
		Message:       fmt.Sprintf("%s %s %s", m.myCall, st.TargetCall, formatReport(snr)),
		BasedOnDecode: d,
	})
}

func (m *Machine) transmitConfirm(d *wirecodec.Decode) {
	st := m.Status()
	m.dispatch(Intent{
		InstanceID:    m.instanceID,
		Message:       fmt.Sprintf("%s %s RR73", m.myCall, st.TargetCall),
		BasedOnDecode: d,
	})
}

func (m *Machine) dispatch(intent Intent) {
	m.sendMu.RLock()
	fn := m.send
	m.sendMu.RUnlock()
	if fn == nil {
		return
	}
	if err := fn(intent); err != nil {
		m.logger.Printf("qso: %s send %q: %v", m.instanceID, intent.Message, err)
	}
}

func (m *Machine) fireComplete() {
	if m.terminal {
		return
	}
	m.terminal = true
	m.onTerminalMu.RLock()
	fn := m.onComplete
	m.onTerminalMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (m *Machine) fireFailed(reason FailReason) {
	if m.terminal {
		return
	}
	m.terminal = true
	m.onTerminalMu.RLock()
	fn := m.onFailed
	m.onTerminalMu.RUnlock()
	if fn != nil {
		fn(reason)
	}
}

// matchAddressed implements spec.md §4.8's decode pattern matching: the
// concrete scenario in spec.md §8 ("On decode `DL1XYZ W1ABC -05`") fixes
// the wire order as "<them> <my> <rest...>" -- the addressed station
// first, the sender second -- for every advancing decode, regardless of
// how loosely the state table names the pattern. Matching is
// case-insensitive; callsigns ignore a trailing portable-operation
// suffix like /P, /M, /MM.
func matchAddressed(raw, them, my string) ([]string, bool) {
	tokens := strings.Fields(raw)
	if len(tokens) < 2 {
		return nil, false
	}
	if normalizeCall(tokens[0]) != normalizeCall(them) {
		return nil, false
	}
	if normalizeCall(tokens[1]) != normalizeCall(my) {
		return nil, false
	}
	return tokens[2:], true
}

func normalizeCall(call string) string {
	call = strings.ToUpper(strings.TrimSpace(call))
	if idx := strings.IndexByte(call, '/'); idx >= 0 {
		call = call[:idx]
	}
	return call
}

// NormalizeCall exports the addressed-exchange callsign normalization
// (uppercase, strip a trailing "/P"-style suffix) so callers outside
// this package can match a callsign against decode text the same way
// the state machine does.
func NormalizeCall(call string) string {
	return normalizeCall(call)
}

// findReport implements spec.md's "Report parsing accepts [+-]\d{1,2}
// anywhere in the trailing tokens", tolerating an optional leading R for
// the roger-report form.
func findReport(tokens []string) (int, bool) {
	for _, tok := range tokens {
		if m := reportPattern.FindStringSubmatch(tok); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func hasFinal(tokens []string) bool {
	for _, tok := range tokens {
		if strings.EqualFold(tok, "73") || strings.EqualFold(tok, "RR73") {
			return true
		}
	}
	return false
}

// formatReport renders an SNR in dB as the spec's signed two-digit form
// ("+NN"/"-NN").
func formatReport(snr int32) string {
	if snr < 0 {
		return fmt.Sprintf("-%02d", -snr)
	}
	return fmt.Sprintf("+%02d", snr)
}
