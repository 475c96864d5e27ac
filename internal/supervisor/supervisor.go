// Package supervisor implements the Process Supervisor (PS): spawns,
// tracks, and terminates decoder-app child processes, one per instance id
// (spec.md §4.6).
package supervisor

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	hcversion "github.com/hashicorp/go-version"
	psprocess "github.com/shirou/gopsutil/v3/process"
)

// DefaultStopTimeout is how long Stop waits for graceful exit before
// escalating to SIGKILL (spec.md §4.6: "default 5 s").
const DefaultStopTimeout = 5 * time.Second

// DefaultMinimumVersion is the oldest decoder-app release this control
// plane assumes the UDP frame set in internal/wirecodec against.
// Spawning an older binary is logged as a warning, not refused: the
// wire format itself is what spec.md's frame contract actually pins,
// and an old binary that still speaks it should keep working.
const DefaultMinimumVersion = "2.6.0"

var versionOutputPattern = regexp.MustCompile(`(\d+\.\d+(?:\.\d+)?)`)

// Instance is the Process Supervisor's owned view of one decoder-app
// child (spec.md §3 DecoderInstance, the process_handle/running fields).
type Instance struct {
	InstanceID     string
	TelemetryPort  int
	CATPort        int

	mu        sync.Mutex
	cmd       *exec.Cmd
	running   bool
	stopping  bool
	exitErr   error
	exitCh    chan struct{}
}

// Running reports whether the child is believed alive.
func (inst *Instance) Running() bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.running
}

// PID returns the child's process id, or 0 if it never started.
func (inst *Instance) PID() int {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.cmd == nil || inst.cmd.Process == nil {
		return 0
	}
	return inst.cmd.Process.Pid
}

// Wait blocks until the child has exited (or was never started), then
// reports the exit error if any. Safe to call from multiple goroutines.
func (inst *Instance) Wait() error {
	inst.mu.Lock()
	ch := inst.exitCh
	inst.mu.Unlock()
	if ch == nil {
		return nil
	}
	<-ch
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.exitErr
}

// Usage samples the child's CPU and memory via gopsutil, for decoder
// health reporting. Returns an error if the process is gone or
// unreadable; callers should treat that as "no sample available" rather
// than fatal.
func (inst *Instance) Usage() (cpuPercent float64, rssBytes uint64, err error) {
	pid := inst.PID()
	if pid == 0 {
		return 0, 0, fmt.Errorf("supervisor: instance %s has no pid", inst.InstanceID)
	}
	proc, err := psprocess.NewProcess(int32(pid))
	if err != nil {
		return 0, 0, fmt.Errorf("supervisor: open process %d: %w", pid, err)
	}
	cpuPercent, err = proc.CPUPercent()
	if err != nil {
		return 0, 0, fmt.Errorf("supervisor: cpu sample for %d: %w", pid, err)
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return 0, 0, fmt.Errorf("supervisor: mem sample for %d: %w", pid, err)
	}
	return cpuPercent, memInfo.RSS, nil
}

// Supervisor owns every spawned Instance. Zero value is not usable; use
// New.
type Supervisor struct {
	binaryPath     string
	minVersion     *hcversion.Version
	logger         *log.Logger
	stopTimeout    time.Duration

	versionCheckOnce sync.Once

	exitedMu sync.Mutex
	onExited func(instanceID string, err error)

	mu        sync.Mutex
	instances map[string]*Instance
}

// New creates a Supervisor that spawns binaryPath for each instance and
// checks it against DefaultMinimumVersion.
func New(binaryPath string, logger *log.Logger) *Supervisor {
	return NewWithMinimumVersion(binaryPath, DefaultMinimumVersion, logger)
}

// NewWithMinimumVersion is New with an explicit minimum decoder-app
// version requirement. minVersion is the oldest decoder-app release Spawn
// won't warn about; an empty string uses DefaultMinimumVersion, and a
// string that fails to parse as a version disables the check entirely.
func NewWithMinimumVersion(binaryPath, minVersion string, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.Default()
	}
	if minVersion == "" {
		minVersion = DefaultMinimumVersion
	}
	s := &Supervisor{
		binaryPath:  binaryPath,
		logger:      logger,
		stopTimeout: DefaultStopTimeout,
		instances:   make(map[string]*Instance),
	}
	if minVersion != "" {
		if v, err := hcversion.NewVersion(minVersion); err == nil {
			s.minVersion = v
		}
	}
	return s
}

// checkVersion runs binaryPath with --version once, parses the first
// dotted-number token it prints, and logs a warning if it falls below
// minVersion. Best-effort: decoder apps that don't support --version,
// or that exit non-zero, produce no signal either way.
func (s *Supervisor) checkVersion() {
	if s.minVersion == nil {
		return
	}
	out, err := exec.Command(s.binaryPath, "--version").CombinedOutput()
	if err != nil {
		s.logger.Printf("supervisor: %s --version: %v (skipping version check)", s.binaryPath, err)
		return
	}
	match := versionOutputPattern.FindString(string(out))
	if match == "" {
		s.logger.Printf("supervisor: %s --version produced no parseable version, skipping check", s.binaryPath)
		return
	}
	got, err := hcversion.NewVersion(match)
	if err != nil {
		s.logger.Printf("supervisor: parse decoder version %q: %v", match, err)
		return
	}
	if got.LessThan(s.minVersion) {
		s.logger.Printf("supervisor: decoder app %s reports version %s, older than the minimum %s this control plane assumes", s.binaryPath, got, s.minVersion)
	}
}

// OnExited registers the callback invoked when a child exits on its own
// (spec.md §7 ChildExited) rather than via Stop. Mirrors the
// single-callback registration style used throughout this module.
func (s *Supervisor) OnExited(fn func(instanceID string, err error)) {
	s.exitedMu.Lock()
	defer s.exitedMu.Unlock()
	s.onExited = fn
}

// Spawn starts the decoder app for instanceID, passing an instance-id flag
// and the ports it should bind/connect to (spec.md §4.6's spawn contract).
// Stdio is not inherited from the supervisor's controlling terminal.
func (s *Supervisor) Spawn(instanceID string, telemetryPort, catPort int) (*Instance, error) {
	args := []string{
		"--wsjt-id", instanceID,
		"--rig-port", fmt.Sprintf("%d", catPort),
		"--udp-server-port", fmt.Sprintf("%d", telemetryPort),
	}
	inst, err := s.SpawnArgs(instanceID, args)
	if err != nil {
		return nil, err
	}
	inst.TelemetryPort = telemetryPort
	inst.CATPort = catPort
	return inst, nil
}

// SpawnArgs starts the decoder app for instanceID with an explicit
// argument list. Spawn is the normal entry point; SpawnArgs exists so
// tests can exercise the lifecycle without depending on the real decoder
// app binary.
func (s *Supervisor) SpawnArgs(instanceID string, args []string) (*Instance, error) {
	s.versionCheckOnce.Do(s.checkVersion)

	s.mu.Lock()
	if existing, ok := s.instances[instanceID]; ok && existing.Running() {
		s.mu.Unlock()
		return nil, fmt.Errorf("supervisor: instance %s already running", instanceID)
	}
	s.mu.Unlock()

	cmd := exec.Command(s.binaryPath, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	detachStdio(cmd)

	inst := &Instance{
		InstanceID: instanceID,
		cmd:        cmd,
		exitCh:     make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		close(inst.exitCh)
		return nil, fmt.Errorf("supervisor: start %s: %w", instanceID, err)
	}
	inst.running = true

	s.mu.Lock()
	s.instances[instanceID] = inst
	s.mu.Unlock()

	go s.watch(inst)

	return inst, nil
}

// watch consumes the child's exit asynchronously (spec.md §4.6) and fires
// OnExited unless the exit was requested via Stop.
func (s *Supervisor) watch(inst *Instance) {
	err := inst.cmd.Wait()

	inst.mu.Lock()
	inst.running = false
	inst.exitErr = err
	wasStopping := inst.stopping
	close(inst.exitCh)
	inst.mu.Unlock()

	if wasStopping {
		return
	}

	s.exitedMu.Lock()
	fn := s.onExited
	s.exitedMu.Unlock()
	if fn != nil {
		fn(inst.InstanceID, err)
	}
}

// Stop requests graceful shutdown of instanceID: SIGTERM, then SIGKILL if
// it is still alive after timeout (0 uses DefaultStopTimeout). Stop is
// resilient to being called more than once or on an unknown/already-dead
// instance (spec.md §4.6's "MUST be resilient to double-stop").
func (s *Supervisor) Stop(ctx context.Context, instanceID string, timeout time.Duration) error {
	s.mu.Lock()
	inst, ok := s.instances[instanceID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if timeout <= 0 {
		timeout = s.stopTimeout
	}

	inst.mu.Lock()
	if inst.stopping || !inst.running {
		inst.mu.Unlock()
		return nil
	}
	inst.stopping = true
	pid := 0
	if inst.cmd.Process != nil {
		pid = inst.cmd.Process.Pid
	}
	inst.mu.Unlock()

	if pid == 0 {
		return nil
	}

	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		s.logger.Printf("supervisor: SIGTERM %s (pid %d): %v", instanceID, pid, err)
	}

	select {
	case <-inst.exitCh:
		return nil
	case <-time.After(timeout):
	case <-ctx.Done():
		return ctx.Err()
	}

	if inst.Running() {
		s.logger.Printf("supervisor: %s still alive after %s, sending SIGKILL", instanceID, timeout)
		if err := unix.Kill(pid, unix.SIGKILL); err != nil {
			s.logger.Printf("supervisor: SIGKILL %s (pid %d): %v", instanceID, pid, err)
		}
	}

	<-inst.exitCh
	return nil
}

// StopAll stops every tracked instance, waiting up to timeout for each in
// turn. Used on supervisor shutdown.
func (s *Supervisor) StopAll(ctx context.Context, timeout time.Duration) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.instances))
	for id := range s.instances {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Stop(ctx, id, timeout); err != nil {
			s.logger.Printf("supervisor: stop %s: %v", id, err)
		}
	}
}

// Get returns the tracked Instance for instanceID, if any.
func (s *Supervisor) Get(instanceID string) (*Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[instanceID]
	return inst, ok
}

// Remove drops instanceID from the supervisor's tracking map. Callers
// must Stop it first if it may still be running.
func (s *Supervisor) Remove(instanceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, instanceID)
}

// List returns the instance ids currently tracked.
func (s *Supervisor) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.instances))
	for id := range s.instances {
		out = append(out, id)
	}
	return out
}
