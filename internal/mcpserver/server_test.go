package mcpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/SensorsIot/wsjt-x-MCP/internal/coordinator"
	"github.com/SensorsIot/wsjt-x-MCP/internal/slicestore"
)

type fakeBackend struct {
	started, stopped, halted []string
	qsoTarget                map[string]string
	freq                     map[int]uint64
	mode                     map[int]slicestore.Mode
	replies                  int
	emergencyStops           int
	statusErr                error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		qsoTarget: map[string]string{},
		freq:      map[int]uint64{},
		mode:      map[int]slicestore.Mode{},
	}
}

func (f *fakeBackend) StartInstance(id string) error { f.started = append(f.started, id); return nil }
func (f *fakeBackend) StopInstance(id string) error  { f.stopped = append(f.stopped, id); return nil }
func (f *fakeBackend) StartQSO(id, target, grid string) error {
	f.qsoTarget[id] = target
	return nil
}
func (f *fakeBackend) HaltTx(id string, autoOnly bool) error {
	f.halted = append(f.halted, id)
	return nil
}
func (f *fakeBackend) SetFrequency(index int, hz uint64) error { f.freq[index] = hz; return nil }
func (f *fakeBackend) SetMode(index int, mode slicestore.Mode) error {
	f.mode[index] = mode
	return nil
}
func (f *fakeBackend) ReplyToStation(id, from, message string) error {
	f.replies++
	return nil
}
func (f *fakeBackend) EmergencyStop() { f.emergencyStops++ }
func (f *fakeBackend) GetStatus(id string) (coordinator.InstanceStatus, error) {
	if f.statusErr != nil {
		return coordinator.InstanceStatus{}, f.statusErr
	}
	return coordinator.InstanceStatus{InstanceID: id, Running: true}, nil
}
func (f *fakeBackend) ListInstances() []string { return []string{"Slice-A", "Slice-B"} }

func req(args map[string]any) mcp.CallToolRequest {
	var r mcp.CallToolRequest
	r.Params.Arguments = args
	return r
}

func TestHandleExecuteQSOStartsQSO(t *testing.T) {
	backend := newFakeBackend()
	s := &Server{backend: backend}

	res, err := s.handleExecuteQSO(context.Background(), req(map[string]any{
		"instance_id": "Slice-A",
		"target_call": "DL1XYZ",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error result: %+v", res)
	}
	if backend.qsoTarget["Slice-A"] != "DL1XYZ" {
		t.Fatalf("expected QSO started against DL1XYZ, got %v", backend.qsoTarget)
	}
}

func TestHandleGetStatusReturnsErrorResult(t *testing.T) {
	backend := newFakeBackend()
	backend.statusErr = errors.New("unknown instance")
	s := &Server{backend: backend}

	res, err := s.handleGetStatus(context.Background(), req(map[string]any{"instance_id": "Slice-Z"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error result for unknown instance")
	}
}

func TestHandleEmergencyStopCallsBackend(t *testing.T) {
	backend := newFakeBackend()
	s := &Server{backend: backend}

	if _, err := s.handleEmergencyStop(context.Background(), req(nil)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if backend.emergencyStops != 1 {
		t.Fatalf("expected exactly one emergency stop call, got %d", backend.emergencyStops)
	}
}

func TestHandleSetModeConvertsToSliceMode(t *testing.T) {
	backend := newFakeBackend()
	s := &Server{backend: backend}

	if _, err := s.handleSetMode(context.Background(), req(map[string]any{
		"slice_index": 0.0,
		"mode":        "DIGU",
	})); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if backend.mode[0] != slicestore.ModeDIGU {
		t.Fatalf("expected mode DIGU, got %v", backend.mode[0])
	}
}
