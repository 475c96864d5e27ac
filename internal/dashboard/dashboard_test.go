package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SensorsIot/wsjt-x-MCP/internal/coordinator"
	"github.com/SensorsIot/wsjt-x-MCP/internal/qso"
)

type fakeBackend struct {
	ids      []string
	statuses map[string]coordinator.InstanceStatus
}

func (f *fakeBackend) ListInstances() []string { return f.ids }
func (f *fakeBackend) GetStatus(id string) (coordinator.InstanceStatus, error) {
	st, ok := f.statuses[id]
	if !ok {
		return coordinator.InstanceStatus{}, fmt.Errorf("unknown instance %q", id)
	}
	return st, nil
}

func newTestServer(t *testing.T) (*Server, *fakeBackend) {
	backend := &fakeBackend{
		ids: []string{"Slice-A"},
		statuses: map[string]coordinator.InstanceStatus{
			"Slice-A": {InstanceID: "Slice-A", Running: true, QSO: qso.Status{State: qso.Idle}},
		},
	}
	s, err := New(backend, Options{}, nil)
	if err != nil {
		t.Fatalf("new dashboard server: %v", err)
	}
	t.Cleanup(s.Close)
	return s, backend
}

func TestListInstancesEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/instances", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var ids []string
	if err := json.Unmarshal(rec.Body.Bytes(), &ids); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(ids) != 1 || ids[0] != "Slice-A" {
		t.Fatalf("unexpected instance list: %v", ids)
	}
}

func TestGetStatusEndpointUnknownInstance(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/status/Slice-Z", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown instance, got %d", rec.Code)
	}
}

func TestGetStatusEndpointKnownInstance(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/status/Slice-A", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status coordinator.InstanceStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if status.InstanceID != "Slice-A" || !status.Running {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestADIFRecordContainsCallAndEOR(t *testing.T) {
	outcome := coordinator.QSOOutcome{
		Status: qso.Status{TargetCall: "DL1XYZ", MyCall: "W1ABC", MyGrid: "FN20"},
	}
	line := renderQSORecord(outcome, outcome.Status.LastTransitionTS)
	if want := "<CALL:6>DL1XYZ "; !strings.Contains(line, want) {
		t.Fatalf("expected adif record to contain %q, got %q", want, line)
	}
	if !strings.Contains(line, "<EOR>") {
		t.Fatalf("expected adif record to end with <EOR>, got %q", line)
	}
}

func TestADIFRecordIncludesDistanceAndBearingWhenGridKnown(t *testing.T) {
	outcome := coordinator.QSOOutcome{
		Status: qso.Status{TargetCall: "DL1XYZ", MyCall: "W1ABC", MyGrid: "FN20", TargetGrid: "JO62"},
	}
	line := renderQSORecord(outcome, outcome.Status.LastTransitionTS)
	if !strings.Contains(line, "<GRIDSQUARE:4>JO62 ") {
		t.Fatalf("expected adif record to contain target gridsquare, got %q", line)
	}
	if !strings.Contains(line, "<DISTANCE:") || !strings.Contains(line, "<BEARING:") {
		t.Fatalf("expected adif record to contain distance/bearing, got %q", line)
	}
}

func TestADIFRecordOmitsDistanceWhenGridUnknown(t *testing.T) {
	outcome := coordinator.QSOOutcome{
		Status: qso.Status{TargetCall: "DL1XYZ", MyCall: "W1ABC", MyGrid: "FN20"},
	}
	line := renderQSORecord(outcome, outcome.Status.LastTransitionTS)
	if strings.Contains(line, "<DISTANCE:") {
		t.Fatalf("expected no distance field without a target grid, got %q", line)
	}
}
