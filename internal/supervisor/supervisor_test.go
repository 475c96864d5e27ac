package supervisor

import (
	"context"
	"testing"
	"time"
)

func TestSpawnAndStopGraceful(t *testing.T) {
	s := New("/bin/sh", nil)

	inst, err := s.SpawnArgs("Slice-A", []string{"-c", "sleep 30"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if !inst.Running() {
		t.Fatalf("expected running immediately after spawn")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx, "Slice-A", 200*time.Millisecond); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if inst.Running() {
		t.Fatalf("expected not running after stop")
	}
}

func TestStopDoubleStopIsResilient(t *testing.T) {
	s := New("/bin/sh", nil)
	_, err := s.SpawnArgs("Slice-B", []string{"-c", "sleep 30"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	ctx := context.Background()
	if err := s.Stop(ctx, "Slice-B", 200*time.Millisecond); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := s.Stop(ctx, "Slice-B", 200*time.Millisecond); err != nil {
		t.Fatalf("second stop should be a no-op, got: %v", err)
	}
}

func TestStopUnknownInstanceIsNoop(t *testing.T) {
	s := New("/bin/sh", nil)
	if err := s.Stop(context.Background(), "Slice-Z", time.Second); err != nil {
		t.Fatalf("stop of unknown instance should be a no-op, got: %v", err)
	}
}

func TestOnExitedFiresOnUnexpectedExit(t *testing.T) {
	s := New("/bin/sh", nil)

	done := make(chan string, 1)
	s.OnExited(func(instanceID string, err error) {
		done <- instanceID
	})

	if _, err := s.SpawnArgs("Slice-C", []string{"-c", "exit 0"}); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	select {
	case id := <-done:
		if id != "Slice-C" {
			t.Fatalf("unexpected instance id %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for OnExited callback")
	}
}

func TestOnExitedDoesNotFireOnRequestedStop(t *testing.T) {
	s := New("/bin/sh", nil)

	fired := false
	s.OnExited(func(instanceID string, err error) {
		fired = true
	})

	if _, err := s.SpawnArgs("Slice-D", []string{"-c", "sleep 30"}); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if err := s.Stop(context.Background(), "Slice-D", 200*time.Millisecond); err != nil {
		t.Fatalf("stop: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if fired {
		t.Fatalf("OnExited must not fire for a requested Stop")
	}
}

func TestVersionCheckDoesNotBlockSpawnOnOldVersion(t *testing.T) {
	s := NewWithMinimumVersion("/bin/sh", "999.0.0", nil)
	if _, err := s.SpawnArgs("Slice-E", []string{"-c", "exit 0"}); err != nil {
		t.Fatalf("spawn should succeed even when the version check would warn: %v", err)
	}
}

func TestVersionCheckDisabledByUnparsableMinimum(t *testing.T) {
	s := NewWithMinimumVersion("/bin/sh", "not-a-version", nil)
	if s.minVersion != nil {
		t.Fatalf("expected an unparsable minimum version to disable the check")
	}
}
