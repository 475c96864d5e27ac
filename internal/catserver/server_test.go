package catserver

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/SensorsIot/wsjt-x-MCP/internal/wirecodec"
)

func TestListenServesDialectAOverRealSocket(t *testing.T) {
	s, sss := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listenErr := make(chan error, 1)
	go func() { listenErr <- s.Listen(ctx, 0) }()

	// Give the listener a moment to bind.
	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("tcp", "127.0.0.1:7809")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("FA;")); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, 64)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	sl, _ := sss.Snapshot(0)
	want := fmt.Sprintf("FA%011d;", sl.FrequencyHz)
	if got := string(buf[:n]); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestOnCommandFiresForDialectAAndB(t *testing.T) {
	s, _ := newTestServer(t)

	var tokens []string
	s.OnCommand(func(index int, token string) { tokens = append(tokens, token) })

	s.handleDialectACommand(0, "FA;")
	s.handleDialectBCommand(0, "get frequency")

	if len(tokens) != 2 || tokens[0] != "FA" || tokens[1] != "get.frequency" {
		t.Fatalf("got %v", tokens)
	}
}

func TestOnDialectDetectedFiresOnce(t *testing.T) {
	s, _ := newTestServer(t)

	var got wirecodec.Dialect
	calls := 0
	s.OnDialectDetected(func(d wirecodec.Dialect) {
		got = d
		calls++
	})

	s.emitDialect(wirecodec.DialectB)

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if got != wirecodec.DialectB {
		t.Fatalf("got %v, want DialectB", got)
	}
}
