package telemetry

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/SensorsIot/wsjt-x-MCP/internal/wirecodec"
	"log"
)

func TestListenerDispatchesDecodeAndRecordsHistory(t *testing.T) {
	l, err := New(0, log.New(&strings.Builder{}, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	received := make(chan wirecodec.Decode, 1)
	l.OnDecode(func(d wirecodec.Decode) { received <- d })

	go l.Run()
	defer l.Stop()

	// Run binds asynchronously; poll until the listener has a live port.
	var addr *net.UDPAddr
	for i := 0; i < 50; i++ {
		l.mu.Lock()
		if l.conn != nil {
			addr = l.conn.LocalAddr().(*net.UDPAddr)
		}
		l.mu.Unlock()
		if addr != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == nil {
		t.Fatalf("listener never bound")
	}

	w := wirecodec.NewWriter()
	w.WriteUint32(wirecodec.Magic)
	w.WriteUint32(wirecodec.Schema)
	w.WriteUint32(wirecodec.TypeDecode)
	_ = w.WriteQString("Slice-A")
	w.WriteBool(true)
	w.WriteUint32(1000)
	w.WriteInt32(-10)
	w.WriteFloat64(0.1)
	w.WriteUint32(1500)
	_ = w.WriteQString("FT8")
	_ = w.WriteQString("CQ K9ABC EN52")

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write(w.Bytes()); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case d := <-received:
		if d.InstanceID != "Slice-A" || d.Message != "CQ K9ABC EN52" {
			t.Fatalf("got %+v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for decode dispatch")
	}

	// Give recordDecode (which runs before dispatch) a moment to land.
	var history []wirecodec.Decode
	for i := 0; i < 50; i++ {
		history = l.DecodeHistory("Slice-A")
		if len(history) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(history) != 1 {
		t.Fatalf("history = %+v, want 1 entry", history)
	}
}

func TestListenerDropsBadMagicWithoutStalling(t *testing.T) {
	l, err := New(0, log.New(&strings.Builder{}, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.handleDatagram([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	if l.DroppedPackets() != 1 {
		t.Fatalf("dropped = %d, want 1", l.DroppedPackets())
	}
}

func TestListenerOnDropFiresForEachBadDatagram(t *testing.T) {
	l, err := New(0, log.New(&strings.Builder{}, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	drops := 0
	l.OnDrop(func() { drops++ })

	l.handleDatagram([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	l.handleDatagram([]byte{1, 2, 3})

	if drops != 2 {
		t.Fatalf("drops = %d, want 2", drops)
	}
	if l.DroppedPackets() != 2 {
		t.Fatalf("DroppedPackets = %d, want 2", l.DroppedPackets())
	}
}
