package radiobackend

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DiscoverHost listens for a broadcast UDP discovery packet on
// DefaultPort and returns the sender's IP address. It is an optional
// collaborator (spec.md §4.3): callers that get no packet within timeout
// should fall back to their configured host rather than blocking forever.
func DiscoverHost(ctx context.Context, timeout time.Duration) (string, error) {
	addr := fmt.Sprintf(":%d", DefaultPort)
	pc, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return "", fmt.Errorf("radiobackend: discovery listen: %w", err)
	}
	defer pc.Close()

	deadline := time.Now().Add(timeout)
	if err := pc.SetDeadline(deadline); err != nil {
		return "", fmt.Errorf("radiobackend: discovery set deadline: %w", err)
	}

	buf := make([]byte, 512)
	type result struct {
		host string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		_, raddr, err := pc.ReadFrom(buf)
		if err != nil {
			done <- result{err: err}
			return
		}
		udpAddr, ok := raddr.(*net.UDPAddr)
		if !ok {
			done <- result{err: fmt.Errorf("radiobackend: unexpected discovery source address type")}
			return
		}
		done <- result{host: udpAddr.IP.String()}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("radiobackend: discovery: %w", r.err)
		}
		return r.host, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
