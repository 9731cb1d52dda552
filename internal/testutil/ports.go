package testutil

import (
	"net"
	"strconv"
	"sync"
	"testing"
)

var (
	portMu    sync.Mutex
	usedPorts = make(map[int]struct{})
)

// FreePort returns a loopback TCP port that was free a moment ago and has not
// been handed out before in this process.
func FreePort(t *testing.T) int {
	t.Helper()
	portMu.Lock()
	defer portMu.Unlock()

	for range 10 {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("failed to get a free port: %v", err)
		}
		p := l.Addr().(*net.TCPAddr).Port
		if err := l.Close(); err != nil {
			t.Fatalf("failed to close listener: %v", err)
		}
		if _, ok := usedPorts[p]; ok {
			continue
		}
		usedPorts[p] = struct{}{}
		return p
	}
	t.Fatal("no unused port found")
	return 0
}

// ListenAddress returns a free loopback host:port for a server under test.
func ListenAddress(t *testing.T) string {
	t.Helper()
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(FreePort(t)))
}
