package cluster

import (
	"net"
	"net/netip"
	"testing"
	"time"
)

func testAddr(t *testing.T, port uint16) netip.AddrPort {
	t.Helper()
	return netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port)
}

func testAddrFromHostPort(t *testing.T, host string, port int) netip.AddrPort {
	t.Helper()
	ip, err := netip.ParseAddr(host)
	if err != nil {
		t.Fatalf("ParseAddr(%q): %v", host, err)
	}
	return netip.AddrPortFrom(ip, uint16(port))
}

func TestNodeAddEndpointUnique(t *testing.T) {
	n := newNode(nil, "N1", testAddr(t, 3000))
	n.addEndpointUnique(testAddr(t, 3000)) // duplicate, no-op
	n.addEndpointUnique(testAddr(t, 3001))

	eps := n.Endpoints()
	if len(eps) != 2 {
		t.Fatalf("Endpoints() = %v, want 2 entries", eps)
	}
}

func TestNodeReleaseDestroysAtZero(t *testing.T) {
	n := newNode(nil, "N1", testAddr(t, 3000))
	c1, c2 := net.Pipe()
	defer c2.Close()
	n.putConn(c1)

	n.reserve(tagOwner)
	if n.release(tagOwner) != true {
		t.Fatal("expected release of the last reference to report destruction")
	}
	if n.pool.size() != 0 {
		t.Fatalf("expected pool drained on destroy, size = %d", n.pool.size())
	}
}

func TestNodeReleaseKeepsAliveWithOutstandingTags(t *testing.T) {
	n := newNode(nil, "N1", testAddr(t, 3000))
	n.reserve(tagOwner)
	n.reserve(tagCaller)

	if n.release(tagOwner) != false {
		t.Fatal("expected node to survive while tagCaller is still held")
	}
	if n.release(tagCaller) != true {
		t.Fatal("expected release of the final reference to report destruction")
	}
}

func TestNodeTimerLifecycle(t *testing.T) {
	n := newNode(nil, "N1", testAddr(t, 3000))
	fired := make(chan struct{}, 1)
	n.startTimer(10*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	n.stopTimer() // idempotent, must not panic
	n.stopTimer()
}

func TestNodeDunWiresGetConnTransient(t *testing.T) {
	n := newNode(nil, "N1", testAddr(t, 1)) // nothing listens on :1
	cfg := DefaultConfig()
	cfg.ConnTimeout = 50 * time.Millisecond

	if _, err := n.getConn(cfg); err == nil {
		t.Fatal("expected getConn to fail against an unreachable endpoint")
	}
	if got := n.dunCount.Load(); got != dunWeights[dunNetworkError] {
		t.Fatalf("dunCount = %d, want %d: a failed connect attempt accrues one network-error dun", got, dunWeights[dunNetworkError])
	}
}
