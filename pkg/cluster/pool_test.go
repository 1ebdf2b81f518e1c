package cluster

import (
	"net"
	"net/netip"
	"testing"
	"time"
)

func TestConnPoolGetDialsWhenEmpty(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	ep := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), uint16(addr.Port))

	p := newConnPool()
	conn, err := p.get([]netip.AddrPort{ep}, time.Second)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	conn.Close()
}

func TestConnPoolGetFatalWithNoEndpoints(t *testing.T) {
	p := newConnPool()
	_, err := p.get(nil, time.Second)
	if err != poolFatal {
		t.Fatalf("got %v, want poolFatal", err)
	}
}

func TestConnPoolGetTransientWhenAllEndpointsRefuse(t *testing.T) {
	// A closed listener's address refuses every connect attempt. With at
	// least one known endpoint, exhausting all dial attempts must be
	// transient, not fatal (spec.md §4.1): a brief server restart should
	// accrue a health penalty, not latch the node out on one occurrence.
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	ep := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), uint16(addr.Port))

	p := newConnPool()
	_, err = p.get([]netip.AddrPort{ep}, time.Second)
	if err != poolTransient {
		t.Fatalf("got %v, want poolTransient", err)
	}
}

func TestConnPoolPutGetReusesIdle(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()

	p := newConnPool()
	p.put(c1)
	if p.size() != 1 {
		t.Fatalf("size() = %d, want 1", p.size())
	}

	got, err := p.get(nil, time.Second)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != c1 {
		t.Fatal("expected get to return the connection just put back")
	}
}

func TestConnPoolDrainClosesIdle(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()

	p := newConnPool()
	p.put(c1)
	p.drain()
	if p.size() != 0 {
		t.Fatalf("size() = %d after drain, want 0", p.size())
	}

	// c1 should now be closed; a write should fail.
	if _, err := c1.Write([]byte("x")); err == nil {
		t.Fatal("expected write on drained connection to fail")
	}
}
