package cluster

import (
	"errors"
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// connPool is a per-node LIFO of idle connections, grounded on the
// teacher's pkg/client/pool.go (PoolConnection): pop most-recently-pushed,
// probe liveness, dial fresh on exhaustion. Unlike the teacher's pool
// (one goroutine-maintained connection per partition slot), this pool has
// no minimum size and no background reconnect loop — nodes dial lazily on
// demand, matching spec.md §4.1. The number of idle connections it holds
// is not capped: put always keeps the connection it is given.
type connPool struct {
	mu   sync.Mutex
	idle []net.Conn
}

func newConnPool() *connPool {
	return &connPool{}
}

// livenessState is the result of the non-destructive liveness probe.
type livenessState int

const (
	liveConnected livenessState = iota
	livePeerClosed
	liveError
	liveInvalid
)

// probeLiveness issues a non-blocking, non-destructive peek at conn,
// classifying the result per spec.md §4.1. Go's net.Conn has no portable
// MSG_PEEK, so this drops to the raw file descriptor via SyscallConn and
// calls golang.org/x/sys/unix.Recvfrom with MSG_PEEK|MSG_DONTWAIT — the
// closest a portable Go program gets to the C client's non-blocking
// zero-byte recv, and the reason this module pulls in golang.org/x/sys
// (an indirect dep of the teacher's stack via its other components)
// directly rather than leaving connections unverified before reuse.
func probeLiveness(conn net.Conn) livenessState {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return liveConnected
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return liveInvalid
	}

	var n int
	var recvErr error
	ctrlErr := raw.Read(func(fd uintptr) bool {
		buf := make([]byte, 1)
		n, _, recvErr = unix.Recvfrom(int(fd), buf, unix.MSG_PEEK|unix.MSG_DONTWAIT)
		return true
	})
	if ctrlErr != nil {
		return liveInvalid
	}

	switch {
	case recvErr == nil && n == 0:
		return livePeerClosed
	case recvErr == nil && n > 0:
		return liveConnected
	case errors.Is(recvErr, unix.EAGAIN) || errors.Is(recvErr, unix.EWOULDBLOCK):
		return liveConnected
	default:
		return liveError
	}
}

// get pops the most-recently-pushed idle connection and verifies it is
// still usable before handing it out. Peer-closed and invalid idle
// connections are skipped; a probe error closes that connection and
// returns poolStaleRetry at once. Once the idle stack is empty it dials a
// fresh connection against endpoints in order. The caller is responsible for
// translating the returned pool error into a dun event against its node.
func (p *connPool) get(endpoints []netip.AddrPort, timeout time.Duration) (net.Conn, error) {
	for {
		p.mu.Lock()
		n := len(p.idle)
		if n == 0 {
			p.mu.Unlock()
			break
		}
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()

		switch probeLiveness(conn) {
		case liveConnected:
			return conn, nil
		case livePeerClosed:
			conn.Close()
			continue
		case liveError:
			conn.Close()
			return nil, poolStaleRetry
		default: // liveInvalid
			continue
		}
	}

	if len(endpoints) == 0 {
		return nil, poolFatal
	}

	for _, ep := range endpoints {
		conn, err := net.DialTimeout("tcp4", ep.String(), timeout)
		if err == nil {
			return conn, nil
		}
		// ECONNREFUSED alone does not dun the node (spec.md §4.1); keep
		// trying the remaining endpoints.
	}
	// Every known endpoint refused or timed out: transient, not fatal. The
	// node still has usable endpoints, they just aren't answering right
	// now (spec.md §4.1: "exhaustion of all endpoints returns a
	// transient-error"). poolFatal is reserved for the node having no
	// endpoints to try at all.
	return nil, poolTransient
}

// put pushes conn back onto the idle stack for reuse.
func (p *connPool) put(conn net.Conn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
}

// drain closes every idle connection; called when a node's reference count
// reaches zero (spec.md §5, §8: "the connection pool is empty and all fds
// have been closed before memory is released").
func (p *connPool) drain() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, c := range idle {
		c.Close()
	}
}

func (p *connPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
