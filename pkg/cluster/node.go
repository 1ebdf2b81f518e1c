package cluster

import (
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"
)

// unknownPartitionGeneration is the sentinel spec.md §3 names for "no
// partition-generation observed yet".
const unknownPartitionGeneration = 0xFFFFFFFF

// Node is a reference-counted handle to one cluster member. It is co-owned
// by the cluster's node vector, the partition table, and in-flight
// info/scan operations (spec.md §9); the back-reference to its owning
// Cluster is a non-owning pointer — Node never keeps Cluster alive, and
// Cluster's lifetime strictly encloses every Node's lifetime.
type Node struct {
	refCounter

	name    string
	cluster *Cluster // non-owning: lookup only, never keep-alive

	mu        sync.RWMutex
	endpoints []netip.AddrPort

	pool *connPool

	dunCount atomic.Uint32
	dunned   atomic.Bool

	partitionGeneration atomic.Uint32
	partitionLastReqMs  atomic.Int64

	timerMu   sync.Mutex
	timer     *time.Timer
	timerStop chan struct{}
}

func newNode(cl *Cluster, name string, addr netip.AddrPort) *Node {
	n := &Node{
		name:      name,
		cluster:   cl,
		endpoints: []netip.AddrPort{addr},
		pool:      newConnPool(),
	}
	n.partitionGeneration.Store(unknownPartitionGeneration)
	return n
}

// Name returns the node's stable server-assigned identifier.
func (n *Node) Name() string { return n.name }

// IsDunned reports whether this node has latched out of rotation.
func (n *Node) IsDunned() bool { return n.dunned.Load() }

// Endpoints returns a snapshot of the node's known addresses.
func (n *Node) Endpoints() []netip.AddrPort {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]netip.AddrPort, len(n.endpoints))
	copy(out, n.endpoints)
	return out
}

// addEndpointUnique appends addr if it is not already present.
func (n *Node) addEndpointUnique(addr netip.AddrPort) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.endpoints {
		if e == addr {
			return
		}
	}
	n.endpoints = append(n.endpoints, addr)
}

func (n *Node) hasEndpoint(addr netip.AddrPort) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, e := range n.endpoints {
		if e == addr {
			return true
		}
	}
	return false
}

// dun accrues a weighted health penalty and reports whether this call
// latched the node out. Once latched, dunned never un-latches (spec.md
// §3 invariant).
func (n *Node) dun(reason dunReason, threshold uint32) bool {
	if n.dunned.Load() {
		return true
	}
	weight := dunWeights[reason]
	total := n.dunCount.Add(weight)
	if total > threshold && n.dunned.CompareAndSwap(false, true) {
		return true
	}
	return n.dunned.Load()
}

// resetHealth clears the dun counter; called on any successful info reply
// (spec.md §4.4). It has no effect once dunned has latched.
func (n *Node) resetHealth() {
	if n.dunned.Load() {
		return
	}
	n.dunCount.Store(0)
}

// getConn borrows a connection from the node's pool, dunning the node on a
// transient pool failure per spec.md §4.1.
func (n *Node) getConn(cfg *Config) (net.Conn, error) {
	conn, err := n.pool.get(n.Endpoints(), cfg.ConnTimeout)
	if err == nil {
		return conn, nil
	}
	switch err {
	case poolStaleRetry:
		n.dun(dunFDRestart, cfg.DunThreshold)
		return nil, wrapErr(KindTransient, fmt.Sprintf("node %s: stale connection", n.name), err)
	case poolTransient:
		n.dun(dunNetworkError, cfg.DunThreshold)
		return nil, wrapErr(KindTransient, fmt.Sprintf("node %s: connect failed on every endpoint", n.name), err)
	case poolFatal:
		n.dun(dunNoEndpoint, cfg.DunThreshold)
		return nil, wrapErr(KindTransient, fmt.Sprintf("node %s: no usable endpoints", n.name), err)
	default:
		return nil, wrapErr(KindTransient, fmt.Sprintf("node %s: pool error", n.name), err)
	}
}

func (n *Node) putConn(conn net.Conn) {
	n.pool.put(conn)
}

// destroy drains the connection pool. Callers must only invoke this once
// refCounter.total() has reached zero (spec.md §8: pool empty and fds
// closed before memory is released). By the time total() can reach zero,
// the node's own timer ref (tagTimer) must already have been released via
// stopTimer — reaching zero while the timer is still armed would be a
// reference-counting bug, not a normal shutdown path.
func (n *Node) destroy() {
	n.pool.drain()
}

// startTimer arms the node's own health-probe timer and reserves a
// reference on its behalf (spec.md §3: "a scheduled timer handle").
func (n *Node) startTimer(d time.Duration, fire func()) {
	n.timerMu.Lock()
	defer n.timerMu.Unlock()
	if n.timer != nil {
		return
	}
	n.reserve(tagTimer)
	n.timer = time.AfterFunc(d, fire)
}

// rearmTimer re-schedules the timer after a tick that decided to continue
// (spec.md §4.4: "Re-arm unless dunned"). It is a no-op once stopTimer has
// run, so a tick racing with eviction cannot resurrect the timer.
func (n *Node) rearmTimer(d time.Duration, fire func()) {
	n.timerMu.Lock()
	defer n.timerMu.Unlock()
	if n.timer == nil {
		return
	}
	n.timer = time.AfterFunc(d, fire)
}

// stopTimer cancels the timer and releases its reference, returning true
// if that release destroyed the node. Idempotent.
func (n *Node) stopTimer() bool {
	n.timerMu.Lock()
	t := n.timer
	n.timer = nil
	n.timerMu.Unlock()
	if t == nil {
		return false
	}
	t.Stop()
	return n.release(tagTimer)
}

// release decrements the tagged reference count and destroys the node if
// that was the last reference. Returns true if the node was destroyed.
func (n *Node) release(tag refTag) bool {
	n.refCounter.release(tag)
	if n.refCounter.total() == 0 {
		n.destroy()
		return true
	}
	return false
}
