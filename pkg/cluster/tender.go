package cluster

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// tenderLoop is the cluster-wide timer (spec.md §4.4), firing on a fixed
// ~1.2s period until Destroy stops it.
func (c *Cluster) tenderLoop() {
	defer close(c.tenderDone)
	ticker := time.NewTicker(c.cfg.TenderInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.tenderStop:
			return
		case <-ticker.C:
			c.tend()
		}
	}
}

// tend runs one cluster-tender tick: re-resolving seeds when the node set
// is empty (spec.md §4.4 step 1).
func (c *Cluster) tend() {
	if c.isShutdown() {
		return
	}
	c.mu.RLock()
	empty := len(c.nodes) == 0
	c.mu.RUnlock()
	if !empty {
		return
	}

	seeds := c.seedsSnapshot()
	pending := make([]<-chan resolveResult, len(seeds))
	for i, s := range seeds {
		pending[i] = resolveAsync(context.Background(), s.host, s.port)
	}
	for i, ch := range pending {
		res := <-ch
		if res.err != nil {
			c.cfg.logf("tender: resolve seed %s:%d: %v", seeds[i].host, seeds[i].port, res.err)
			continue
		}
		for _, addr := range res.addrs {
			c.sockaddrObserved(addr)
		}
	}
}

// sockaddrObserved implements spec.md §4.4 step 2: probe a newly seen
// address for its node identity and merge it into the node set.
func (c *Cluster) sockaddrObserved(addr netip.AddrPort) {
	if !c.markIfNewAddr(addr) {
		return
	}

	names := []string{"node"}
	if c.partitions.NPartitions() == 0 {
		names = append(names, "partitions")
	}

	conn, err := net.DialTimeout("tcp4", addr.String(), c.cfg.ConnTimeout)
	if err != nil {
		c.cfg.logf("tender: dial %s: %v", addr, err)
		return
	}
	resp, err := roundTripInfo(conn, names, c.cfg.InfoTimeout)
	conn.Close()
	if err != nil {
		c.cfg.logf("tender: info %s: %v", addr, err)
		return
	}

	name, ok := resp["node"]
	if !ok || name == "" {
		return
	}
	if pstr, ok := resp["partitions"]; ok {
		if n, err := strconv.ParseUint(pstr, 10, 32); err == nil {
			c.partitions.setNPartitions(uint32(n))
		}
	}

	existing := c.nodeByName(name)
	if existing == nil {
		node := newNode(c, name, addr)
		c.addNode(node)
		node.startTimer(c.cfg.NodeTenderInterval, func() { c.tendNode(node) })
	} else {
		existing.addEndpointUnique(addr)
	}

	c.drainPending()
}

// tendNode is the body of one per-node health-probe tick (spec.md §4.4).
func (c *Cluster) tendNode(node *Node) {
	// Open question (a): the reference implementation's ping-reply handler
	// checks the cluster shutdown flag in a branch whose body is empty;
	// the safe reading is an early abort, which this module takes.
	if c.isShutdown() {
		c.cfg.logf("tender: aborting tend of node %s after shutdown", node.name)
		return
	}

	if node.IsDunned() {
		c.removeNode(node)
		node.stopTimer()
		return
	}

	conn, err := node.getConn(c.cfg)
	if err != nil {
		node.rearmTimer(c.cfg.NodeTenderInterval, func() { c.tendNode(node) })
		return
	}

	resp, err := roundTripInfo(conn, []string{"node", "partition-generation", "services"}, c.cfg.InfoTimeout)
	if err != nil {
		conn.Close()
		node.dun(infoFailDunReason(err), c.cfg.DunThreshold)
		node.rearmTimer(c.cfg.NodeTenderInterval, func() { c.tendNode(node) })
		return
	}
	node.putConn(conn)
	node.resetHealth()

	if gotName, ok := resp["node"]; ok && gotName != node.name {
		node.dun(dunBadName, c.cfg.DunThreshold)
	}

	if pgStr, ok := resp["partition-generation"]; ok {
		if pg, err := strconv.ParseUint(pgStr, 10, 32); err == nil {
			c.maybeRefetchReplicas(node, uint32(pg))
		}
	}

	if svc, ok := resp["services"]; ok && svc != "" {
		c.parseServices(svc)
	}

	if node.IsDunned() {
		node.stopTimer()
		return
	}
	node.rearmTimer(c.cfg.NodeTenderInterval, func() { c.tendNode(node) })
}

// maybeRefetchReplicas issues the replicas follow-up request when the
// partition generation changed and the last fetch is stale (spec.md §4.4).
func (c *Cluster) maybeRefetchReplicas(node *Node, newGen uint32) {
	prevGen := node.partitionGeneration.Load()
	if newGen == prevGen {
		return
	}
	now := c.cfg.now()
	lastMs := node.partitionLastReqMs.Load()
	stale := lastMs == 0 || now.Sub(time.UnixMilli(lastMs)) > c.cfg.PartitionRefetchMinAge
	if !stale {
		return
	}
	node.partitionLastReqMs.Store(now.UnixMilli())
	c.fetchReplicas(node, newGen)
}

func (c *Cluster) fetchReplicas(node *Node, newGen uint32) {
	conn, err := node.getConn(c.cfg)
	if err != nil {
		node.dun(dunReplicasFetch, c.cfg.DunThreshold)
		return
	}
	resp, err := roundTripInfo(conn, []string{"replicas-read", "replicas-write", "partition-generation"}, c.cfg.InfoTimeout)
	if err != nil {
		conn.Close()
		node.dun(dunReplicasFetch, c.cfg.DunThreshold)
		return
	}
	node.putConn(conn)

	c.partitions.RemoveNode(node)
	if v, ok := resp["replicas-read"]; ok {
		c.partitions.ParseReplicas(node, v, false)
	}
	if v, ok := resp["replicas-write"]; ok {
		c.partitions.ParseReplicas(node, v, true)
	}
	node.partitionGeneration.Store(newGen)
}

// parseServices decodes the gossip peer list (spec.md §6) and feeds each
// previously-unseen address into sockaddrObserved.
func (c *Cluster) parseServices(value string) {
	if !c.following() {
		return
	}
	for _, hp := range strings.Split(value, ";") {
		if hp == "" {
			continue
		}
		host, portStr, err := net.SplitHostPort(hp)
		if err != nil {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		addr, err := netip.ParseAddr(host)
		if err != nil {
			continue
		}
		c.sockaddrObserved(netip.AddrPortFrom(addr, uint16(port)))
	}
}
