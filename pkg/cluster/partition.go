package cluster

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Intent selects which replica role a routing lookup wants.
type Intent int

const (
	IntentRead Intent = iota
	IntentWrite
)

type replicaSlot struct {
	read  *Node
	write *Node
}

// nsTable is one namespace's partition array, holding at most one
// read-replica and one write-replica Node per slot (spec.md §3).
type nsTable struct {
	mu    sync.Mutex
	slots []replicaSlot
}

// PartitionTable maps namespace -> per-partition replica slots. nPartitions
// is discovered once, from the first successful node ping, and is
// immutable thereafter (spec.md §3).
type PartitionTable struct {
	mu          sync.RWMutex
	nPartitions uint32
	namespaces  map[string]*nsTable
}

func newPartitionTable() *PartitionTable {
	return &PartitionTable{namespaces: make(map[string]*nsTable)}
}

// NPartitions returns the discovered partition count, or 0 if unknown.
func (t *PartitionTable) NPartitions() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nPartitions
}

// setNPartitions latches the partition count the first time it is
// observed; later calls with the same value are no-ops, and calls with a
// different value are rejected (the count is immutable once known).
func (t *PartitionTable) setNPartitions(n uint32) {
	if n == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nPartitions != 0 {
		return
	}
	t.nPartitions = n
}

func (t *PartitionTable) namespaceTable(ns string, createSlots uint32) *nsTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	nt, ok := t.namespaces[ns]
	if !ok {
		nt = &nsTable{slots: make([]replicaSlot, createSlots)}
		t.namespaces[ns] = nt
	} else if uint32(len(nt.slots)) < createSlots {
		grown := make([]replicaSlot, createSlots)
		copy(grown, nt.slots)
		nt.slots = grown
	}
	return nt
}

// PartitionID computes high_bits(digest) mod n_partitions (spec.md §4.3).
func PartitionID(digest []byte, nPartitions uint32) uint32 {
	if nPartitions == 0 {
		return 0
	}
	h := xxhash.Sum64(digest)
	highBits := uint32(h >> 32)
	return highBits % nPartitions
}

// Get resolves the node that should serve (namespace, digest) for the
// given intent, reserving a reference on the caller's behalf with tag.
// Per spec.md §4.3, it falls back to fallback() when the slot is empty,
// the held node is dunned, or n_partitions is still unknown.
func (t *PartitionTable) Get(ns string, digest []byte, intent Intent, tag refTag, fallback func(refTag) *Node) *Node {
	nParts := t.NPartitions()
	if nParts == 0 {
		return fallback(tag)
	}

	t.mu.RLock()
	nt, ok := t.namespaces[ns]
	t.mu.RUnlock()
	if !ok {
		return fallback(tag)
	}

	pid := PartitionID(digest, nParts)

	nt.mu.Lock()
	if int(pid) >= len(nt.slots) {
		nt.mu.Unlock()
		return fallback(tag)
	}
	slot := nt.slots[pid]
	var node *Node
	if intent == IntentWrite {
		node = slot.write
	} else {
		node = slot.read
	}
	if node != nil {
		node.reserve(tag)
	}
	nt.mu.Unlock()

	if node == nil || node.IsDunned() {
		if node != nil {
			node.release(tag)
		}
		return fallback(tag)
	}
	return node
}

// Set replaces a slot's read- or write-replica with node, dropping the
// previous holder's reference and adding one for the new holder (spec.md
// §4.3). node may be nil to clear the slot.
func (t *PartitionTable) Set(node *Node, ns string, partitionID uint32, write bool) {
	nParts := t.NPartitions()
	if nParts == 0 || partitionID >= nParts {
		return
	}
	nt := t.namespaceTable(ns, nParts)

	nt.mu.Lock()
	var prev *Node
	if write {
		prev = nt.slots[partitionID].write
		nt.slots[partitionID].write = node
	} else {
		prev = nt.slots[partitionID].read
		nt.slots[partitionID].read = node
	}
	nt.mu.Unlock()

	if node != nil {
		tag := tagPartRead
		if write {
			tag = tagPartWrite
		}
		node.reserve(tag)
	}
	if prev != nil && prev != node {
		tag := tagPartRead
		if write {
			tag = tagPartWrite
		}
		prev.release(tag)
	}
}

// RemoveNode clears every slot across every namespace that references
// node, dropping one reference per clear (spec.md §4.3).
func (t *PartitionTable) RemoveNode(node *Node) {
	t.mu.RLock()
	tables := make([]*nsTable, 0, len(t.namespaces))
	for _, nt := range t.namespaces {
		tables = append(tables, nt)
	}
	t.mu.RUnlock()

	for _, nt := range tables {
		nt.mu.Lock()
		for i := range nt.slots {
			if nt.slots[i].read == node {
				nt.slots[i].read = nil
				node.release(tagPartRead)
			}
			if nt.slots[i].write == node {
				nt.slots[i].write = nil
				node.release(tagPartWrite)
			}
		}
		nt.mu.Unlock()
	}
}

// ParseReplicas parses a "namespace:partid;namespace:partid;…" string
// (spec.md §4.4, §6) and installs each accepted entry via Set. Namespace
// names longer than maxNamespaceNameLen (30), and partition ids at or
// beyond n_partitions, are dropped; adjacent valid entries still apply
// (spec.md §8 boundary behavior).
func (t *PartitionTable) ParseReplicas(node *Node, value string, write bool) {
	nParts := t.NPartitions()
	for _, entry := range strings.Split(value, ";") {
		if entry == "" {
			continue
		}
		ns, idStr, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		if len(ns) > maxNamespaceNameLen {
			continue
		}
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			continue
		}
		if nParts != 0 && uint32(id) >= nParts {
			continue
		}
		t.Set(node, ns, uint32(id), write)
	}
}

// SerializeReplicas renders the partitions node owns for role write in the
// same namespace:partid;… form ParseReplicas accepts, in ascending
// (namespace, partition) order — the canonical ordering spec.md §8's
// round-trip property requires.
func (t *PartitionTable) SerializeReplicas(node *Node, write bool) string {
	t.mu.RLock()
	type entry struct {
		ns  string
		pid uint32
	}
	var entries []entry
	for ns, nt := range t.namespaces {
		nt.mu.Lock()
		for pid, slot := range nt.slots {
			held := slot.read
			if write {
				held = slot.write
			}
			if held == node {
				entries = append(entries, entry{ns: ns, pid: uint32(pid)})
			}
		}
		nt.mu.Unlock()
	}
	t.mu.RUnlock()

	nsOrder := make([]string, 0)
	byNS := make(map[string][]uint32)
	for _, e := range entries {
		if _, ok := byNS[e.ns]; !ok {
			nsOrder = append(nsOrder, e.ns)
		}
		byNS[e.ns] = append(byNS[e.ns], e.pid)
	}
	sort.Strings(nsOrder)

	var b strings.Builder
	first := true
	for _, ns := range nsOrder {
		ids := byNS[ns]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if !first {
				b.WriteByte(';')
			}
			first = false
			fmt.Fprintf(&b, "%s:%d", ns, id)
		}
	}
	return b.String()
}

const maxNamespaceNameLen = 30
