// Package testutil provides fake TCP nodes that speak this module's info
// and scan wire protocols, for exercising pkg/cluster without a real
// server. The accept-loop-plus-per-connection-goroutine shape follows the
// teacher's own server (internal/server, cmd/kvserver/main.go).
package testutil

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/skshohagmiah/kvcluster/internal/proto"
)

// FakeNode answers info requests the way a real node would for tender
// purposes: "node", "partitions", "partition-generation", "services",
// "replicas-read", "replicas-write". Callers configure its answers via the
// exported fields before or while it's running (guarded by mu).
type FakeNode struct {
	ln net.Listener

	mu            sync.Mutex
	Name          string
	NPartitions   uint32
	PartitionGen  uint32
	Services      string
	ReplicasRead  string
	ReplicasWrite string
	FailInfo      bool // when true, every info round trip errors

	closed atomic.Bool
	wg     sync.WaitGroup
}

// StartFakeNode starts listening on 127.0.0.1:0 and returns immediately;
// call Addr for the bound address and Close to shut it down.
func StartFakeNode(name string, nPartitions uint32) (*FakeNode, error) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	fn := &FakeNode{
		ln:           ln,
		Name:         name,
		NPartitions:  nPartitions,
		PartitionGen: 1,
	}
	fn.wg.Add(1)
	go fn.acceptLoop()
	return fn, nil
}

// Addr returns the bound "host:port" string.
func (f *FakeNode) Addr() string { return f.ln.Addr().String() }

// Close stops accepting and waits for in-flight connections to finish. An
// open connection is dropped, unanswered, at the next request it delivers
// after Close, so clients see every later info round trip fail.
func (f *FakeNode) Close() {
	if !f.closed.CompareAndSwap(false, true) {
		return
	}
	f.ln.Close()
	f.wg.Wait()
}

func (f *FakeNode) acceptLoop() {
	defer f.wg.Done()
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.handleConn(conn)
		}()
	}
}

func (f *FakeNode) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		body, err := proto.ReadFrame(conn)
		if err != nil {
			return
		}

		f.mu.Lock()
		fail := f.FailInfo
		f.mu.Unlock()
		if fail || f.closed.Load() {
			return
		}

		names := strings.Split(string(body), "\n")
		resp := f.answer(names)
		if err := proto.WriteFrame(conn, proto.EncodeInfoResponse(resp)); err != nil {
			return
		}
	}
}

func (f *FakeNode) answer(names []string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(names))
	for _, n := range names {
		switch n {
		case "node":
			out["node"] = f.Name
		case "partitions":
			out["partitions"] = strconv.FormatUint(uint64(f.NPartitions), 10)
		case "partition-generation":
			out["partition-generation"] = strconv.FormatUint(uint64(f.PartitionGen), 10)
		case "services":
			out["services"] = f.Services
		case "replicas-read":
			out["replicas-read"] = f.ReplicasRead
		case "replicas-write":
			out["replicas-write"] = f.ReplicasWrite
		}
	}
	return out
}

// BumpGeneration increments the partition generation a subsequent tend tick
// will observe, simulating a cluster topology change.
func (f *FakeNode) BumpGeneration() {
	f.mu.Lock()
	f.PartitionGen++
	f.mu.Unlock()
}

