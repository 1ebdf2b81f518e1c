package cluster

import (
	"testing"
	"time"

	"github.com/skshohagmiah/kvcluster/internal/testutil"
)

func TestTenderEvictsNodeAfterRepeatedInfoFailures(t *testing.T) {
	fn, err := testutil.StartFakeNode("N1", 4096)
	if err != nil {
		t.Fatalf("StartFakeNode: %v", err)
	}

	c := New(testConfig())
	defer c.Destroy(0)

	host, port := mustHostPort(t, fn.Addr())
	if err := c.AddHost(host, port); err != nil {
		t.Fatalf("AddHost: %v", err)
	}
	waitFor(t, func() bool { return c.ActiveNodeCount() == 1 })

	fn.Close() // every subsequent info round trip now fails

	waitFor(t, func() bool { return c.ActiveNodeCount() == 0 })
}

func TestMaybeRefetchReplicasSkipsWhenGenerationUnchanged(t *testing.T) {
	c := New(testConfig())
	defer c.Destroy(0)

	node := newNode(c, "N1", testAddr(t, 3000))
	node.partitionGeneration.Store(5)
	node.partitionLastReqMs.Store(c.cfg.now().UnixMilli())

	before := node.partitionLastReqMs.Load()
	c.maybeRefetchReplicas(node, 5)
	if node.partitionLastReqMs.Load() != before {
		t.Fatal("expected no refetch when generation is unchanged")
	}
}

func TestMaybeRefetchReplicasSkipsWhenFresh(t *testing.T) {
	c := New(testConfig())
	defer c.Destroy(0)

	node := newNode(c, "N1", testAddr(t, 3000))
	node.partitionGeneration.Store(5)
	node.partitionLastReqMs.Store(c.cfg.now().UnixMilli())

	before := node.partitionLastReqMs.Load()
	c.maybeRefetchReplicas(node, 6) // generation changed but last fetch is fresh
	if node.partitionLastReqMs.Load() != before {
		t.Fatal("expected no refetch while within PartitionRefetchMinAge")
	}
}

func TestParseServicesIgnoredWhenNotFollowing(t *testing.T) {
	c := New(testConfig())
	defer c.Destroy(0)
	// Follow defaults to false; parseServices must not add any node.
	c.parseServices("127.0.0.1:9999")
	time.Sleep(20 * time.Millisecond)
	if c.ActiveNodeCount() != 0 {
		t.Fatal("expected parseServices to no-op while Follow is disabled")
	}
}

func TestParseServicesAddsPeerWhenFollowing(t *testing.T) {
	fn, err := testutil.StartFakeNode("N2", 4096)
	if err != nil {
		t.Fatalf("StartFakeNode: %v", err)
	}
	defer fn.Close()

	c := New(testConfig())
	defer c.Destroy(0)
	c.Follow(true)

	c.parseServices(fn.Addr())
	waitFor(t, func() bool { return c.ActiveNodeCount() == 1 })
}
