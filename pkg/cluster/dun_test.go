package cluster

import "testing"

func TestNodeDunLatchesPastThreshold(t *testing.T) {
	n := &Node{}
	const threshold = 800

	// A single replicas-fetch failure (weight 1000) already exceeds 800.
	if latched := n.dun(dunReplicasFetch, threshold); !latched {
		t.Fatal("expected dun to latch after exceeding threshold")
	}
	if !n.IsDunned() {
		t.Fatal("expected IsDunned() == true")
	}
}

func TestNodeDunAccumulatesBelowThreshold(t *testing.T) {
	n := &Node{}
	const threshold = 800

	for i := 0; i < 2; i++ {
		if n.dun(dunNetworkError, threshold) {
			t.Fatalf("dun latched too early on iteration %d", i)
		}
	}
	if n.IsDunned() {
		t.Fatal("expected node not yet dunned")
	}
}

func TestNodeDunNeverUnlatches(t *testing.T) {
	n := &Node{}
	n.dun(dunBadName, 800)
	if !n.IsDunned() {
		t.Fatal("expected latch")
	}
	n.resetHealth()
	if !n.IsDunned() {
		t.Fatal("resetHealth must not un-latch a dunned node")
	}
}

func TestResetHealthClearsCounterWhenNotDunned(t *testing.T) {
	n := &Node{}
	n.dun(dunUserTimeout, 800)
	n.resetHealth()
	if n.dunCount.Load() != 0 {
		t.Fatalf("dunCount = %d, want 0", n.dunCount.Load())
	}
}
