package cluster

import "testing"

func TestRegistryTracksAndForgetsClusters(t *testing.T) {
	r := NewRegistry()
	c1 := r.NewCluster(testConfig())
	c2 := r.NewCluster(testConfig())

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}

	c1.Destroy(0)
	if r.Len() != 1 {
		t.Fatalf("Len() = %d after destroying one cluster, want 1", r.Len())
	}

	clusters := r.Clusters()
	if len(clusters) != 1 || clusters[0] != c2 {
		t.Fatalf("Clusters() = %v, want [%v]", clusters, c2)
	}

	c2.Destroy(0)
	if r.Len() != 0 {
		t.Fatalf("Len() = %d after destroying both clusters, want 0", r.Len())
	}
}
