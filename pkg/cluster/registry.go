package cluster

import "sync"

// Registry tracks a set of live Clusters so a caller can tear them all down
// together, e.g. from a process shutdown hook. spec.md §9 notes the
// original keeps a process-global list for this purpose; this module
// exposes the same capability as an explicit, instantiable handle instead
// of hidden package state, so tests can each own an isolated registry.
type Registry struct {
	mu       sync.Mutex
	clusters map[*Cluster]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clusters: make(map[*Cluster]struct{})}
}

// NewCluster creates a Cluster and tracks it in the registry.
func (r *Registry) NewCluster(cfg *Config) *Cluster {
	c := New(cfg)
	c.registry = r
	r.mu.Lock()
	r.clusters[c] = struct{}{}
	r.mu.Unlock()
	return c
}

func (r *Registry) forget(c *Cluster) {
	r.mu.Lock()
	delete(r.clusters, c)
	r.mu.Unlock()
}

// Len reports how many clusters are currently tracked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clusters)
}

// Clusters returns a snapshot of currently tracked clusters, e.g. for a
// shutdown hook to Destroy each in turn.
func (r *Registry) Clusters() []*Cluster {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Cluster, 0, len(r.clusters))
	for c := range r.clusters {
		out = append(out, c)
	}
	return out
}
