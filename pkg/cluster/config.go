package cluster

import (
	"log"
	"os"
	"time"
)

// Config holds cluster tuning knobs, following the teacher's Config +
// DefaultConfig() pattern (pkg/client.Config / DefaultConfig).
type Config struct {
	// TenderInterval is how often the cluster-wide tender fires.
	TenderInterval time.Duration
	// NodeTenderInterval is how often each node's own health probe fires.
	NodeTenderInterval time.Duration
	// ConnTimeout bounds non-blocking connect attempts.
	ConnTimeout time.Duration
	// InfoTimeout bounds a single info request/response round trip.
	InfoTimeout time.Duration
	// DunThreshold is the accumulated dun weight at which a node latches
	// dunned=true (spec.md §4.4: "> 800").
	DunThreshold uint32
	// PartitionRefetchMinAge is how stale the last partition fetch must be
	// before a generation-change re-triggers a replicas fetch (spec.md
	// §4.4: "5s").
	PartitionRefetchMinAge time.Duration
	// ScanChannelSize is not read by the scan executor: concurrent fan-out
	// waits for its per-node workers through an errgroup, not a channel.
	ScanChannelSize int
	// ScanWorkerPoolSize bounds concurrent per-node scan workers; zero
	// means effectively unbounded (one worker per node at fan-out time).
	ScanWorkerPoolSize int
	// ScanTimeout bounds each read of a scan stream header/payload.
	ScanTimeout time.Duration
	// Logger receives tender, pool, and scan diagnostics. The teacher uses
	// the standard library "log" package throughout rather than a
	// structured-logging facade, so this module follows suit.
	Logger *log.Logger
	// Now is injectable for deterministic tests of tender/dun timing.
	Now func() time.Time
}

// DefaultConfig returns the tuning values spec.md names explicitly.
func DefaultConfig() *Config {
	return &Config{
		TenderInterval:         1200 * time.Millisecond,
		NodeTenderInterval:     1000 * time.Millisecond,
		ConnTimeout:            1 * time.Second,
		InfoTimeout:            1 * time.Second,
		DunThreshold:           800,
		PartitionRefetchMinAge: 5 * time.Second,
		ScanChannelSize:        0,
		ScanWorkerPoolSize:     0,
		ScanTimeout:            30 * time.Second,
		Logger:                 log.New(os.Stderr, "cluster: ", log.LstdFlags),
		Now:                    time.Now,
	}
}

func (c *Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Config) logf(format string, args ...any) {
	if c.Logger != nil {
		c.Logger.Printf(format, args...)
	}
}
