package cluster

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skshohagmiah/kvcluster/internal/proto"
)

// Executor runs scans across a Cluster's node set (spec.md §4.5). Create
// one per Cluster with NewExecutor; it is safe for concurrent use.
type Executor struct {
	cluster *Cluster
	pool    *scanWorkerPool
}

// NewExecutor builds a scan Executor bound to c.
func NewExecutor(c *Cluster) *Executor {
	return &Executor{cluster: c, pool: newScanWorkerPool(c.cfg.ScanWorkerPoolSize)}
}

// Foreach runs a foreground scan over every node (scan_foreach, spec.md
// §4.5), delivering each record to cb and a final cb(nil, udata) on
// success. If req.Concurrent, nodes are scanned in parallel bounded by
// Config.ScanWorkerPoolSize; otherwise nodes are visited one at a time and
// a node's hard error stops the scan before the next node starts.
func (e *Executor) Foreach(req ScanRequest, cb ScanCallback, udata any) error {
	if req.Namespace == "" {
		return newErr(KindInvalidParameter, "scan: namespace required")
	}

	cmdBytes, err := buildScanCommand(req, newTaskID(), nil)
	if err != nil {
		return err
	}

	nodes := e.cluster.snapshotNodes()
	if len(nodes) == 0 {
		return newErr(KindClusterEmpty, "scan: no nodes available")
	}

	var abort atomic.Bool

	if req.Concurrent {
		g := new(errgroup.Group)
		for _, node := range nodes {
			node := node
			g.Go(func() error {
				defer node.release(tagScan)
				return e.pool.run(context.Background(), func() error {
					return e.scanOneNode(node, cmdBytes, cb, udata, &abort)
				})
			})
		}
		err = g.Wait()
	} else {
		for _, node := range nodes {
			if err == nil && !abort.Load() {
				err = e.scanOneNode(node, cmdBytes, cb, udata, &abort)
			}
			node.release(tagScan)
		}
	}

	if abort.Load() {
		// ClientAbort is surfaced to the caller as success, not an error
		// (spec.md §7: "surfaced internally as ok to the user"); the
		// sentinel callback is still suppressed since the scan didn't
		// reach a clean end-of-stream.
		return nil
	}
	if err != nil {
		return err
	}

	cb(nil, udata)
	return nil
}

// Node runs a foreground scan against a single named node (scan_node,
// spec.md §4.5). It returns KindInvalidParameter if nodeName is unknown.
func (e *Executor) Node(req ScanRequest, nodeName string, cb ScanCallback, udata any) error {
	node := e.cluster.nodeByName(nodeName)
	if node == nil {
		return newErr(KindInvalidParameter, fmt.Sprintf("scan: unknown node %q", nodeName))
	}
	node.reserve(tagScan)
	defer node.release(tagScan)

	cmdBytes, err := buildScanCommand(req, newTaskID(), nil)
	if err != nil {
		return err
	}

	var abort atomic.Bool
	if err := e.scanOneNode(node, cmdBytes, cb, udata, &abort); err != nil {
		return err
	}
	if abort.Load() {
		// ClientAbort is surfaced as success, per spec.md §7; no sentinel.
		return nil
	}
	cb(nil, udata)
	return nil
}

// Background triggers scan_background (spec.md §4.5): the server executes
// req.Background's UDF per record with no client-side per-record callback.
// It returns the generated task id immediately; the fan-out to every node
// proceeds on its own goroutines rather than blocking the caller, since a
// background job is by definition not waited on here.
func (e *Executor) Background(req ScanRequest) (uint64, error) {
	if req.Namespace == "" {
		return 0, newErr(KindInvalidParameter, "scan: namespace required")
	}
	if req.Background == nil {
		return 0, newErr(KindInvalidParameter, "scan: Background UDF required")
	}

	taskID := newTaskID()
	cmdBytes, err := buildScanCommand(req, taskID, nil)
	if err != nil {
		return 0, err
	}

	for _, node := range e.cluster.snapshotNodes() {
		node := node
		go func() {
			defer node.release(tagScan)
			conn, err := node.getConn(e.cluster.cfg)
			if err != nil {
				return
			}
			if err := writeScanCommand(conn, e.cluster.cfg.ScanTimeout, cmdBytes); err != nil {
				conn.Close()
				node.dun(dunNetworkError, e.cluster.cfg.DunThreshold)
				return
			}
			var abort atomic.Bool
			ack := func(*ScanRecord, any) bool { return true }
			if err := runNodeScan(conn, e.cluster.cfg.ScanTimeout, ack, nil, &abort); err != nil {
				conn.Close()
				node.dun(dunNetworkError, e.cluster.cfg.DunThreshold)
				return
			}
			node.putConn(conn)
		}()
	}

	return taskID, nil
}

// Wait polls a background scan's task id until poller reports it done,
// sleeping interval between polls (spec.md §6: "wait(task_id, interval_ms)
// — wait is delegated to the external job-info collaborator"). Job-info
// polling is out of this core's scope per spec.md §1; poller is the seam
// a full client backs with the info protocol's job-info name.
func (e *Executor) Wait(taskID uint64, interval time.Duration, poller proto.JobPoller) error {
	if poller == nil {
		return newErr(KindInvalidParameter, "scan: Wait requires a JobPoller")
	}
	for {
		done, err := poller.Status(taskID)
		if err != nil {
			return wrapErr(KindTransient, "scan: job status poll", err)
		}
		if done {
			return nil
		}
		time.Sleep(interval)
	}
}

func (e *Executor) scanOneNode(node *Node, cmdBytes []byte, cb ScanCallback, udata any, abort *atomic.Bool) error {
	conn, err := node.getConn(e.cluster.cfg)
	if err != nil {
		return err
	}

	if err := writeScanCommand(conn, e.cluster.cfg.ScanTimeout, cmdBytes); err != nil {
		conn.Close()
		node.dun(dunNetworkError, e.cluster.cfg.DunThreshold)
		return wrapErr(KindTransient, "scan: write command", err)
	}

	if err := runNodeScan(conn, e.cluster.cfg.ScanTimeout, cb, udata, abort); err != nil {
		conn.Close()
		node.dun(dunNetworkError, e.cluster.cfg.DunThreshold)
		return err
	}

	node.putConn(conn)
	return nil
}
