package cluster

import (
	"errors"
	"net"
	"time"

	"github.com/skshohagmiah/kvcluster/internal/proto"
)

// infoCallback delivers the result of one info request, per spec.md §4.2:
// "invokes a user callback with (status, response buffer, length,
// user-data)" — collapsed here into a Go-idiomatic (map, error) pair.
type infoCallback func(resp map[string]string, err error)

// sendInfo issues name-separated info request to node and delivers the
// parsed response to cb on a dedicated goroutine. Go has no portable
// non-blocking socket readiness notification outside epoll/kqueue wrappers,
// so this module's "asynchronous on the cluster event loop" (spec.md §4.2,
// §5) is realized as one goroutine per request rather than multiplexed
// callbacks on a single reactor thread; all cluster/node mutable state the
// callback touches is still only ever mutated from tender goroutines or
// through atomics, so this substitution is observably equivalent.
func (c *Cluster) sendInfo(node *Node, names []string, cb infoCallback) {
	node.reserve(tagInfo)
	c.infosInProgress.Add(1)
	go func() {
		defer func() {
			node.release(tagInfo)
			c.infosInProgress.Add(-1)
		}()

		if c.isShutdown() {
			cb(nil, newErr(KindClusterEmpty, "cluster shut down"))
			return
		}

		conn, err := node.getConn(c.cfg)
		if err != nil {
			cb(nil, err)
			return
		}

		resp, err := roundTripInfo(conn, names, c.cfg.InfoTimeout)
		if err != nil {
			conn.Close()
			node.dun(infoFailDunReason(err), c.cfg.DunThreshold)
			cb(nil, wrapErr(KindTransient, "info round trip", err))
			return
		}

		node.putConn(conn)
		node.resetHealth()
		cb(resp, nil)
	}()
}

// infoFailDunReason classifies a round-trip failure per spec.md §4.4's
// dun-weight table: a deadline timeout is a user-timeout (weight 1), since
// the peer may simply be briefly slow; anything else (connection reset,
// malformed response, EOF) is an info-fail (weight 300).
func infoFailDunReason(err error) dunReason {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return dunUserTimeout
	}
	return dunInfoFail
}

func roundTripInfo(conn net.Conn, names []string, timeout time.Duration) (map[string]string, error) {
	deadline := time.Now().Add(timeout)
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := proto.WriteFrame(conn, proto.EncodeInfoRequest(names...)); err != nil {
		return nil, err
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	body, err := proto.ReadFrame(conn)
	if err != nil {
		return nil, err
	}
	return proto.ParseInfoResponse(body)
}
