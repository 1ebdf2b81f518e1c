package cluster

import (
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/skshohagmiah/kvcluster/internal/proto"
)

// writeScanCommand frames and writes a scan command body, symmetric with
// the incoming response framing in proto.ReadStreamHeader (spec.md §6 only
// documents the command's own fields; this module assumes the same 8-byte
// version/type/size envelope wraps it on the wire, since the server has no
// other way to know where the command ends).
func writeScanCommand(conn net.Conn, timeout time.Duration, body []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if err := proto.WriteStreamHeader(conn, proto.StreamHeader{Version: 1, Type: 1, Size: uint64(len(body))}); err != nil {
		return err
	}
	_, err := conn.Write(body)
	return err
}

// runNodeScan drives the read loop for one node's scan stream (spec.md
// §4.5): read an 8-byte header, read its declared payload, parse record
// messages out of the payload until INFO3_LAST or a NOT_FOUND sentinel
// ends the stream. Between records it polls abort; once any node's
// callback has returned false, every node's loop stops invoking further
// callbacks, but a node that instead hits a real transport or server error
// only affects its own return value; it does not halt siblings.
func runNodeScan(conn net.Conn, timeout time.Duration, cb ScanCallback, udata any, abort *atomic.Bool) error {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return wrapErr(KindTimeout, "scan: set read deadline", err)
		}
		header, err := proto.ReadStreamHeader(conn)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return wrapErr(KindTransient, "scan: read stream header", err)
		}

		payload := make([]byte, header.Size)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return wrapErr(KindTransient, "scan: read stream payload", err)
		}

		rest := payload
		for len(rest) > 0 {
			if abort.Load() {
				return nil
			}

			msg, remainder, err := proto.ParseRecordMessage(rest)
			if err != nil {
				return wrapErr(KindParseError, "scan: parse record message", err)
			}
			rest = remainder

			if msg.ResultCode == proto.ResultNotFound {
				return nil
			}
			if msg.ResultCode != proto.ResultOK {
				return newErr(KindServerError, fmt.Sprintf("scan: server result code %d", msg.ResultCode))
			}

			if !cb(&ScanRecord{Key: msg.Key, Bins: msg.Bins}, udata) {
				abort.Store(true)
				return nil
			}

			if msg.Last() {
				return nil
			}
		}
	}
}
