package cluster

import (
	"github.com/google/uuid"
	"github.com/skshohagmiah/kvcluster/internal/proto"
)

// ScanRequest describes one scan across a namespace and optional set
// (spec.md §3, §4.5). Namespace is required; with only Namespace set, the
// scan covers every record in the namespace.
type ScanRequest struct {
	Namespace     string
	Set           string
	Bins          []string // nil/empty: all bins
	NoBinData     bool
	Priority      byte
	PercentSample byte // 0 means "100" at encode time
	Concurrent    bool // fan out to all nodes at once vs. one node at a time

	// Background, when non-nil, turns this into a scan_background (spec.md
	// §4.5): the server runs the named UDF per record and no per-record
	// callback fires client-side.
	Background *BackgroundUDF
}

// BackgroundUDF names the server-side UDF a background scan invokes, with
// already-serialized call arguments (spec.md §1 places arglist
// serialization out of this core's scope; proto.UDFArgEncoder is the seam).
type BackgroundUDF struct {
	Package string
	Func    string
	Args    []any
}

// ScanRecord is one record delivered to a ScanCallback.
type ScanRecord struct {
	Key  string
	Bins map[string][]byte
}

// ScanCallback receives each record in turn, then a final call with rec ==
// nil to signal the end of a successful scan (spec.md §7). Returning false
// aborts the scan: the executor stops invoking the callback and returns a
// nil error, since ClientAbort is surfaced internally as ok to the user
// (spec.md §7); the sentinel rec == nil callback is suppressed in that
// case since the stream didn't end cleanly.
type ScanCallback func(rec *ScanRecord, udata any) bool

// newTaskID generates a 63-bit positive task identifier. spec.md leaves the
// exact generator unspecified; this module seeds it from a random UUID
// (github.com/google/uuid) rather than hand-rolling an RNG, taking the
// UUID's first 64 bits and clearing the top one so the result always fits
// a non-negative int64 for callers that log or compare it as a number.
func newTaskID() uint64 {
	id := uuid.New()
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(id[i])
	}
	return v &^ (1 << 63)
}

func buildScanCommand(req ScanRequest, taskID uint64, enc proto.UDFArgEncoder) ([]byte, error) {
	sample := req.PercentSample
	if sample == 0 {
		sample = 100
	}
	cmd := proto.ScanCommand{
		Namespace: req.Namespace,
		Set:       req.Set,
		Options: proto.ScanOptions{
			Priority:      req.Priority,
			PercentSample: sample,
			NoBinData:     req.NoBinData,
		},
		TaskID: taskID,
		Bins:   req.Bins,
	}
	if req.Background != nil {
		if enc == nil {
			enc = proto.RawArgEncoder{}
		}
		argList, err := enc.Encode(req.Background.Args)
		if err != nil {
			return nil, wrapErr(KindInvalidParameter, "encode background UDF args", err)
		}
		cmd.UDF = &proto.UDF{
			Package: req.Background.Package,
			Func:    req.Background.Func,
			ArgList: argList,
		}
	}
	return proto.EncodeScanCommand(cmd), nil
}
