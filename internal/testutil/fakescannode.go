package testutil

import (
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/skshohagmiah/kvcluster/internal/proto"
)

// FakeRecord is one record a FakeScanNode streams back to a scan caller.
type FakeRecord struct {
	Key  string
	Bins map[string][]byte
}

// FakeScanNode answers a scan command with a canned sequence of records,
// framed the way the scan stream reader (scan_stream.go) expects: an
// 8-byte StreamHeader per payload, record messages packed into the
// payload, the final one carrying INFO3_LAST.
type FakeScanNode struct {
	ln net.Listener

	mu      sync.Mutex
	Records []FakeRecord

	closed atomic.Bool
	wg     sync.WaitGroup
}

// StartFakeScanNode starts listening and returns immediately.
func StartFakeScanNode(records []FakeRecord) (*FakeScanNode, error) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	fn := &FakeScanNode{ln: ln, Records: records}
	fn.wg.Add(1)
	go fn.acceptLoop()
	return fn, nil
}

func (f *FakeScanNode) Addr() string { return f.ln.Addr().String() }

func (f *FakeScanNode) Close() {
	if !f.closed.CompareAndSwap(false, true) {
		return
	}
	f.ln.Close()
	f.wg.Wait()
}

func (f *FakeScanNode) acceptLoop() {
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

func (f *FakeScanNode) handleConn(conn net.Conn) {
	defer conn.Close()

	// One scan command per connection, matching how the executor uses a
	// pooled connection for exactly one scan round trip.
	header, err := proto.ReadStreamHeader(conn)
	if err != nil {
		return
	}
	cmdBody := make([]byte, header.Size)
	if _, err := io.ReadFull(conn, cmdBody); err != nil {
		return
	}

	f.mu.Lock()
	records := f.Records
	f.mu.Unlock()

	var payload []byte
	for i, rec := range records {
		msg := proto.RecordMessage{
			ResultCode: proto.ResultOK,
			Key:        rec.Key,
			Bins:       rec.Bins,
		}
		if i == len(records)-1 {
			msg.Info3 = uint32(proto.Info3Last)
		}
		payload = append(payload, proto.EncodeRecordMessage(msg)...)
	}
	if len(records) == 0 {
		payload = proto.EncodeRecordMessage(proto.RecordMessage{ResultCode: proto.ResultNotFound})
	}

	proto.WriteStreamHeader(conn, proto.StreamHeader{Version: 1, Type: 1, Size: uint64(len(payload))})
	conn.Write(payload)
}
