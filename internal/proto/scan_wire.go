package proto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Info3 flags carried on a record message header.
const (
	Info3Last byte = 1 << 0 // INFO3_LAST: end of stream, no further entries in this payload
)

// Header attribute bits for the outgoing scan command.
const (
	AttrRead            byte = 1 << 0
	AttrWrite           byte = 1 << 1
	AttrExistsIgnore    byte = 1 << 2
	AttrGenIgnore       byte = 1 << 3
	AttrCommitLevelAll  byte = 1 << 4
	AttrConsistencyOne  byte = 1 << 5
	AttrGetNoBinData    byte = 1 << 6
)

// ResultOK and ResultNotFound are the two result codes this core interprets
// directly; any other nonzero code is an opaque server error.
const (
	ResultOK       byte = 0
	ResultNotFound byte = 2
)

// UDFOpBackground marks the udf-op byte for a background scan.
const UDFOpBackground byte = 2

// ScanOptions mirrors the outgoing scan-options wire field (§6): byte 0 is
// priority<<4 | flags, byte 1 is the percent-sample.
type ScanOptions struct {
	Priority            byte
	FailOnClusterChange bool
	PercentSample       byte
	NoBinData           bool
}

// UDF describes the optional background-scan user-defined-function trio.
// ArgList is already msgpack-serialized by the caller (arglist serialization
// is an external collaborator per spec §1); this codec treats it opaquely.
type UDF struct {
	Package string
	Func    string
	ArgList []byte
}

// ScanCommand is the fully-resolved set of fields the wire encoder needs.
// Building one from a user-facing scan request is the caller's job
// (pkg/cluster's buildScanCommand); this type is the encoder's input.
type ScanCommand struct {
	Namespace string
	Set       string
	Options   ScanOptions
	TaskID    uint64
	UDF       *UDF // nil for a foreground scan
	Bins      []string
}

func putField(buf []byte, s string) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s...)
	return buf
}

// EncodeScanCommand builds the outgoing scan command body per §6. The
// header attribute byte encodes read/write per the background/foreground
// rule: background scans set both read and write with EXISTS_IGNORE,
// GEN_IGNORE and COMMIT_LEVEL_ALL/CONSISTENCY_LEVEL_ONE; foreground scans
// are read-only with CONSISTENCY_LEVEL_ONE, adding GET_NOBINDATA when
// requested.
func EncodeScanCommand(cmd ScanCommand) []byte {
	var attr byte
	if cmd.UDF != nil {
		attr = AttrRead | AttrWrite | AttrExistsIgnore | AttrGenIgnore | AttrCommitLevelAll | AttrConsistencyOne
	} else {
		attr = AttrRead | AttrConsistencyOne
		if cmd.Options.NoBinData {
			attr |= AttrGetNoBinData
		}
	}

	buf := make([]byte, 0, 64+len(cmd.Namespace)+len(cmd.Set))
	buf = append(buf, attr)
	buf = putField(buf, cmd.Namespace)
	buf = putField(buf, cmd.Set)

	var opts [2]byte
	flags := byte(0)
	if cmd.Options.FailOnClusterChange {
		flags |= 0x08
	}
	opts[0] = cmd.Options.Priority<<4 | flags
	opts[1] = cmd.Options.PercentSample
	buf = append(buf, opts[:]...)

	var taskBuf [8]byte
	binary.BigEndian.PutUint64(taskBuf[:], cmd.TaskID)
	buf = append(buf, taskBuf[:]...)

	if cmd.UDF != nil {
		buf = append(buf, UDFOpBackground)
		buf = putField(buf, cmd.UDF.Package)
		buf = putField(buf, cmd.UDF.Func)
		var argLenBuf [4]byte
		binary.BigEndian.PutUint32(argLenBuf[:], uint32(len(cmd.UDF.ArgList)))
		buf = append(buf, argLenBuf[:]...)
		buf = append(buf, cmd.UDF.ArgList...)
	} else {
		buf = append(buf, 0)
	}

	var binCountBuf [2]byte
	binary.BigEndian.PutUint16(binCountBuf[:], uint16(len(cmd.Bins)))
	buf = append(buf, binCountBuf[:]...)
	for _, b := range cmd.Bins {
		buf = putField(buf, b)
	}

	return buf
}

// StreamHeader is the 8-byte frame preceding every scan response payload:
// one version byte, one type byte, and a 48-bit big-endian payload size.
type StreamHeader struct {
	Version byte
	Type    byte
	Size    uint64
}

// ReadStreamHeader reads and decodes the 8-byte header with a deadline
// already set on r by the caller (the caller owns the net.Conn deadline;
// this function only parses bytes).
func ReadStreamHeader(r io.Reader) (StreamHeader, error) {
	var raw [8]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return StreamHeader{}, fmt.Errorf("proto: read stream header: %w", err)
	}
	size := uint64(raw[2])<<40 | uint64(raw[3])<<32 | uint64(raw[4])<<24 |
		uint64(raw[5])<<16 | uint64(raw[6])<<8 | uint64(raw[7])
	return StreamHeader{Version: raw[0], Type: raw[1], Size: size}, nil
}

// WriteStreamHeader encodes a StreamHeader; used by test fixtures that
// stand in for a node.
func WriteStreamHeader(w io.Writer, h StreamHeader) error {
	var raw [8]byte
	raw[0] = h.Version
	raw[1] = h.Type
	raw[2] = byte(h.Size >> 40)
	raw[3] = byte(h.Size >> 32)
	raw[4] = byte(h.Size >> 24)
	raw[5] = byte(h.Size >> 16)
	raw[6] = byte(h.Size >> 8)
	raw[7] = byte(h.Size)
	_, err := w.Write(raw[:])
	return err
}

const recordMsgFixedLen = 1 + 3 + 4 + 4 + 4 + 2 + 2

// RecordMessage is one parsed record within a scan payload.
type RecordMessage struct {
	ResultCode byte
	Info3      uint32
	Generation uint32
	RecordTTL  uint32
	TxnTTL     uint32
	Key        string
	Bins       map[string][]byte
}

// Last reports whether this message's INFO3_LAST bit is set.
func (m RecordMessage) Last() bool { return m.Info3&uint32(Info3Last) != 0 }

// EncodeRecordMessage serializes a record message for test fixtures acting
// as a node. Field count is fixed at one (digest/set fields are out of
// scope per spec §1): that single field is the key, written as a 2-byte
// length-prefixed string ahead of the bins, so the parser can recover it
// without a full field encoder.
func EncodeRecordMessage(m RecordMessage) []byte {
	buf := make([]byte, recordMsgFixedLen)
	buf[0] = m.ResultCode
	buf[1] = byte(m.Info3 >> 16)
	buf[2] = byte(m.Info3 >> 8)
	buf[3] = byte(m.Info3)
	binary.BigEndian.PutUint32(buf[4:8], m.Generation)
	binary.BigEndian.PutUint32(buf[8:12], m.RecordTTL)
	binary.BigEndian.PutUint32(buf[12:16], m.TxnTTL)
	binary.BigEndian.PutUint16(buf[16:18], 1) // field count: key field only
	binary.BigEndian.PutUint16(buf[18:20], uint16(len(m.Bins)))

	buf = putField(buf, m.Key)

	for name, val := range m.Bins {
		var nameLen [1]byte
		nameLen[0] = byte(len(name))
		var valLen [4]byte
		binary.BigEndian.PutUint32(valLen[:], uint32(len(val)))
		buf = append(buf, valLen[:]...)
		buf = append(buf, nameLen[:]...)
		buf = append(buf, name...)
		buf = append(buf, val...)
	}
	return buf
}

// ParseRecordMessage decodes one record message from the front of buf,
// returning the message and the unconsumed remainder. It does not look at
// INFO3_LAST itself; the caller checks Last() and stops consuming the
// payload there.
func ParseRecordMessage(buf []byte) (RecordMessage, []byte, error) {
	if len(buf) < recordMsgFixedLen {
		return RecordMessage{}, nil, fmt.Errorf("proto: truncated record header")
	}
	m := RecordMessage{
		ResultCode: buf[0],
		Info3:      uint32To24(buf[1], buf[2], buf[3]),
		Generation: binary.BigEndian.Uint32(buf[4:8]),
		RecordTTL:  binary.BigEndian.Uint32(buf[8:12]),
		TxnTTL:     binary.BigEndian.Uint32(buf[12:16]),
	}
	fieldCount := binary.BigEndian.Uint16(buf[16:18])
	opCount := binary.BigEndian.Uint16(buf[18:20])
	rest := buf[recordMsgFixedLen:]

	for i := 0; i < int(fieldCount); i++ {
		if len(rest) < 2 {
			return RecordMessage{}, nil, fmt.Errorf("proto: truncated field")
		}
		flen := int(binary.BigEndian.Uint16(rest[:2]))
		rest = rest[2:]
		if len(rest) < flen {
			return RecordMessage{}, nil, fmt.Errorf("proto: truncated field body")
		}
		if i == 0 {
			m.Key = string(rest[:flen])
		}
		rest = rest[flen:]
	}

	if m.ResultCode != ResultOK {
		return m, rest, nil
	}

	m.Bins = make(map[string][]byte, opCount)
	for i := 0; i < int(opCount); i++ {
		if len(rest) < 5 {
			return RecordMessage{}, nil, fmt.Errorf("proto: truncated bin op")
		}
		valLen := binary.BigEndian.Uint32(rest[:4])
		nameLen := int(rest[4])
		rest = rest[5:]
		if len(rest) < nameLen+int(valLen) {
			return RecordMessage{}, nil, fmt.Errorf("proto: truncated bin op body")
		}
		name := string(rest[:nameLen])
		rest = rest[nameLen:]
		val := make([]byte, valLen)
		copy(val, rest[:valLen])
		rest = rest[valLen:]
		m.Bins[name] = val
	}

	return m, rest, nil
}

func uint32To24(b0, b1, b2 byte) uint32 {
	return uint32(b0)<<16 | uint32(b1)<<8 | uint32(b2)
}
