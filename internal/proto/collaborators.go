package proto

import "encoding/binary"

// The following interfaces stand in for two collaborators spec.md §1 places
// out of this core's scope: the UDF argument-list serializer and the
// job-info poller. A full client supplies richer implementations; this
// package ships one minimal default (RawArgEncoder) so scan's
// background-UDF command can be built without a msgpack dependency.

// UDFArgEncoder serializes a UDF call's argument list. The real client uses
// msgpack; this module depends on the interface, not the serializer.
type UDFArgEncoder interface {
	Encode(args []any) ([]byte, error)
}

// RawArgEncoder is a minimal UDFArgEncoder: each argument must already be a
// []byte or string, concatenated as length-prefixed entries. It exists so
// this module has a usable default without pulling in a msgpack dependency
// for a concern spec.md explicitly places outside this core.
type RawArgEncoder struct{}

func (RawArgEncoder) Encode(args []any) ([]byte, error) {
	buf := make([]byte, 0, 16*len(args))
	for _, a := range args {
		var b []byte
		switch v := a.(type) {
		case []byte:
			b = v
		case string:
			b = []byte(v)
		default:
			return nil, errUnsupportedArg
		}
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, b...)
	}
	return buf, nil
}

var errUnsupportedArg = fmtError("proto: RawArgEncoder supports only []byte and string arguments")

type fmtError string

func (e fmtError) Error() string { return string(e) }

// JobPoller polls a background job's status, the "job info / job wait"
// collaborator of spec.md §1/§6. A full client backs this with the info
// protocol's job-info name; this module only needs the seam.
type JobPoller interface {
	Status(taskID uint64) (done bool, err error)
}
