package cluster

import (
	"errors"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	e := newErr(KindInvalidParameter, "bad host")
	if e.Error() != "InvalidParameter: bad host" {
		t.Fatalf("got %q", e.Error())
	}

	cause := errors.New("boom")
	wrapped := wrapErr(KindTransient, "connect", cause)
	if !errors.Is(wrapped, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestKindString(t *testing.T) {
	if KindScanAborted.String() != "ScanAborted" {
		t.Fatalf("got %q", KindScanAborted.String())
	}
	if Kind(999).String() != "Unknown" {
		t.Fatalf("got %q for unrecognized kind", Kind(999).String())
	}
}

func TestPoolErrorCodeMessages(t *testing.T) {
	if poolTransient.Error() == "" {
		t.Fatal("expected non-empty message")
	}
	if poolFatal.Error() == poolStaleRetry.Error() {
		t.Fatal("expected distinct messages per pool error code")
	}
}
