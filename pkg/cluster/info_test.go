package cluster

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/skshohagmiah/kvcluster/internal/testutil"
)

type fakeTimeoutErr struct{ timeout bool }

func (e fakeTimeoutErr) Error() string   { return fmt.Sprintf("fake net error (timeout=%v)", e.timeout) }
func (e fakeTimeoutErr) Timeout() bool   { return e.timeout }
func (e fakeTimeoutErr) Temporary() bool { return false }

func TestInfoFailDunReasonClassifiesTimeout(t *testing.T) {
	var netErr net.Error = fakeTimeoutErr{timeout: true}
	if got := infoFailDunReason(netErr); got != dunUserTimeout {
		t.Fatalf("got %v, want dunUserTimeout", got)
	}
}

func TestInfoFailDunReasonClassifiesNonTimeout(t *testing.T) {
	if got := infoFailDunReason(fmt.Errorf("connection reset")); got != dunInfoFail {
		t.Fatalf("got %v, want dunInfoFail", got)
	}
	var netErr net.Error = fakeTimeoutErr{timeout: false}
	if got := infoFailDunReason(netErr); got != dunInfoFail {
		t.Fatalf("got %v, want dunInfoFail for non-timeout net.Error", got)
	}
}

func TestSendInfoDeliversResponse(t *testing.T) {
	fn, err := testutil.StartFakeNode("N1", 4096)
	if err != nil {
		t.Fatalf("StartFakeNode: %v", err)
	}
	defer fn.Close()

	c := New(testConfig())
	defer c.Destroy(0)

	host, port := mustHostPort(t, fn.Addr())
	node := newNode(c, "N1", testAddrFromHostPort(t, host, port))

	done := make(chan struct{})
	var gotName string
	var gotErr error
	c.sendInfo(node, []string{"node"}, func(resp map[string]string, err error) {
		gotErr = err
		if resp != nil {
			gotName = resp["node"]
		}
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sendInfo callback never fired")
	}
	if gotErr != nil {
		t.Fatalf("unexpected error: %v", gotErr)
	}
	if gotName != "N1" {
		t.Fatalf("got node name %q, want N1", gotName)
	}
}

func TestSendInfoFailsAgainstDeadNode(t *testing.T) {
	c := New(testConfig())
	defer c.Destroy(0)
	node := newNode(c, "N1", testAddr(t, 1))

	done := make(chan struct{})
	var gotErr error
	c.sendInfo(node, []string{"node"}, func(_ map[string]string, err error) {
		gotErr = err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sendInfo callback never fired")
	}
	if gotErr == nil {
		t.Fatal("expected an error against an unreachable node")
	}
}
