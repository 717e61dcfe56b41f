package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/tmcke/pairlink/internal/testutil/testlog"
)

type event struct {
	kind    string
	state   ActivationState
	err     error
	payload map[string]any
	data    []byte
	path    string
}

// chanHandler funnels every delivery into one buffered channel so tests can
// assert on arrival order without sleeping.
type chanHandler struct {
	events chan event
}

func newChanHandler() *chanHandler {
	return &chanHandler{events: make(chan event, 32)}
}

func (h *chanHandler) ActivationDidComplete(state ActivationState, err error) {
	h.events <- event{kind: "activation", state: state, err: err}
}

func (h *chanHandler) ReachabilityDidChange() {
	h.events <- event{kind: "reachability"}
}

func (h *chanHandler) CompanionStateDidChange() {
	h.events <- event{kind: "companion"}
}

func (h *chanHandler) ReceivedContext(payload map[string]any) {
	h.events <- event{kind: "context", payload: payload}
}

func (h *chanHandler) ReceivedUserInfo(payload map[string]any) {
	h.events <- event{kind: "userinfo", payload: payload}
}

func (h *chanHandler) ReceivedFile(path string, metadata map[string]any) {
	h.events <- event{kind: "file", path: path, payload: metadata}
}

func (h *chanHandler) ReceivedMessage(payload map[string]any) map[string]any {
	h.events <- event{kind: "message", payload: payload}
	return map[string]any{"ok": true}
}

func (h *chanHandler) ReceivedBinary(data []byte) []byte {
	h.events <- event{kind: "binary", data: data}
	return []byte{}
}

// waitFor discards unrelated events until one of the wanted kind arrives.
func waitFor(t *testing.T, h *chanHandler, kind string) event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-h.events:
			if e.kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", kind)
		}
	}
}

// expectNone fails if an event of the given kind arrives within the window.
func expectNone(t *testing.T, h *chanHandler, kind string) {
	t.Helper()
	window := time.After(100 * time.Millisecond)
	for {
		select {
		case e := <-h.events:
			if e.kind == kind {
				t.Fatalf("unexpected %q event: %+v", kind, e)
			}
		case <-window:
			return
		}
	}
}

func TestLoopbackActivationReachesHandler(t *testing.T) {
	testlog.Start(t)
	host, _ := NewLoopbackPair()
	h := newChanHandler()
	host.Bind(h)
	host.Activate()

	e := waitFor(t, h, "activation")
	if e.state != Activated || e.err != nil {
		t.Fatalf("unexpected activation event: %+v", e)
	}
	if host.ActivationState() != Activated {
		t.Fatalf("state not recorded: %v", host.ActivationState())
	}
}

func TestLoopbackDurableParksUntilHandlerBinds(t *testing.T) {
	testlog.Start(t)
	host, companion := NewLoopbackPair()
	host.Activate()

	host.EnqueueUserInfo(map[string]any{"n": 1})
	host.EnqueueFile("/tmp/a.bin", map[string]any{"name": "a"})

	h := newChanHandler()
	companion.Bind(h)

	e := waitFor(t, h, "userinfo")
	if e.payload["n"] != 1 {
		t.Fatalf("unexpected userinfo payload: %+v", e.payload)
	}
	e = waitFor(t, h, "file")
	if e.path != "/tmp/a.bin" {
		t.Fatalf("unexpected file path: %q", e.path)
	}
}

func TestLoopbackContextCarriesReplaceSemantics(t *testing.T) {
	testlog.Start(t)
	host, companion := NewLoopbackPair()
	host.Activate()

	if err := host.ReplaceContext(map[string]any{"v": 1}); err != nil {
		t.Fatalf("replace context: %v", err)
	}
	if err := host.ReplaceContext(map[string]any{"v": 2}); err != nil {
		t.Fatalf("replace context: %v", err)
	}

	h := newChanHandler()
	companion.Bind(h)

	e := waitFor(t, h, "context")
	if e.payload["v"] != 2 {
		t.Fatalf("expected newest context only, got %+v", e.payload)
	}
	expectNone(t, h, "context")
}

func TestLoopbackLiveReplyRoundTrip(t *testing.T) {
	testlog.Start(t)
	host, companion := NewLoopbackPair()
	hostHandler := newChanHandler()
	companionHandler := newChanHandler()
	host.Bind(hostHandler)
	companion.Bind(companionHandler)
	host.Activate()
	companion.Activate()
	host.SetReachable(true)

	replies := make(chan map[string]any, 1)
	sendErrs := make(chan error, 1)
	host.SendMessage(map[string]any{"ping": 1},
		func(reply map[string]any) { replies <- reply },
		func(err error) { sendErrs <- err })

	e := waitFor(t, companionHandler, "message")
	if e.payload["ping"] != 1 {
		t.Fatalf("unexpected message payload: %+v", e.payload)
	}
	select {
	case reply := <-replies:
		if reply["ok"] != true {
			t.Fatalf("unexpected reply: %+v", reply)
		}
	case err := <-sendErrs:
		t.Fatalf("send failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reply")
	}
}

func TestLoopbackLiveSendFailsWhileUnreachable(t *testing.T) {
	testlog.Start(t)
	host, companion := NewLoopbackPair()
	companion.Bind(newChanHandler())
	host.Activate()

	sendErrs := make(chan error, 1)
	host.SendMessage(map[string]any{"ping": 1}, nil,
		func(err error) { sendErrs <- err })

	select {
	case err := <-sendErrs:
		if !errors.Is(err, ErrNotReachable) {
			t.Fatalf("expected ErrNotReachable, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for send error")
	}
}

func TestLoopbackRejectsBeforeActivation(t *testing.T) {
	testlog.Start(t)
	host, _ := NewLoopbackPair()
	if err := host.ReplaceContext(map[string]any{"v": 1}); !errors.Is(err, ErrNotActivated) {
		t.Fatalf("expected ErrNotActivated, got %v", err)
	}
	sendErrs := make(chan error, 1)
	host.SendBinary([]byte{1}, nil, func(err error) { sendErrs <- err })
	select {
	case err := <-sendErrs:
		if !errors.Is(err, ErrNotActivated) {
			t.Fatalf("expected ErrNotActivated, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for send error")
	}
}

func TestLoopbackRejectsOversizedContext(t *testing.T) {
	testlog.Start(t)
	host, _ := NewLoopbackPair()
	host.Activate()
	host.SetContextLimit(8)

	err := host.ReplaceContext(map[string]any{"k": "a value beyond eight bytes"})
	if !errors.Is(err, ErrContextTooLarge) {
		t.Fatalf("expected ErrContextTooLarge, got %v", err)
	}
}
