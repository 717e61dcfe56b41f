package task

import (
	"errors"
	"testing"

	"github.com/tmcke/pairlink/internal/testutil/testlog"
)

func TestKindDurable(t *testing.T) {
	testlog.Start(t)
	durable := []Kind{KindUpdateContext, KindTransferUserInfo, KindTransferFile}
	for _, k := range durable {
		if !k.Durable() {
			t.Fatalf("%v should be durable", k)
		}
	}
	live := []Kind{KindSendMessage, KindSendMessageData}
	for _, k := range live {
		if k.Durable() {
			t.Fatalf("%v should be live-only", k)
		}
	}
}

func TestConstructorsRejectOversizedPayload(t *testing.T) {
	testlog.Start(t)
	payload := map[string]any{"k": "a value that does not fit in the ceiling"}
	if _, err := NewContext(payload, 8); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("context: expected ErrPayloadTooLarge, got %v", err)
	}
	if _, err := NewUserInfo(payload, 8); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("userinfo: expected ErrPayloadTooLarge, got %v", err)
	}
	if _, err := NewBinary(make([]byte, 9), 8); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("binary: expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestConstructorsRejectUnserializablePayload(t *testing.T) {
	testlog.Start(t)
	payload := map[string]any{"ch": make(chan int)}
	if _, err := NewMessage(payload, 1024); !errors.Is(err, ErrPayloadNotSerializable) {
		t.Fatalf("expected ErrPayloadNotSerializable, got %v", err)
	}
	if _, err := NewFile("/tmp/a", payload, 1024); !errors.Is(err, ErrPayloadNotSerializable) {
		t.Fatalf("file metadata: expected ErrPayloadNotSerializable, got %v", err)
	}
}

func TestZeroCeilingSkipsValidation(t *testing.T) {
	testlog.Start(t)
	got, err := NewUserInfo(map[string]any{"k": "anything goes on the inbound path"}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind() != KindTransferUserInfo {
		t.Fatalf("unexpected kind: %v", got.Kind())
	}
}

func TestNewFileRequiresPath(t *testing.T) {
	testlog.Start(t)
	if _, err := NewFile("  ", nil, 1024); !errors.Is(err, ErrEmptyFilePath) {
		t.Fatalf("expected ErrEmptyFilePath, got %v", err)
	}
	got, err := NewFile("/tmp/a.bin", nil, 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Metadata() != nil {
		t.Fatalf("expected nil metadata, got %v", got.Metadata())
	}
}

func TestPayloadIsolation(t *testing.T) {
	testlog.Start(t)
	src := map[string]any{"n": 1}
	tk, err := NewUserInfo(src, 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	src["n"] = 99
	if got := tk.Payload()["n"]; got != 1 {
		t.Fatalf("task observed caller mutation: %v", got)
	}
	out := tk.Payload()
	out["n"] = 42
	if got := tk.Payload()["n"]; got != 1 {
		t.Fatalf("accessor leaked internal map: %v", got)
	}
}

func TestBinaryDataIsolation(t *testing.T) {
	testlog.Start(t)
	src := []byte{1, 2, 3}
	tk, err := NewBinary(src, 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	src[0] = 99
	if got := tk.Data(); got[0] != 1 {
		t.Fatalf("task observed caller mutation: %v", got)
	}
	if tk.ID() == "" {
		t.Fatalf("missing task id")
	}
}

func TestEncodedSize(t *testing.T) {
	testlog.Start(t)
	n, err := EncodedSize(map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(`{"k":"v"}`) {
		t.Fatalf("unexpected size: %d", n)
	}
	if _, err := EncodedSize(map[string]any{"ch": make(chan int)}); !errors.Is(err, ErrPayloadNotSerializable) {
		t.Fatalf("expected ErrPayloadNotSerializable, got %v", err)
	}
}
