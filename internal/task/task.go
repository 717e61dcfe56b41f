// Package task defines the unit of queueing: one immutable outbound or
// inbound work item, tagged with the delivery primitive it targets.
package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrPayloadNotSerializable = errors.New("task: payload not serializable")
	ErrPayloadTooLarge        = errors.New("task: payload too large")
	ErrEmptyFilePath          = errors.New("task: empty file path")
)

// Kind discriminates which transport primitive delivers a Task.
type Kind int

const (
	KindUpdateContext Kind = iota
	KindTransferUserInfo
	KindTransferFile
	KindSendMessage
	KindSendMessageData
)

func (k Kind) String() string {
	switch k {
	case KindUpdateContext:
		return "update_context"
	case KindTransferUserInfo:
		return "transfer_userinfo"
	case KindTransferFile:
		return "transfer_file"
	case KindSendMessage:
		return "send_message"
	case KindSendMessageData:
		return "send_message_data"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Durable reports whether the transport queues this kind on its own, so
// delivery does not require the peer to be reachable at hand-off time.
func (k Kind) Durable() bool {
	switch k {
	case KindUpdateContext, KindTransferUserInfo, KindTransferFile:
		return true
	default:
		return false
	}
}

// Task is one unit of work. Values are immutable after construction: maps and
// byte slices are copied in by the constructors and copied out by accessors.
type Task struct {
	id       string
	kind     Kind
	payload  map[string]any
	data     []byte
	filePath string
	metadata map[string]any
}

// NewContext builds a durable context-replace task. A maxBytes <= 0 skips
// validation; inbound tasks built from transport events use that path.
func NewContext(payload map[string]any, maxBytes int) (Task, error) {
	if err := validatePayload(payload, maxBytes); err != nil {
		return Task{}, err
	}
	return Task{id: uuid.NewString(), kind: KindUpdateContext, payload: maps.Clone(payload)}, nil
}

// NewUserInfo builds a durable, ordered userinfo-transfer task.
func NewUserInfo(payload map[string]any, maxBytes int) (Task, error) {
	if err := validatePayload(payload, maxBytes); err != nil {
		return Task{}, err
	}
	return Task{id: uuid.NewString(), kind: KindTransferUserInfo, payload: maps.Clone(payload)}, nil
}

// NewFile builds a durable, ordered file-transfer task. The path is an opaque
// reference handed through to the transport, never opened here.
func NewFile(path string, metadata map[string]any, maxBytes int) (Task, error) {
	if strings.TrimSpace(path) == "" {
		return Task{}, ErrEmptyFilePath
	}
	if metadata != nil {
		if err := validatePayload(metadata, maxBytes); err != nil {
			return Task{}, err
		}
	}
	return Task{id: uuid.NewString(), kind: KindTransferFile, filePath: path, metadata: maps.Clone(metadata)}, nil
}

// NewMessage builds a live-only message task; delivery requires the peer to
// be reachable at drain time.
func NewMessage(payload map[string]any, maxBytes int) (Task, error) {
	if err := validatePayload(payload, maxBytes); err != nil {
		return Task{}, err
	}
	return Task{id: uuid.NewString(), kind: KindSendMessage, payload: maps.Clone(payload)}, nil
}

// NewBinary builds a live-only binary message task.
func NewBinary(data []byte, maxBytes int) (Task, error) {
	if maxBytes > 0 && len(data) > maxBytes {
		return Task{}, fmt.Errorf("%w: %d bytes (limit %d)", ErrPayloadTooLarge, len(data), maxBytes)
	}
	return Task{id: uuid.NewString(), kind: KindSendMessageData, data: slices.Clone(data)}, nil
}

func (t Task) ID() string { return t.id }
func (t Task) Kind() Kind { return t.kind }

// Payload returns a copy of the key-value payload for payload-carrying kinds.
func (t Task) Payload() map[string]any { return maps.Clone(t.payload) }

// Data returns a copy of the binary payload for KindSendMessageData.
func (t Task) Data() []byte { return slices.Clone(t.data) }

func (t Task) FilePath() string { return t.filePath }

// Metadata returns a copy of the file-transfer metadata, nil if none was set.
func (t Task) Metadata() map[string]any { return maps.Clone(t.metadata) }

// EncodedSize reports the serialized byte size of a payload, or an error when
// the payload cannot be serialized at all.
func EncodedSize(payload map[string]any) (int, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPayloadNotSerializable, err)
	}
	return len(raw), nil
}

func validatePayload(payload map[string]any, maxBytes int) error {
	if maxBytes <= 0 {
		return nil
	}
	n, err := EncodedSize(payload)
	if err != nil {
		return err
	}
	if n > maxBytes {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrPayloadTooLarge, n, maxBytes)
	}
	return nil
}
