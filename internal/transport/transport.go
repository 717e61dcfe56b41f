// Package transport owns the contracts between the delivery core and the
// device-pair transport collaborator.
//
// Ownership boundary:
// - Session capability surface (reachability, activation, send primitives)
// - Handler event surface consumed by the dispatch core
// - in-memory loopback pair for demos and integration tests
//
// Pairing, encryption, and byte movement between devices belong to concrete
// Session implementations, never to this package's contracts.
package transport

import (
	"errors"
	"fmt"
)

var (
	ErrNotActivated    = errors.New("transport: session not activated")
	ErrNotReachable    = errors.New("transport: peer not reachable")
	ErrContextTooLarge = errors.New("transport: context payload too large")
)

// ActivationState is the transport-level handshake state required before any
// delivery primitive may be used.
type ActivationState int

const (
	NotActivated ActivationState = iota
	Inactive
	Activated
)

func (s ActivationState) String() string {
	switch s {
	case NotActivated:
		return "not_activated"
	case Inactive:
		return "inactive"
	case Activated:
		return "activated"
	default:
		return fmt.Sprintf("activation_state(%d)", int(s))
	}
}

// Session is the capability surface a transport exposes to the core.
//
// The replace/enqueue primitives are durable: the transport queues them on its
// side and delivers when the peer comes up. SendMessage and SendBinary are
// live-only; their reply/error callbacks fire later, asynchronously, and must
// never be invoked synchronously from inside the send call.
type Session interface {
	Reachable() bool
	ActivationState() ActivationState
	// PairedAndInstalled is meaningful on the host-device role only.
	PairedAndInstalled() bool
	Activate()
	ReplaceContext(payload map[string]any) error
	EnqueueUserInfo(payload map[string]any)
	EnqueueFile(path string, metadata map[string]any)
	SendMessage(payload map[string]any, onReply func(map[string]any), onErr func(error))
	SendBinary(data []byte, onReply func([]byte), onErr func(error))
}

// Handler is the event surface a Session delivers into. Implementations must
// be safe to call from arbitrary goroutines; a Session must deliver events
// asynchronously with respect to its own Session method calls so a handler
// reacting to an event can call back into the Session without re-entrancy.
type Handler interface {
	ActivationDidComplete(state ActivationState, err error)
	ReachabilityDidChange()
	CompanionStateDidChange()
	ReceivedContext(payload map[string]any)
	ReceivedUserInfo(payload map[string]any)
	ReceivedFile(path string, metadata map[string]any)
	// ReceivedMessage must synchronously yield the reply payload.
	ReceivedMessage(payload map[string]any) map[string]any
	// ReceivedBinary must synchronously yield the reply bytes.
	ReceivedBinary(data []byte) []byte
}
