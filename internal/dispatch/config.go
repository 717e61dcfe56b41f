package dispatch

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Role selects which end of the pairing this dispatcher runs on. The two
// roles react differently to deactivation: the companion end immediately
// re-requests activation so the peer can keep rotating between paired
// companions, the host end just records the state.
type Role int

const (
	RoleHost Role = iota
	RoleCompanion
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleCompanion:
		return "companion"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Config carries dispatcher construction options.
type Config struct {
	Role Role

	// PayloadMaxBytes caps the serialized size of one submitted payload.
	// Oversized or unserializable payloads are rejected at submission, the
	// one moment the caller is still on the line.
	PayloadMaxBytes int

	// InboundLimit bounds the inbound buffer while no consumer is attached.
	// Zero keeps the buffer unbounded, matching the transport's own
	// unbounded queued-delivery guarantee; a positive value drops the
	// oldest buffered item with a warning once the limit is reached.
	InboundLimit int

	Logger zerolog.Logger
}

// DefaultConfig returns host-role defaults with a 64 KiB payload ceiling and
// an unbounded inbound buffer.
func DefaultConfig() Config {
	return Config{
		Role:            RoleHost,
		PayloadMaxBytes: 64 << 10,
		InboundLimit:    0,
		Logger:          log.Logger,
	}
}
