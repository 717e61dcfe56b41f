package transport

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultContextLimit is the loopback's ceiling on one context payload.
const DefaultContextLimit = 64 << 10

type loopOp int

const (
	opActivation loopOp = iota
	opReachability
	opCompanionState
	opContext
	opUserInfo
	opFile
	opMessage
	opBinary
)

type delivery struct {
	op       loopOp
	state    ActivationState
	err      error
	payload  map[string]any
	data     []byte
	path     string
	metadata map[string]any
	onReply  func(map[string]any)
	onReplyB func([]byte)
}

// Loopback is an in-memory Session cross-wired to a peer Loopback. Durable
// sends park in the peer's delivery queue until the peer binds a Handler;
// every event reaches the handler through a single pump goroutine, so a
// handler observes deliveries one at a time, in order, and asynchronously
// with respect to the Session call that produced them.
type Loopback struct {
	mu           sync.Mutex
	name         string
	log          zerolog.Logger
	peer         *Loopback
	handler      Handler
	state        ActivationState
	reachable    bool
	paired       bool
	contextLimit int
	queue        []delivery
	pumping      bool
}

// NewLoopbackPair returns the host-side and companion-side ends of one
// in-memory pairing.
func NewLoopbackPair() (*Loopback, *Loopback) {
	host := newLoopback("host")
	companion := newLoopback("companion")
	host.peer = companion
	companion.peer = host
	return host, companion
}

func newLoopback(name string) *Loopback {
	return &Loopback{
		name:         name,
		log:          log.With().Str("link", name).Logger(),
		paired:       true,
		contextLimit: DefaultContextLimit,
	}
}

// Bind attaches the Handler and replays anything parked while it was absent.
func (l *Loopback) Bind(h Handler) {
	l.mu.Lock()
	l.handler = h
	l.kick()
	l.mu.Unlock()
	// Binding changes effective reachability for the peer's live sends.
	l.peer.enqueue(delivery{op: opReachability})
}

// SetContextLimit overrides the context payload ceiling; for tests.
func (l *Loopback) SetContextLimit(n int) {
	l.mu.Lock()
	l.contextLimit = n
	l.mu.Unlock()
}

func (l *Loopback) Activate() {
	l.mu.Lock()
	l.state = Activated
	l.mu.Unlock()
	l.enqueue(delivery{op: opActivation, state: Activated})
}

// Deactivate moves the session out of Activated and reports the completion,
// mirroring a host-side session teardown.
func (l *Loopback) Deactivate() {
	l.mu.Lock()
	l.state = Inactive
	l.mu.Unlock()
	l.enqueue(delivery{op: opActivation, state: Inactive})
}

// SetReachable flips the liveness signal for both ends of the pair.
func (l *Loopback) SetReachable(v bool) {
	l.setReachable(v)
	l.peer.setReachable(v)
}

func (l *Loopback) setReachable(v bool) {
	l.mu.Lock()
	l.reachable = v
	l.mu.Unlock()
	l.enqueue(delivery{op: opReachability})
}

// SetPaired flips the pairing/companion-install signal for both ends.
func (l *Loopback) SetPaired(v bool) {
	l.setPaired(v)
	l.peer.setPaired(v)
}

func (l *Loopback) setPaired(v bool) {
	l.mu.Lock()
	l.paired = v
	l.mu.Unlock()
	l.enqueue(delivery{op: opCompanionState})
}

func (l *Loopback) Reachable() bool {
	l.mu.Lock()
	v := l.reachable
	l.mu.Unlock()
	return v && l.peer.bound()
}

func (l *Loopback) ActivationState() ActivationState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loopback) PairedAndInstalled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paired
}

func (l *Loopback) ReplaceContext(payload map[string]any) error {
	if l.ActivationState() != Activated {
		return ErrNotActivated
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if len(raw) > l.limit() {
		return ErrContextTooLarge
	}
	l.peer.enqueue(delivery{op: opContext, payload: payload})
	return nil
}

func (l *Loopback) EnqueueUserInfo(payload map[string]any) {
	if l.ActivationState() != Activated {
		l.log.Warn().Msg("transport.Loopback.EnqueueUserInfo dropped state=not_activated")
		return
	}
	l.peer.enqueue(delivery{op: opUserInfo, payload: payload})
}

func (l *Loopback) EnqueueFile(path string, metadata map[string]any) {
	if l.ActivationState() != Activated {
		l.log.Warn().Msg("transport.Loopback.EnqueueFile dropped state=not_activated")
		return
	}
	l.peer.enqueue(delivery{op: opFile, path: path, metadata: metadata})
}

func (l *Loopback) SendMessage(payload map[string]any, onReply func(map[string]any), onErr func(error)) {
	if err := l.liveSendErr(); err != nil {
		failAsync(onErr, err)
		return
	}
	l.peer.enqueue(delivery{op: opMessage, payload: payload, onReply: onReply})
}

func (l *Loopback) SendBinary(data []byte, onReply func([]byte), onErr func(error)) {
	if err := l.liveSendErr(); err != nil {
		failAsync(onErr, err)
		return
	}
	l.peer.enqueue(delivery{op: opBinary, data: data, onReplyB: onReply})
}

func (l *Loopback) liveSendErr() error {
	if l.ActivationState() != Activated {
		return ErrNotActivated
	}
	if !l.Reachable() {
		return ErrNotReachable
	}
	return nil
}

func failAsync(onErr func(error), err error) {
	if onErr == nil {
		return
	}
	go onErr(err)
}

func (l *Loopback) bound() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handler != nil
}

func (l *Loopback) limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.contextLimit
}

// enqueue appends one delivery for this end's handler. A queued context
// delivery is overwritten in place instead of appended: the transport's own
// context channel carries replace semantics, only the newest value survives.
func (l *Loopback) enqueue(d delivery) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d.op == opContext {
		for i := range l.queue {
			if l.queue[i].op == opContext {
				l.queue[i].payload = d.payload
				l.kick()
				return
			}
		}
	}
	l.queue = append(l.queue, d)
	l.kick()
}

// kick starts the pump when there is work and a handler; callers hold l.mu.
func (l *Loopback) kick() {
	if l.pumping || l.handler == nil || len(l.queue) == 0 {
		return
	}
	l.pumping = true
	go l.pump()
}

func (l *Loopback) pump() {
	for {
		l.mu.Lock()
		if l.handler == nil || len(l.queue) == 0 {
			l.pumping = false
			l.mu.Unlock()
			return
		}
		d := l.queue[0]
		l.queue = l.queue[1:]
		h := l.handler
		l.mu.Unlock()
		l.dispatch(h, d)
	}
}

func (l *Loopback) dispatch(h Handler, d delivery) {
	switch d.op {
	case opActivation:
		h.ActivationDidComplete(d.state, d.err)
	case opReachability:
		h.ReachabilityDidChange()
	case opCompanionState:
		h.CompanionStateDidChange()
	case opContext:
		h.ReceivedContext(d.payload)
	case opUserInfo:
		h.ReceivedUserInfo(d.payload)
	case opFile:
		h.ReceivedFile(d.path, d.metadata)
	case opMessage:
		reply := h.ReceivedMessage(d.payload)
		if d.onReply != nil {
			d.onReply(reply)
		}
	case opBinary:
		reply := h.ReceivedBinary(d.data)
		if d.onReplyB != nil {
			d.onReplyB(reply)
		}
	}
}
