package dispatch

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/tmcke/pairlink/internal/task"
	"github.com/tmcke/pairlink/internal/transport"
)

// Consumer receives inbound tasks, one at a time, in arrival order. The
// dispatcher never requires a consumer to exist; inbound work buffers until
// one is attached.
type Consumer interface {
	ReceiveContext(payload map[string]any)
	ReceiveUserInfo(payload map[string]any)
	ReceiveFile(path string, metadata map[string]any)
	ReceiveMessage(payload map[string]any)
	ReceiveBinary(data []byte)
}

// Dispatcher is the delivery facade: it accepts submissions, owns the
// outbound queue, the latest-context slot, and the inbound buffer, and
// reacts to transport state changes by re-attempting delivery.
//
// One mutex guards all dispatcher state. Transport sessions must deliver
// Handler events asynchronously with respect to Session method calls (see
// transport.Handler); the dispatcher invokes Session primitives while holding
// its lock.
type Dispatcher struct {
	mu        sync.Mutex
	session   transport.Session
	cfg       Config
	log       zerolog.Logger
	outbound  outboundQueue
	inbound   inboundBuffer
	latest    task.Task
	hasLatest bool
	consumer  Consumer
	state     transport.ActivationState
	flushing  bool
}

// New builds a dispatcher over the given transport session.
func New(session transport.Session, cfg Config) (*Dispatcher, error) {
	if session == nil {
		return nil, ErrNilSession
	}
	if cfg.PayloadMaxBytes <= 0 {
		cfg.PayloadMaxBytes = DefaultConfig().PayloadMaxBytes
	}
	return &Dispatcher{
		session: session,
		cfg:     cfg,
		log:     cfg.Logger.With().Str("role", cfg.Role.String()).Logger(),
	}, nil
}

// SubmitContext queues a durable context update. With latestOnly the payload
// lands in the single-slot latest-context override, unconditionally replacing
// any undelivered predecessor; otherwise it joins the FIFO queue.
func (d *Dispatcher) SubmitContext(payload map[string]any, latestOnly bool) error {
	t, err := task.NewContext(payload, d.cfg.PayloadMaxBytes)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if latestOnly {
		d.latest = t
		d.hasLatest = true
	} else {
		d.outbound.append(t)
	}
	d.drainLocked()
	return nil
}

// SubmitUserInfo queues a durable, ordered userinfo transfer.
func (d *Dispatcher) SubmitUserInfo(payload map[string]any) error {
	t, err := task.NewUserInfo(payload, d.cfg.PayloadMaxBytes)
	if err != nil {
		return err
	}
	d.submit(t)
	return nil
}

// SubmitFile queues a durable, ordered file transfer.
func (d *Dispatcher) SubmitFile(path string, metadata map[string]any) error {
	t, err := task.NewFile(path, metadata, d.cfg.PayloadMaxBytes)
	if err != nil {
		return err
	}
	d.submit(t)
	return nil
}

// SubmitMessage queues a live-only message; it is handed off only while the
// peer is reachable and retained until then.
func (d *Dispatcher) SubmitMessage(payload map[string]any) error {
	t, err := task.NewMessage(payload, d.cfg.PayloadMaxBytes)
	if err != nil {
		return err
	}
	d.submit(t)
	return nil
}

// SubmitBinary queues a live-only binary message.
func (d *Dispatcher) SubmitBinary(data []byte) error {
	t, err := task.NewBinary(data, d.cfg.PayloadMaxBytes)
	if err != nil {
		return err
	}
	d.submit(t)
	return nil
}

func (d *Dispatcher) submit(t task.Task) {
	d.mu.Lock()
	d.outbound.append(t)
	d.drainLocked()
	d.mu.Unlock()
}

// SetConsumer attaches (or detaches, with nil) the inbound consumer. Attach
// is edge-triggered: buffered inbound tasks flush immediately and blocked
// outbound work is re-attempted, since an attached consumer is itself one of
// the drain preconditions.
func (d *Dispatcher) SetConsumer(c Consumer) {
	d.mu.Lock()
	d.consumer = c
	if c != nil {
		d.drainLocked()
		d.flushReceivedLocked()
	}
	d.mu.Unlock()
}

// drainLocked makes one pass over the outbound queue, handing every
// currently-eligible task to the transport in submission order, then flushes
// the latest-context slot. Idempotent and cheap when there is nothing to do;
// every external trigger (submission, state change, consumer attach) funnels
// here. Callers hold d.mu.
//
// No consumer attached means no drain: outbound delivery is gated on a
// consumer existing, not just on transport state.
func (d *Dispatcher) drainLocked() {
	if d.consumer == nil {
		return
	}
	if d.session.ActivationState() != transport.Activated {
		return
	}
	reachable := d.session.Reachable()

	var kept []task.Task
	for _, t := range d.outbound.items {
		if !d.handOff(t, reachable) {
			kept = append(kept, t)
		}
	}
	d.outbound.replace(kept)

	if d.hasLatest {
		if err := d.session.ReplaceContext(d.latest.Payload()); err != nil {
			d.log.Warn().Err(err).Str("task", d.latest.ID()).
				Msg("dispatch.Dispatcher.drain latest context rejected")
		} else {
			d.latest = task.Task{}
			d.hasLatest = false
		}
	}
}

// handOff attempts delivery of one task, reporting whether the task is done
// with the queue. Durable hand-offs and accepted live sends count as done
// even though the transport's own delivery may still fail asynchronously;
// that outcome surfaces through the reply/error callbacks only.
func (d *Dispatcher) handOff(t task.Task, reachable bool) bool {
	switch t.Kind() {
	case task.KindUpdateContext:
		if err := d.session.ReplaceContext(t.Payload()); err != nil {
			d.log.Warn().Err(err).Str("task", t.ID()).
				Msg("dispatch.Dispatcher.drain context rejected")
			return false
		}
		return true
	case task.KindTransferUserInfo:
		d.session.EnqueueUserInfo(t.Payload())
		return true
	case task.KindTransferFile:
		d.session.EnqueueFile(t.FilePath(), t.Metadata())
		return true
	case task.KindSendMessage:
		if !reachable {
			return false
		}
		id := t.ID()
		d.session.SendMessage(t.Payload(),
			func(reply map[string]any) {
				d.log.Debug().Str("task", id).Int("reply_keys", len(reply)).
					Msg("dispatch.Dispatcher.send reply")
			},
			func(err error) {
				d.log.Warn().Err(err).Str("task", id).
					Msg("dispatch.Dispatcher.send failed")
			})
		return true
	case task.KindSendMessageData:
		if !reachable {
			return false
		}
		id := t.ID()
		d.session.SendBinary(t.Data(),
			func(reply []byte) {
				d.log.Debug().Str("task", id).Int("reply_bytes", len(reply)).
					Msg("dispatch.Dispatcher.send binary reply")
			},
			func(err error) {
				d.log.Warn().Err(err).Str("task", id).
					Msg("dispatch.Dispatcher.send binary failed")
			})
		return true
	default:
		d.log.Error().Str("task", t.ID()).Stringer("kind", t.Kind()).
			Msg("dispatch.Dispatcher.drain unknown kind dropped")
		return true
	}
}

func (d *Dispatcher) enqueueReceived(t task.Task) {
	d.mu.Lock()
	evicted, dropped := d.inbound.append(t, d.cfg.InboundLimit)
	if dropped {
		d.log.Warn().Str("task", evicted.ID()).Stringer("kind", evicted.Kind()).
			Int("limit", d.cfg.InboundLimit).
			Msg("dispatch.Dispatcher.enqueueReceived dropped oldest")
	}
	d.flushReceivedLocked()
	d.mu.Unlock()
}

// flushReceivedLocked delivers every buffered inbound task to the consumer in
// arrival order, then leaves the buffer empty. Each batch is snapshotted and
// cleared under the lock, then delivered with the lock released so a consumer
// may call back into the dispatcher; the flushing guard keeps a second pass
// from interleaving while the lock is down. Callers hold d.mu.
func (d *Dispatcher) flushReceivedLocked() {
	if d.flushing {
		return
	}
	d.flushing = true
	for d.consumer != nil && d.inbound.len() > 0 {
		c := d.consumer
		batch := d.inbound.snapshotAndClear()
		d.mu.Unlock()
		for _, t := range batch {
			deliverToConsumer(c, t)
		}
		d.mu.Lock()
	}
	d.flushing = false
}

func deliverToConsumer(c Consumer, t task.Task) {
	switch t.Kind() {
	case task.KindUpdateContext:
		c.ReceiveContext(t.Payload())
	case task.KindTransferUserInfo:
		c.ReceiveUserInfo(t.Payload())
	case task.KindTransferFile:
		c.ReceiveFile(t.FilePath(), t.Metadata())
	case task.KindSendMessage:
		c.ReceiveMessage(t.Payload())
	case task.KindSendMessageData:
		c.ReceiveBinary(t.Data())
	}
}

// ActivationDidComplete records the new activation state. An error-free
// completion always triggers a drain: drain is idempotent, and work submitted
// before activation should not have to wait for an unrelated event. An
// error-free deactivation on the companion role immediately re-requests
// activation so the host can keep rotating between paired companions.
func (d *Dispatcher) ActivationDidComplete(state transport.ActivationState, err error) {
	if err != nil {
		d.log.Error().Err(err).Stringer("state", state).
			Msg("dispatch.Dispatcher.activation failed")
		return
	}
	d.mu.Lock()
	d.state = state
	if state == transport.Activated {
		d.drainLocked()
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	if d.cfg.Role == RoleCompanion {
		d.log.Info().Stringer("state", state).
			Msg("dispatch.Dispatcher.activation re-requesting")
		d.session.Activate()
	}
}

// ReachabilityDidChange re-attempts delivery; live-only tasks retained while
// unreachable become eligible here.
func (d *Dispatcher) ReachabilityDidChange() {
	d.mu.Lock()
	d.drainLocked()
	d.mu.Unlock()
}

// CompanionStateDidChange re-attempts delivery after a pairing or companion
// app install change on the host role.
func (d *Dispatcher) CompanionStateDidChange() {
	if d.cfg.Role == RoleHost {
		d.log.Info().Bool("paired", d.session.PairedAndInstalled()).
			Msg("dispatch.Dispatcher.companion state changed")
	}
	d.mu.Lock()
	d.drainLocked()
	d.mu.Unlock()
}

func (d *Dispatcher) ReceivedContext(payload map[string]any) {
	t, err := task.NewContext(payload, 0)
	if err != nil {
		return
	}
	d.enqueueReceived(t)
}

func (d *Dispatcher) ReceivedUserInfo(payload map[string]any) {
	t, err := task.NewUserInfo(payload, 0)
	if err != nil {
		return
	}
	d.enqueueReceived(t)
}

func (d *Dispatcher) ReceivedFile(path string, metadata map[string]any) {
	t, err := task.NewFile(path, metadata, 0)
	if err != nil {
		d.log.Warn().Err(err).Msg("dispatch.Dispatcher.ReceivedFile invalid")
		return
	}
	d.enqueueReceived(t)
}

// ReceivedMessage buffers the inbound live message and acknowledges it
// immediately; reply production never blocks on a consumer being attached.
func (d *Dispatcher) ReceivedMessage(payload map[string]any) map[string]any {
	if t, err := task.NewMessage(payload, 0); err == nil {
		d.enqueueReceived(t)
	}
	return map[string]any{"status": "received"}
}

// ReceivedBinary buffers the inbound live binary and replies with empty
// bytes.
func (d *Dispatcher) ReceivedBinary(data []byte) []byte {
	if t, err := task.NewBinary(data, 0); err == nil {
		d.enqueueReceived(t)
	}
	return []byte{}
}

// PendingCount reports the outbound tasks still awaiting hand-off, not
// counting the latest-context slot.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outbound.len()
}

// ReceivedCount reports the inbound tasks buffered for a future consumer.
func (d *Dispatcher) ReceivedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inbound.len()
}

// HasLatestContext reports whether a latest-only context update is pending.
func (d *Dispatcher) HasLatestContext() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hasLatest
}

// State reports the last activation state the transport completed with.
func (d *Dispatcher) State() transport.ActivationState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}
