package dispatch

import "github.com/tmcke/pairlink/internal/task"

// inboundBuffer holds received tasks awaiting a consumer, in arrival order.
type inboundBuffer struct {
	items []task.Task
}

// append adds one task. With limit > 0 the oldest buffered task is evicted
// once the buffer is full; the evicted task and true are returned so the
// caller can report the drop.
func (b *inboundBuffer) append(t task.Task, limit int) (task.Task, bool) {
	var evicted task.Task
	var dropped bool
	if limit > 0 && len(b.items) >= limit {
		evicted = b.items[0]
		b.items = b.items[1:]
		dropped = true
	}
	b.items = append(b.items, t)
	return evicted, dropped
}

func (b *inboundBuffer) len() int {
	return len(b.items)
}

// snapshotAndClear hands the whole buffer to the caller and resets it, so a
// flush pass works on a stable batch.
func (b *inboundBuffer) snapshotAndClear() []task.Task {
	out := b.items
	b.items = nil
	return out
}
