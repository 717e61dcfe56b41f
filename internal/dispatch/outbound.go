package dispatch

import "github.com/tmcke/pairlink/internal/task"

// outboundQueue holds submitted tasks awaiting hand-off to the transport, in
// strict submission order. A task leaves the queue only on confirmed
// hand-off; unavailable or rejected tasks are retained in place, keeping
// their relative order for the next drain pass.
type outboundQueue struct {
	items []task.Task
}

func (q *outboundQueue) append(t task.Task) {
	q.items = append(q.items, t)
}

func (q *outboundQueue) len() int {
	return len(q.items)
}

// replace swaps the queue contents for the tasks retained by a drain pass.
func (q *outboundQueue) replace(kept []task.Task) {
	q.items = kept
}
