package containers

// DeletionQueue holds deferred destroy closures. Flush runs them newest first
// so objects are released in reverse creation order (views before images).
type DeletionQueue struct {
	deletors []func()
}

func NewDeletionQueue() *DeletionQueue {
	return &DeletionQueue{}
}

// Push schedules fn for the next Flush. A nil fn is ignored.
func (dq *DeletionQueue) Push(fn func()) {
	if fn == nil {
		return
	}
	dq.deletors = append(dq.deletors, fn)
}

// Flush runs every pending closure in LIFO order and empties the queue.
// Closures pushed while flushing run in the same call.
func (dq *DeletionQueue) Flush() {
	for len(dq.deletors) > 0 {
		last := len(dq.deletors) - 1
		fn := dq.deletors[last]
		dq.deletors[last] = nil
		dq.deletors = dq.deletors[:last]
		fn()
	}
}

func (dq *DeletionQueue) Len() int {
	return len(dq.deletors)
}
