package vulkan

import "sync"

type LockGroup string

const (
	// QueueSubmission guards the single graphics queue, which Vulkan
	// requires to be externally synchronized.
	QueueSubmission LockGroup = "queue_submission"
	// PipelineCreation guards pipeline and layout creation, which the
	// pipeline rebuild worker runs off the main thread.
	PipelineCreation LockGroup = "pipeline_creation"
	// RenderpassCache guards the shared render pass cache.
	RenderpassCache LockGroup = "renderpass_cache"
)

// lockPool hands out one mutex per group.
type lockPool struct {
	mu    sync.Mutex
	locks map[LockGroup]*sync.Mutex
}

func newLockPool() *lockPool {
	return &lockPool{locks: make(map[LockGroup]*sync.Mutex)}
}

func (lp *lockPool) lock(group LockGroup) *sync.Mutex {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	l, exists := lp.locks[group]
	if !exists {
		l = &sync.Mutex{}
		lp.locks[group] = l
	}
	return l
}

// SafeCall runs fn holding the lock of group.
func (lp *lockPool) SafeCall(group LockGroup, fn func() error) error {
	l := lp.lock(group)
	l.Lock()
	defer l.Unlock()
	return fn()
}
