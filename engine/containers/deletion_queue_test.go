package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeletionQueueLIFO(t *testing.T) {
	dq := NewDeletionQueue()
	var order []string
	dq.Push(func() { order = append(order, "image") })
	dq.Push(func() { order = append(order, "view") })
	dq.Push(nil)
	assert.Equal(t, 2, dq.Len())

	dq.Flush()
	assert.Equal(t, []string{"view", "image"}, order)
	assert.Equal(t, 0, dq.Len())

	dq.Flush()
	assert.Len(t, order, 2)
}

func TestDeletionQueuePushDuringFlush(t *testing.T) {
	dq := NewDeletionQueue()
	var order []int
	dq.Push(func() { order = append(order, 1) })
	dq.Push(func() {
		order = append(order, 2)
		dq.Push(func() { order = append(order, 3) })
	})
	dq.Flush()
	assert.Equal(t, []int{2, 3, 1}, order)
}
