package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	q := NewRingQueue[string](3)
	require.NoError(t, q.Enqueue("a"))
	require.NoError(t, q.Enqueue("b"))
	require.NoError(t, q.Enqueue("c"))
	assert.True(t, q.IsFull())
	assert.ErrorIs(t, q.Enqueue("d"), ErrQueueFull)

	v, err := q.Peek()
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	v, _ = q.Dequeue()
	assert.Equal(t, "a", v)
	require.NoError(t, q.Enqueue("d"))

	var out []string
	for !q.IsEmpty() {
		v, err := q.Dequeue()
		require.NoError(t, err)
		out = append(out, v)
	}
	assert.Equal(t, []string{"b", "c", "d"}, out)

	_, err = q.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRingQueueRemoveIf(t *testing.T) {
	q := NewRingQueue[int](4)
	for _, v := range []int{1, 2, 3, 4} {
		require.NoError(t, q.Enqueue(v))
	}
	_, _ = q.Dequeue()
	require.NoError(t, q.Enqueue(5))

	assert.Equal(t, 2, q.RemoveIf(func(v int) bool { return v%2 == 0 }))
	assert.Equal(t, 2, q.Len())
	a, _ := q.Dequeue()
	b, _ := q.Dequeue()
	assert.Equal(t, []int{3, 5}, []int{a, b})
}

func TestRingQueueClear(t *testing.T) {
	q := NewRingQueue[int](2)
	_ = q.Enqueue(1)
	q.Clear()
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 2, q.Cap())
}
