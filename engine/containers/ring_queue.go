package containers

import "errors"

var (
	ErrQueueFull  = errors.New("queue is full")
	ErrQueueEmpty = errors.New("queue is empty")
)

// RingQueue is a bounded FIFO over a fixed backing array. It is not safe for
// concurrent use; guard it with the owner's lock.
type RingQueue[T any] struct {
	data       []T
	size       int
	readIndex  int
	writeIndex int
	count      int
}

// NewRingQueue creates a queue holding at most size elements.
func NewRingQueue[T any](size int) *RingQueue[T] {
	if size < 1 {
		size = 1
	}
	return &RingQueue[T]{
		data: make([]T, size),
		size: size,
	}
}

// Enqueue adds an element at the back of the queue.
func (rq *RingQueue[T]) Enqueue(value T) error {
	if rq.IsFull() {
		return ErrQueueFull
	}
	rq.data[rq.writeIndex] = value
	rq.writeIndex = (rq.writeIndex + 1) % rq.size
	rq.count++
	return nil
}

// Dequeue removes and returns the front element.
func (rq *RingQueue[T]) Dequeue() (T, error) {
	var zero T
	if rq.IsEmpty() {
		return zero, ErrQueueEmpty
	}
	value := rq.data[rq.readIndex]
	rq.data[rq.readIndex] = zero
	rq.readIndex = (rq.readIndex + 1) % rq.size
	rq.count--
	return value, nil
}

// Peek returns the front element without removing it.
func (rq *RingQueue[T]) Peek() (T, error) {
	if rq.IsEmpty() {
		var zero T
		return zero, ErrQueueEmpty
	}
	return rq.data[rq.readIndex], nil
}

// RemoveIf drops every element matching pred, keeping the order of the rest.
// Returns the number of removed elements.
func (rq *RingQueue[T]) RemoveIf(pred func(T) bool) int {
	kept := make([]T, 0, rq.count)
	removed := 0
	for rq.count > 0 {
		v, _ := rq.Dequeue()
		if pred(v) {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	rq.readIndex, rq.writeIndex = 0, 0
	for _, v := range kept {
		_ = rq.Enqueue(v)
	}
	return removed
}

// Clear drops every element.
func (rq *RingQueue[T]) Clear() {
	var zero T
	for i := range rq.data {
		rq.data[i] = zero
	}
	rq.readIndex, rq.writeIndex, rq.count = 0, 0, 0
}

func (rq *RingQueue[T]) Len() int {
	return rq.count
}

func (rq *RingQueue[T]) Cap() int {
	return rq.size
}

func (rq *RingQueue[T]) IsEmpty() bool {
	return rq.count == 0
}

func (rq *RingQueue[T]) IsFull() bool {
	return rq.count == rq.size
}
