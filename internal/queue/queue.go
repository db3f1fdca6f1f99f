package queue

import (
	"sync"
)

// Queue is a thread-safe FIFO that hands out its contents in batches.
// Items pushed while a batch is being handled land in the next batch.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// New creates a new empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends items to the queue.
func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Take returns all queued items in push order and empties the queue.
func (q *Queue[T]) Take() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.items
	q.items = nil
	return batch
}

// Drain hands batches to fn until the queue stays empty, including items
// fn itself pushes. It returns the number of items handled.
func (q *Queue[T]) Drain(fn func(batch []T)) int {
	n := 0
	for {
		batch := q.Take()
		if len(batch) == 0 {
			return n
		}
		n += len(batch)
		fn(batch)
	}
}
