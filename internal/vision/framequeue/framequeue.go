// Package framequeue provides the bounded producer/consumer hand-off
// between frame acquisition and the processing pipeline.
//
// The queue is a classic monitor with two wait conditions: one signalled
// when space becomes available, one when an item becomes available.
// Close is sticky and broadcast-wakes every waiter so no goroutine can
// block past shutdown. All failure is communicated via boolean returns;
// no operation panics.
package framequeue

import "sync"

// Queue is a thread-safe bounded FIFO of frames with explicit close
// semantics. One producer appends to the tail, one consumer removes from
// the head; both may observe the closed flag.
type Queue struct {
	mu    sync.Mutex
	space *sync.Cond // signalled when a slot frees up
	item  *sync.Cond // signalled when a frame arrives

	frames   []Frame
	capacity int
	closed   bool
}

// New creates a queue holding at most capacity frames. A capacity of zero
// produces a queue that refuses every Push and is permanently empty.
func New(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	q := &Queue{capacity: capacity}
	q.space = sync.NewCond(&q.mu)
	q.item = sync.NewCond(&q.mu)
	return q
}

// Push appends a copy of frame to the tail, blocking while the queue is
// full. It returns false without enqueuing if the queue is closed, becomes
// closed while waiting, or has zero capacity.
func (q *Queue) Push(frame Frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.capacity == 0 {
		return false
	}

	for len(q.frames) >= q.capacity && !q.closed {
		q.space.Wait()
	}
	if q.closed {
		return false
	}

	q.frames = append(q.frames, frame.Clone())
	q.item.Signal()
	return true
}

// Pop removes and returns the head frame, blocking while the queue is
// empty and open. After Close, buffered frames are still drained one at a
// time; once the buffer is empty Pop returns false.
func (q *Queue) Pop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.frames) == 0 && !q.closed {
		q.item.Wait()
	}
	if len(q.frames) == 0 {
		// Closed and drained.
		return Frame{}, false
	}

	frame := q.frames[0]
	q.frames[0] = Frame{} // release the buffer reference
	q.frames = q.frames[1:]
	q.space.Signal()
	return frame, true
}

// Close marks the queue closed and wakes all waiting pushers and poppers.
// It is idempotent. Buffered frames remain poppable after Close.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.space.Broadcast()
	q.item.Broadcast()
}

// Len returns the current number of buffered frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Empty reports whether the queue currently buffers no frames.
func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames) == 0
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
