// Package queue provides the bounded FIFO used to hand decoded requests from a
// byte-arrival producer to a single deferred consumer.
package queue

import (
	"sync"
	"time"
)

// Bounded is a fixed-capacity FIFO safe for concurrent producers and consumers.
//
// Push waits at most a bounded duration for room and reports failure instead of
// blocking further; when the queue is full the pushed (newest) item is the one
// dropped, queued items are never evicted. Pop never blocks.
type Bounded[T any] struct {
	items chan T
}

// NewBounded creates a Bounded queue holding at most capacity items.
// A capacity below 1 is raised to 1.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &Bounded[T]{items: make(chan T, capacity)}
}

// Push appends item, waiting up to wait for room. It returns false if the queue
// stayed full for the whole wait. A non-positive wait makes Push non-blocking.
func (q *Bounded[T]) Push(item T, wait time.Duration) bool {
	select {
	case q.items <- item:
		return true
	default:
	}

	if wait <= 0 {
		return false
	}

	timer := getTimer(wait)
	defer putTimer(timer)

	select {
	case q.items <- item:
		return true
	case <-timer.C:
		return false
	}
}

// Pop removes and returns the head item. ok is false when the queue is empty.
func (q *Bounded[T]) Pop() (item T, ok bool) {
	select {
	case item = <-q.items:
		return item, true
	default:
		return item, false
	}
}

// Drain pops every queued item, calling fn for each, and returns the count.
// Items pushed while Drain runs are drained as well.
func (q *Bounded[T]) Drain(fn func(T)) int {
	n := 0
	for {
		item, ok := q.Pop()
		if !ok {
			return n
		}
		fn(item)
		n++
	}
}

// Len returns the number of queued items.
func (q *Bounded[T]) Len() int { return len(q.items) }

// Cap returns the queue capacity.
func (q *Bounded[T]) Cap() int { return cap(q.items) }

var timerPool sync.Pool

// getTimer returns a stopped-and-reset timer for d from the pool.
func getTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer)
		t.Reset(d)

		return t
	}

	return time.NewTimer(d)
}

// putTimer stops t, drains a pending tick and returns it to the pool.
func putTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}
