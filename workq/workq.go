// Package workq runs a slow preparation step for a sequence of items in
// parallel, and processes the results in the original order.
package workq

import (
	"sync"
)

type work[T, R any] struct {
	in  T
	out R
	err error

	slot  int
	ready bool
}

// Queue prepares items with a pool of goroutines. Items added to the queue are
// processed in order of addition, by the goroutine calling Add and Finish.
//
// E.g. for the corpus, reading a sample from the database is quick and must be
// done sequentially, but decompressing and decoding can be done concurrently.
type Queue[T, R any] struct {
	ring  []work[T, R]
	start int // Index in ring of oldest item.
	n     int // Items in ring, not all ready.

	wg   sync.WaitGroup
	todo chan work[T, R]
	done chan work[T, R]

	process func(T, R) error
}

// New starts procs goroutines that call prepare, with at most size items
// pending. Process is called for each item in order of Add, with the result
// of prepare. If prepare returns an error, it is returned by Add or Finish
// instead of calling process.
//
// Stop must be called to stop the goroutines.
func New[T, R any](procs, size int, prepare func(T) (R, error), process func(T, R) error) *Queue[T, R] {
	size = max(size, 1)
	q := &Queue[T, R]{
		ring: make([]work[T, R], size),
		// Buffered so sending never blocks, there are never more than size items.
		todo:    make(chan work[T, R], size),
		done:    make(chan work[T, R], size),
		process: process,
	}
	q.wg.Add(procs)
	for range procs {
		go func() {
			defer q.wg.Done()
			for w := range q.todo {
				w.out, w.err = prepare(w.in)
				w.ready = true
				q.done <- w
			}
		}()
	}
	return q
}

// Add schedules in for preparation. If the queue is full, Add first waits for
// the oldest item to be prepared, and processes all ready items at the head of
// the queue.
func (q *Queue[T, R]) Add(in T) error {
	if q.n == len(q.ring) {
		for {
			w := <-q.done
			q.ring[w.slot] = w
			if w.slot == q.start {
				break
			}
		}
		if err := q.processReady(); err != nil {
			return err
		}
	}
	q.todo <- work[T, R]{in: in, slot: (q.start + q.n) % len(q.ring)}
	q.n++
	return nil
}

func (q *Queue[T, R]) processReady() error {
	for q.n > 0 && q.ring[q.start].ready {
		w := q.ring[q.start]
		q.ring[q.start] = work[T, R]{}
		q.start = (q.start + 1) % len(q.ring)
		q.n--

		if w.err != nil {
			return w.err
		}
		if err := q.process(w.in, w.out); err != nil {
			return err
		}
	}
	return nil
}

// Finish waits for all pending items and processes them.
func (q *Queue[T, R]) Finish() error {
	for q.n > 0 {
		w := <-q.done
		q.ring[w.slot] = w
		if err := q.processReady(); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops the goroutines and waits for them to return. Items still pending
// are prepared but not processed.
func (q *Queue[T, R]) Stop() {
	close(q.todo)
	q.wg.Wait()
}
