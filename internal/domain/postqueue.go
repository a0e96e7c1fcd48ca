package domain

import "sync"

// postQueue is the sequential executor for domain-wide post actions. Jobs
// run on a single goroutine in submission order, so cross-transaction
// ordering is preserved even though transactions' local post actions may
// run concurrently with each other on their committing goroutines.
//
// The queue is unbounded: enqueuing never blocks a committing goroutine.
type postQueue struct {
	mu     sync.Mutex
	jobs   []func()
	closed bool
	signal chan struct{} // buffered size 1; coalesces wake-ups
	done   chan struct{}
}

func newPostQueue() *postQueue {
	q := &postQueue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// enqueue appends a job. Returns false if the queue is closed.
func (q *postQueue) enqueue(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.jobs = append(q.jobs, fn)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// close stops intake and waits for queued jobs to drain.
func (q *postQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	<-q.done
}

func (q *postQueue) run() {
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			if q.closed {
				q.mu.Unlock()
				close(q.done)
				return
			}
			q.mu.Unlock()
			<-q.signal
			continue
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		job()
	}
}
