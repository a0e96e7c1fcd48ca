package domain

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// graphLock is the per-domain reader-writer lock. It differs from
// sync.RWMutex in two ways the engine requires:
//
//   - every acquisition takes a timeout (negative means wait forever) and
//     returns ErrLockTimeout instead of blocking past it, and
//   - recursive acquisition is detected per goroutine and reported as a
//     usage fault: writer-then-writer, writer-then-reader, and
//     reader-then-writer all fail immediately. Nested read acquisitions by
//     the same goroutine are permitted and counted.
//
// Detection keys on goroutine ids, which matches the supported usage: a
// transaction is driven to completion on the goroutine that began it.
type graphLock struct {
	mu      sync.Mutex
	gate    chan struct{} // closed and replaced on every release
	writer  int64         // goroutine holding the write lock, 0 if none
	readers map[int64]int // read-lock hold counts per goroutine
}

func newGraphLock() *graphLock {
	return &graphLock{
		gate:    make(chan struct{}),
		readers: make(map[int64]int),
	}
}

// acquireWrite blocks until the write lock is free or the timeout elapses.
func (l *graphLock) acquireWrite(timeout time.Duration) error {
	gid := goid()
	deadline := newDeadline(timeout)
	for {
		l.mu.Lock()
		if l.writer == gid {
			l.mu.Unlock()
			return faultf(FaultRecursiveLock, "goroutine already holds the write lock")
		}
		if l.readers[gid] > 0 {
			l.mu.Unlock()
			return faultf(FaultRecursiveLock, "goroutine holds a read lock; upgrading is not allowed")
		}
		if l.writer == 0 && len(l.readers) == 0 {
			l.writer = gid
			l.mu.Unlock()
			return nil
		}
		gate := l.gate
		l.mu.Unlock()

		if err := deadline.wait(gate); err != nil {
			return err
		}
	}
}

// acquireRead blocks until no writer holds the lock or the timeout elapses.
func (l *graphLock) acquireRead(timeout time.Duration) error {
	gid := goid()
	deadline := newDeadline(timeout)
	for {
		l.mu.Lock()
		if l.writer == gid {
			l.mu.Unlock()
			return faultf(FaultRecursiveLock, "goroutine holds the write lock; downgrading is not allowed")
		}
		if l.writer == 0 {
			l.readers[gid]++
			l.mu.Unlock()
			return nil
		}
		gate := l.gate
		l.mu.Unlock()

		if err := deadline.wait(gate); err != nil {
			return err
		}
	}
}

func (l *graphLock) releaseWrite() {
	l.mu.Lock()
	l.writer = 0
	l.wake()
	l.mu.Unlock()
}

func (l *graphLock) releaseRead() {
	gid := goid()
	l.mu.Lock()
	if n := l.readers[gid]; n > 1 {
		l.readers[gid] = n - 1
	} else {
		delete(l.readers, gid)
	}
	l.wake()
	l.mu.Unlock()
}

// heldByCurrent reports whether the calling goroutine holds the lock in any
// mode. Save uses it to reuse an already-held lock from inside a
// transaction instead of deadlocking on re-acquisition.
func (l *graphLock) heldByCurrent() bool {
	gid := goid()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writer == gid || l.readers[gid] > 0
}

// wake releases every waiter. Called with mu held.
func (l *graphLock) wake() {
	close(l.gate)
	l.gate = make(chan struct{})
}

// deadline tracks the remaining wait budget across retries of the acquire
// loop. A negative timeout waits forever; zero polls exactly once.
type deadline struct {
	infinite bool
	at       time.Time
}

func newDeadline(timeout time.Duration) deadline {
	if timeout < 0 {
		return deadline{infinite: true}
	}
	return deadline{at: time.Now().Add(timeout)}
}

func (d deadline) wait(gate <-chan struct{}) error {
	if d.infinite {
		<-gate
		return nil
	}
	remaining := time.Until(d.at)
	if remaining <= 0 {
		return ErrLockTimeout
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-gate:
		return nil
	case <-timer.C:
		return ErrLockTimeout
	}
}

// goid returns the current goroutine's id, parsed from the stack header.
// It is the identity the recursion detector keys on.
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// Header shape: "goroutine 123 [running]:"
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return -1
	}
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
