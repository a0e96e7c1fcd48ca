package domain

import (
	"time"
)

// LostEventPolicy selects how a timer reports wake-ups it missed because no
// transaction committed during one or more whole intervals.
type LostEventPolicy uint8

const (
	// LostIgnore logs a warning and realigns silently.
	LostIgnore LostEventPolicy = iota
	// LostNotify produces exactly one lost-events notification reporting
	// the number of missed intervals, then realigns. The default.
	LostNotify
	// LostError records a usage fault on the committing transaction,
	// aborting it.
	LostError
)

// timedEntity is implemented by Timer and Reminder.
type timedEntity interface {
	Object
	timed() *timedState
	// fire raises the entity's callbacks at the transaction clock reading
	// now. The entity has already been detached from the active list.
	fire(tx *Transaction, now time.Time) error
}

// timedState is the scheduling state shared by timers and reminders: the
// expected UTC due time, the active flag, and the links for the manager's
// active list.
type timedState struct {
	owner      timedEntity
	due        time.Time
	active     bool
	prev, next *timedState
}

// Due returns the expected UTC due time, zero when unscheduled.
func (s *timedState) Due() time.Time { return s.due }

// Active reports whether the entity sits in the active list.
func (s *timedState) Active() bool { return s.active }

// timeManager owns the ordered active list of timed entities and the
// reminder pool. It advances on each transaction commit using the
// transaction's clock reading, never the wall clock.
//
// The active list is doubly linked and always sorted ascending by due time;
// entities with equal due times fire in insertion order.
type timeManager struct {
	head, tail *timedState
	count      int
	running    bool
	pool       []*Reminder // inactive pooled reminders, ready for reuse
	poolTotal  int         // pooled reminders, in use or not
	lostPolicy LostEventPolicy
}

// poolTrimThreshold is the pool size above which garbage collection trims
// unused reminders when more than half the pool is idle.
const poolTrimThreshold = 8

// insert links s into the active list, after any entry with an equal due
// time.
func (tm *timeManager) insert(s *timedState) {
	s.active = true
	tm.count++
	if tm.head == nil {
		tm.head, tm.tail = s, s
		return
	}
	// Walk from the tail: commits schedule mostly near-future entries.
	at := tm.tail
	for at != nil && at.due.After(s.due) {
		at = at.prev
	}
	if at == nil {
		s.next = tm.head
		tm.head.prev = s
		tm.head = s
		return
	}
	s.prev = at
	s.next = at.next
	if at.next != nil {
		at.next.prev = s
	} else {
		tm.tail = s
	}
	at.next = s
}

// remove unlinks s from the active list.
func (tm *timeManager) remove(s *timedState) {
	if !s.active {
		return
	}
	s.active = false
	tm.count--
	if s.prev != nil {
		s.prev.next = s.next
	} else {
		tm.head = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	} else {
		tm.tail = s.prev
	}
	s.prev, s.next = nil, nil
}

// nextDue returns the earliest due time across active entities. The host
// uses it to schedule its next wake-up outside any transaction.
func (tm *timeManager) nextDue() (time.Time, bool) {
	if !tm.running || tm.head == nil {
		return time.Time{}, false
	}
	return tm.head.due, true
}

// advance raises every active entity whose due time is at or before now, in
// ascending due-time order. Raised callbacks run inside tx and may mutate
// the graph or schedule further entities; entities scheduled at or before
// now by a callback fire within the same advance.
func (tm *timeManager) advance(tx *Transaction, now time.Time) {
	if !tm.running {
		return
	}
	for tm.head != nil && !tm.head.due.After(now) {
		s := tm.head
		tm.remove(s)
		if err := s.owner.fire(tx, now); err != nil {
			tx.fail(err)
		}
	}
}

// takeReminder reuses a pooled reminder or reports that none is available.
func (tm *timeManager) takeReminder() (*Reminder, bool) {
	if len(tm.pool) == 0 {
		return nil, false
	}
	r := tm.pool[len(tm.pool)-1]
	tm.pool = tm.pool[:len(tm.pool)-1]
	return r, true
}

// releaseReminder returns a pooled reminder after it fired.
func (tm *timeManager) releaseReminder(r *Reminder) {
	tm.pool = append(tm.pool, r)
}

// poolStats returns total pooled reminders and how many sit unused.
func (tm *timeManager) poolStats() (total, unused int) {
	return tm.poolTotal, len(tm.pool)
}

// forgetPooled drops r from the pool bookkeeping, used when a pooled
// reminder is destroyed.
func (tm *timeManager) forgetPooled(r *Reminder) {
	for i, p := range tm.pool {
		if p == r {
			tm.pool = append(tm.pool[:i], tm.pool[i+1:]...)
			break
		}
	}
	tm.poolTotal--
}

// entities returns the active list in order, for serialization.
func (tm *timeManager) entities() []timedEntity {
	out := make([]timedEntity, 0, tm.count)
	for s := tm.head; s != nil; s = s.next {
		out = append(out, s.owner)
	}
	return out
}

// nextTimerDue returns the smallest anchor+k*interval strictly after now,
// with k a non-negative integer. This is the realignment rule every timer
// follows after firing or missing intervals.
func nextTimerDue(anchor time.Time, interval time.Duration, now time.Time) time.Time {
	if interval <= 0 {
		return time.Time{}
	}
	if now.Before(anchor) {
		return anchor
	}
	elapsed := now.Sub(anchor)
	k := elapsed/interval + 1
	return anchor.Add(k * interval)
}
