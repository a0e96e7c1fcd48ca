package domain

import (
	"time"

	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/wire"
)

// Timed entity discriminators in the snapshot's timed-entity list.
const (
	timedKindTimer    uint8 = 1
	timedKindReminder uint8 = 2
)

// ReminderFunc is raised once when a reminder comes due. It runs inside the
// committing transaction.
type ReminderFunc func(tx *Transaction, scheduled, now time.Time) error

// Reminder is a one-shot timed entity. Pooled reminders return to the
// domain's pool after firing and are reused by RemindAt; the pool is
// trimmed by garbage collection when more than half of it sits unused and
// it exceeds poolTrimThreshold entries.
type Reminder struct {
	objectBase
	timedState
	pooled   bool
	inUse    bool
	elapsed  []ReminderFunc
}

func (r *Reminder) Capability() Capability { return CapTimed }

// Kind returns event.KindPlain; timed entities have no feed shape.
func (r *Reminder) Kind() event.Kind { return event.KindPlain }

// Pooled reports whether the reminder returns to the pool after firing.
func (r *Reminder) Pooled() bool { return r.pooled }

// schedule arms the reminder. Used by Domain.RemindAt for both fresh and
// pool-recycled instances.
func (r *Reminder) schedule(due time.Time, fn ReminderFunc) {
	r.due = due
	r.elapsed = append(r.elapsed[:0], fn)
	r.inUse = true
	r.d.tm.insert(&r.timedState)
}

// fire raises the callbacks once, deactivates, and recycles the instance if
// it is pooled.
func (r *Reminder) fire(tx *Transaction, now time.Time) error {
	scheduled := r.due
	for _, fn := range r.elapsed {
		if err := fn(tx, scheduled, now); err != nil {
			tx.fail(err)
		}
	}
	r.elapsed = r.elapsed[:0]
	r.inUse = false
	if r.pooled {
		r.d.tm.releaseReminder(r)
	}
	return nil
}

// Destroy destroys the reminder and recycles its id.
func (r *Reminder) Destroy(tx *Transaction) error {
	return destroyObject(tx, r)
}

func (r *Reminder) timed() *timedState { return &r.timedState }

func (r *Reminder) detach() {
	r.d.removeRoot(r.id)
	r.d.tm.remove(&r.timedState)
	if r.pooled {
		r.d.tm.forgetPooled(r)
	}
}

func (r *Reminder) encode(w *wire.Writer, _ func(event.ObjectID)) {
	w.U8(timedKindReminder)
	w.I32(int32(r.id))
	w.Bool(r.pooled)
	w.Bool(r.inUse)
	w.Bool(r.active)
	w.Time(r.due)
}

// decode reads the payload written by encode and reports whether the
// reminder was active at save time.
func (r *Reminder) decode(rd *wire.Reader) (wasActive bool) {
	r.pooled = rd.Bool()
	r.inUse = rd.Bool()
	wasActive = rd.Bool()
	r.due = rd.Time()
	return wasActive
}
