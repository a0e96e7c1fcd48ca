package domain

import (
	"log/slog"
	"time"

	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/wire"
)

// TimerFunc is raised when a timer elapses. scheduled is the due time the
// timer was expected at; now is the committing transaction's clock reading
// (later than scheduled when the host checks in late). Callbacks run inside
// the committing transaction and may mutate the graph.
type TimerFunc func(tx *Transaction, scheduled, now time.Time) error

// LostFunc is raised once per late check-in when a timer with the
// LostNotify policy missed whole intervals; missed reports how many.
type LostFunc func(tx *Transaction, missed int64)

// Timer is a repeating timed entity firing at anchor, anchor+interval,
// anchor+2*interval, ... A timer is active (present in the manager's
// ordered active list) only while it has at least one elapsed callback and
// a valid due time.
type Timer struct {
	objectBase
	timedState
	anchor    time.Time
	interval  time.Duration
	policy    LostEventPolicy
	elapsed   []TimerFunc
	lost      LostFunc
	stopped   bool
}

func (t *Timer) Capability() Capability { return CapTimed }

// Kind returns event.KindPlain; timed entities have no feed shape.
func (t *Timer) Kind() event.Kind { return event.KindPlain }

// Anchor returns the due-time anchor.
func (t *Timer) Anchor() time.Time { return t.anchor }

// Interval returns the firing interval.
func (t *Timer) Interval() time.Duration { return t.interval }

// Elapsed registers a callback. The first registration activates the timer
// (unless it is stopped), scheduling the first due time strictly after the
// domain's last commit time.
func (t *Timer) Elapsed(tx *Transaction, fn TimerFunc) error {
	if err := t.guard(tx); err != nil {
		return err
	}
	t.elapsed = append(t.elapsed, fn)
	t.activate(tx)
	return nil
}

// OnLost registers the lost-events callback used by the LostNotify policy.
func (t *Timer) OnLost(tx *Transaction, fn LostFunc) error {
	if err := t.guard(tx); err != nil {
		return err
	}
	t.lost = fn
	return nil
}

// SetLostEventPolicy overrides the manager's default policy for this timer.
func (t *Timer) SetLostEventPolicy(tx *Transaction, p LostEventPolicy) error {
	if err := t.guard(tx); err != nil {
		return err
	}
	t.policy = p
	return nil
}

// Stop deactivates the timer without destroying it.
func (t *Timer) Stop(tx *Transaction) error {
	if err := t.guard(tx); err != nil {
		return err
	}
	t.stopped = true
	t.d.tm.remove(&t.timedState)
	return nil
}

// Start re-activates a stopped timer, realigning its due time.
func (t *Timer) Start(tx *Transaction) error {
	if err := t.guard(tx); err != nil {
		return err
	}
	t.stopped = false
	t.activate(tx)
	return nil
}

// activate inserts the timer into the active list when it is eligible.
func (t *Timer) activate(tx *Transaction) {
	if t.active || t.stopped || len(t.elapsed) == 0 || t.interval <= 0 {
		return
	}
	// First due strictly after the last commit; a fresh domain anchors on
	// the transaction start.
	ref := t.d.lastCommit
	if ref.IsZero() {
		ref = tx.startTime
	}
	if !t.anchor.After(ref) {
		t.due = nextTimerDue(t.anchor, t.interval, ref)
	} else {
		t.due = t.anchor
	}
	t.d.tm.insert(&t.timedState)
}

// fire raises the elapsed callbacks, handles missed intervals per policy,
// realigns the due time, and reschedules.
func (t *Timer) fire(tx *Transaction, now time.Time) error {
	scheduled := t.due
	for _, fn := range t.elapsed {
		if err := fn(tx, scheduled, now); err != nil {
			tx.fail(err)
		}
	}

	// Whole intervals between the scheduled firing and now were lost.
	missed := int64(0)
	if t.interval > 0 {
		missed = int64(now.Sub(scheduled) / t.interval)
	}
	if missed > 0 {
		switch t.policy {
		case LostIgnore:
			t.d.logger.Warn("timer missed intervals",
				slog.Int64("object", int64(t.id)),
				slog.Int64("missed", missed))
		case LostNotify:
			t.d.logger.Warn("timer missed intervals",
				slog.Int64("object", int64(t.id)),
				slog.Int64("missed", missed))
			if t.lost != nil {
				t.lost(tx, missed)
			}
		case LostError:
			return objectFault(FaultLostTimerEvents, t.id, "timer missed %d interval(s)", missed)
		}
	}

	if !t.stopped && len(t.elapsed) > 0 {
		t.due = nextTimerDue(t.anchor, t.interval, now)
		t.d.tm.insert(&t.timedState)
	}
	return nil
}

// Destroy destroys the timer and recycles its id.
func (t *Timer) Destroy(tx *Transaction) error {
	return destroyObject(tx, t)
}

func (t *Timer) timed() *timedState { return &t.timedState }

func (t *Timer) detach() {
	t.d.removeRoot(t.id)
	t.d.tm.remove(&t.timedState)
}

func (t *Timer) encode(w *wire.Writer, _ func(event.ObjectID)) {
	w.U8(timedKindTimer)
	w.I32(int32(t.id))
	w.Time(t.anchor)
	w.I64(int64(t.interval))
	w.U8(uint8(t.policy))
	w.Bool(t.stopped)
	w.Bool(t.active)
	w.Time(t.due)
}

// decode reads the payload written by encode and reports whether the timer
// was active at save time; the loader re-links active entities itself.
func (t *Timer) decode(r *wire.Reader) (wasActive bool) {
	t.anchor = r.Time()
	t.interval = time.Duration(r.I64())
	t.policy = LostEventPolicy(r.U8())
	t.stopped = r.Bool()
	wasActive = r.Bool()
	t.due = r.Time()
	return wasActive
}
