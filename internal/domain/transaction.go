package domain

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/graveldb/gravel/internal/event"
)

// ErrRolledBack marks a transaction aborted by an explicit Rollback call.
var ErrRolledBack = errors.New("transaction rolled back by caller")

// Command is an instruction issued during a transaction for external
// collaborators. Commands do not mutate the graph; they are delivered to
// registered command handlers after a successful commit, outside the lock.
type Command struct {
	Name string
	Args map[string]event.Value
}

// Result is the outcome of one commit attempt.
type Result struct {
	// Success reports whether the transaction committed.
	Success bool
	// Serial is the domain's transaction serial number after the
	// attempt. On failure the restored snapshot rewinds the domain's
	// serial; Serial then records the attempt number that failed.
	Serial uint32
	// CommitTime is the transaction clock reading used for the attempt.
	CommitTime time.Time
	// Events is the ordered list of emitted events (successful commits).
	Events []event.Event
	// Commands is the issued command list (successful commits).
	Commands []Command
	// NextDue is the earliest due time across active timed entities
	// after the commit, zero when none is scheduled. Hosts use it to
	// plan the next wake-up outside any transaction.
	NextDue time.Time
	// Errors lists everything that went wrong (failed attempts).
	Errors []error
	// Critical reports a client/persistence failure: the in-memory graph
	// may disagree with the last durable snapshot and callers should
	// escalate rather than retry.
	Critical bool
}

// Err returns the combined error of a failed attempt, nil on success.
func (r *Result) Err() error {
	if r.Success {
		return nil
	}
	return errors.Join(r.Errors...)
}

// SuccessContext is handed to commit hooks, command handlers, and post
// actions of a successfully committed transaction.
type SuccessContext struct {
	Domain *Domain
	Result *Result
}

// PostFunc is a post-commit action. Local post actions run after the write
// lock is released, on the committing goroutine; shared post actions run on
// the domain's sequential executor in submission order.
type PostFunc func(sc *SuccessContext) error

// Transaction is an ephemeral handle bound to the write lock. It exists
// only between Begin and Commit/Rollback and is never persisted. All
// mutation APIs take the transaction explicitly; there is no ambient
// "current transaction".
type Transaction struct {
	d          *Domain
	open       bool
	startTime  time.Time
	events     []event.Event
	commands   []Command
	errs       []error
	post       []PostFunc
	sharedPost []PostFunc
}

// StartTime returns the transaction's begin-time clock reading.
func (tx *Transaction) StartTime() time.Time {
	return tx.startTime
}

// Domain returns the owning domain.
func (tx *Transaction) Domain() *Domain {
	return tx.d
}

// Fail records err as a transaction error. The commit attempt will abort
// and roll back.
func (tx *Transaction) Fail(err error) {
	tx.fail(err)
}

// PushCommand issues a command for post-commit delivery.
func (tx *Transaction) PushCommand(name string, args map[string]event.Value) error {
	if !tx.open {
		return faultf(FaultTransactionClosed, "transaction is closed")
	}
	tx.commands = append(tx.commands, Command{Name: name, Args: args})
	return nil
}

// After schedules a local post action: it runs on the committing goroutine
// after the write lock is released, only if the commit succeeds.
func (tx *Transaction) After(fn PostFunc) {
	tx.post = append(tx.post, fn)
}

// AfterShared schedules a domain-wide post action: it runs on the domain's
// sequential executor, preserving submission order across transactions.
// Shared actions of a transaction are skipped, with a warning, when one of
// its local post actions fails.
func (tx *Transaction) AfterShared(fn PostFunc) {
	tx.sharedPost = append(tx.sharedPost, fn)
}

func (tx *Transaction) fail(err error) {
	tx.errs = append(tx.errs, err)
}

// guard validates that tx is usable for a mutation of domain d.
func (tx *Transaction) guard(d *Domain) error {
	if tx == nil {
		return faultf(FaultNoTransaction, "operation requires an active transaction")
	}
	if !tx.open {
		return faultf(FaultTransactionClosed, "transaction is closed")
	}
	if tx.d != d {
		return faultf(FaultWrongDomain, "transaction belongs to domain %q, object to %q", tx.d.name, d.name)
	}
	return nil
}

// emit appends the event describing a mutation about to be applied, then
// notifies the object's subscribers.
func (tx *Transaction) emit(b *objectBase, ev event.Event) {
	tx.events = append(tx.events, ev)
	b.notify(ev)
}

// intern resolves a property name, emitting the declaration event on first
// use so feed consumers learn the name-to-index binding before any record
// references it.
func (tx *Transaction) intern(name string) event.PropID {
	prop, fresh := tx.d.registry.Intern(name)
	if fresh {
		tx.events = append(tx.events, event.PropertyDeclared{Prop: prop, Name: name})
	}
	return prop
}

// Commit finalizes the transaction: the time manager advances with the
// transaction clock, the client chain persists (or restores) the domain,
// and the write lock is released. All failures are captured into the
// Result; the returned error is reserved for usage faults on the handle
// itself.
func (tx *Transaction) Commit() (*Result, error) {
	if !tx.open {
		return nil, faultf(FaultTransactionClosed, "transaction already committed or rolled back")
	}
	d := tx.d
	now := d.clock.Now().UTC()

	if len(tx.errs) == 0 {
		d.tm.advance(tx, now)
	}

	// Every attempt bumps the serial; a failure's rollback rewinds it
	// along with the rest of the restored snapshot.
	d.serial++

	res := &Result{Serial: d.serial, CommitTime: now}
	if len(tx.errs) == 0 {
		d.lastCommit = now
		res.Success = true
		res.Events = tx.events
		res.Commands = tx.commands
		if due, ok := d.tm.nextDue(); ok {
			res.NextDue = due
		}
		sc := &SuccessContext{Domain: d, Result: res}
		for _, c := range d.clients {
			if err := c.OnTransactionCommit(sc); err != nil {
				d.logger.Error("client commit hook failed",
					slog.Uint64("serial", uint64(res.Serial)),
					slog.Any("error", err))
				res.Success = false
				res.Critical = true
				tx.fail(fmt.Errorf("client commit hook: %w", err))
				break
			}
		}
	}

	if !res.Success {
		res.Events = nil
		res.Commands = nil
		res.Errors = tx.errs
		if err := d.rollback(tx.errs); err != nil {
			d.logger.Error("rollback failed", slog.Any("error", err))
			res.Critical = true
			res.Errors = append(res.Errors, err)
		}
	}

	tx.open = false
	d.lock.releaseWrite()

	if res.Success {
		d.afterCommit(tx, res)
	}
	return res, nil
}

// Rollback aborts the transaction and restores the last good snapshot.
func (tx *Transaction) Rollback() error {
	if !tx.open {
		return faultf(FaultTransactionClosed, "transaction already committed or rolled back")
	}
	tx.fail(ErrRolledBack)
	res, err := tx.Commit()
	if err != nil {
		return err
	}
	if res.Critical {
		return res.Err()
	}
	return nil
}
