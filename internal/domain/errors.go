package domain

import (
	"errors"
	"fmt"

	"github.com/graveldb/gravel/internal/event"
)

// Sentinel errors returned by lock acquisition and persistence.
var (
	// ErrLockTimeout reports that a lock was not acquired within the
	// caller's timeout. Nothing was mutated; the caller may re-issue the
	// operation.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrNoSnapshot reports a rollback request with no snapshot to restore
	// from. This escalates a transaction failure to a hard error: the
	// graph state after it is undefined.
	ErrNoSnapshot = errors.New("no snapshot available for rollback")

	// ErrDisposed reports an operation on a disposed domain.
	ErrDisposed = errors.New("domain disposed")
)

// FaultCode categorizes usage faults: programming errors that are reported
// immediately and never retried.
type FaultCode string

const (
	// FaultNoTransaction: a mutation API was called without an open
	// transaction.
	FaultNoTransaction FaultCode = "NO_TRANSACTION"

	// FaultTransactionClosed: a transaction handle was used after its
	// commit or rollback.
	FaultTransactionClosed FaultCode = "TRANSACTION_CLOSED"

	// FaultRecursiveLock: a goroutine that already holds the graph lock
	// requested it again (writer-then-writer, writer-then-reader, or
	// reader-then-writer).
	FaultRecursiveLock FaultCode = "RECURSIVE_LOCK"

	// FaultObjectDestroyed: a mutation targeted a destroyed object.
	FaultObjectDestroyed FaultCode = "OBJECT_DESTROYED"

	// FaultDoubleUnregister: an object id was unregistered twice.
	FaultDoubleUnregister FaultCode = "DOUBLE_UNREGISTER"

	// FaultWrongDomain: an object or transaction from a different domain
	// was passed in.
	FaultWrongDomain FaultCode = "WRONG_DOMAIN"

	// FaultIndexOutOfRange: a collection access with an invalid index.
	FaultIndexOutOfRange FaultCode = "INDEX_OUT_OF_RANGE"

	// FaultLostTimerEvents: a timer with the hard-error lost-event policy
	// missed one or more intervals.
	FaultLostTimerEvents FaultCode = "LOST_TIMER_EVENTS"
)

// Fault is a usage fault. Faults carry a machine-readable code and, when
// one is involved, the offending object id.
type Fault struct {
	Code    FaultCode
	Message string
	Object  event.ObjectID
}

func (f *Fault) Error() string {
	if f.Object != 0 || f.Code == FaultObjectDestroyed || f.Code == FaultDoubleUnregister {
		return fmt.Sprintf("%s: %s (object %d)", f.Code, f.Message, f.Object)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// IsFault reports whether err is a usage fault with the given code.
func IsFault(err error, code FaultCode) bool {
	var f *Fault
	return errors.As(err, &f) && f.Code == code
}

func faultf(code FaultCode, format string, args ...any) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...)}
}

func objectFault(code FaultCode, id event.ObjectID, format string, args ...any) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...), Object: id}
}
