package domain

import "time"

// Client observes a domain's transaction lifecycle. Clients form an ordered
// chain invoked in registration order: OnTransactionStart for every Begin,
// then OnTransactionCommit when the commit succeeds or OnTransactionFailure
// when it does not. The reference implementation is SnapshotClient, which
// persists the domain and restores it on failure.
//
// All hooks except OnDomainDisposed run with the write lock held; they may
// read the graph freely but must not start transactions.
type Client interface {
	// OnTransactionStart runs after Begin acquires the write lock and
	// before any mutation. Returning an error refuses the transaction.
	OnTransactionStart(d *Domain, at time.Time) error

	// OnTransactionCommit runs after the graph reached its post-commit
	// state. An error here is critical: the in-memory graph may disagree
	// with the last durable snapshot.
	OnTransactionCommit(sc *SuccessContext) error

	// OnTransactionFailure runs when a transaction aborts. A persistence
	// client must restore the last good snapshot here.
	OnTransactionFailure(d *Domain, errs []error) error

	// OnUnhandledException is consulted when application code panics
	// inside a mutation or post action. Returning true swallows the
	// panic value after logging; returning false records it as a
	// transaction error.
	OnUnhandledException(d *Domain, err error) (swallow bool)

	// OnDomainDisposed runs once, when the domain is disposed.
	OnDomainDisposed(d *Domain)
}

// Restorer is implemented by chain members able to roll the domain back. A
// failing transaction with no restore-capable client escalates to
// ErrNoSnapshot.
type Restorer interface {
	CanRestore() bool
}

// ManualSnapshotter is implemented by chain members that support on-demand
// snapshots, used by Domain.SnapshotNow and the manual-only skip policy.
type ManualSnapshotter interface {
	TakeSnapshot(d *Domain) error
}

// BaseClient is a no-op Client for embedding, so chain members implement
// only the hooks they care about.
type BaseClient struct{}

func (BaseClient) OnTransactionStart(*Domain, time.Time) error      { return nil }
func (BaseClient) OnTransactionCommit(*SuccessContext) error        { return nil }
func (BaseClient) OnTransactionFailure(*Domain, []error) error      { return nil }
func (BaseClient) OnUnhandledException(*Domain, error) bool         { return false }
func (BaseClient) OnDomainDisposed(*Domain)                         {}
