package domain

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/graveldb/gravel/internal/event"
)

// Domain is the object-graph container and transaction boundary. It owns
// the object identity table, the property-name registry, the declared root
// list, the internal-object list, the time manager, and the client chain.
//
// Thread-safety model:
//   - Begin/Modify: write lock, at most one at a time
//   - Read/Save/Export: shared read lock
//   - post actions and command handlers: after lock release
//
// The table, free list, root list, and active timed list are mutated only
// by the goroutine holding the write lock and are read-only under a read
// lock.
type Domain struct {
	name       string
	logger     *slog.Logger
	clock      Clock
	secret     [16]byte
	uniquifier uint32
	serial     uint32
	lastCommit time.Time

	registry *event.Registry
	table    table
	roots    []event.ObjectID

	internalHead *Internal
	internalTail *Internal
	internals    int

	tm timeManager

	lock   *graphLock
	saveMu sync.Mutex

	clients         []Client
	commandHandlers []CommandHandler
	postQ           *postQueue
	sidekick        SidekickProvider

	disposed        bool
	lostCache       *LostObjectTracker
	runningOverride *bool
}

// CommandHandler receives the committed command list after the write lock
// is released.
type CommandHandler func(sc *SuccessContext, commands []Command)

// SidekickProvider contributes opaque collaborator state to the snapshot's
// sidekick section and restores it on load.
type SidekickProvider interface {
	SidekickState() []byte
	RestoreSidekickState(state []byte) error
}

// Option configures a Domain at construction.
type Option func(*Domain)

// WithLogger sets the structured logger. The domain scopes it with its
// name.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Domain) {
		d.logger = logger
	}
}

// WithClock sets the transaction clock. The default reads the wall clock;
// tests install a deterministic one.
func WithClock(c Clock) Option {
	return func(d *Domain) {
		d.clock = c
	}
}

// WithClient appends a client to the chain. Chain order is invocation
// order.
func WithClient(c Client) Option {
	return func(d *Domain) {
		d.clients = append(d.clients, c)
	}
}

// WithSecret fixes the domain secret instead of generating a random one.
// The secret scopes external references and must stay stable across
// reloads.
func WithSecret(secret [16]byte) Option {
	return func(d *Domain) {
		d.secret = secret
	}
}

// WithLostEventPolicy sets the default lost-event policy applied to new
// timers.
func WithLostEventPolicy(p LostEventPolicy) Option {
	return func(d *Domain) {
		d.tm.lostPolicy = p
	}
}

// WithTimeKeeping sets whether the time manager starts running. Loading a
// snapshot restores the saved flag unless this option overrides it.
func WithTimeKeeping(running bool) Option {
	return func(d *Domain) {
		d.tm.running = running
		r := running
		d.runningOverride = &r
	}
}

// WithSidekick registers the snapshot sidekick-state provider.
func WithSidekick(p SidekickProvider) Option {
	return func(d *Domain) {
		d.sidekick = p
	}
}

// New creates an empty domain. The secret defaults to 16 random bytes and
// stays stable across save/load cycles.
func New(name string, opts ...Option) *Domain {
	d := &Domain{
		name:     name,
		logger:   slog.Default(),
		clock:    SystemClock{},
		registry: event.NewRegistry(),
		secret:   [16]byte(uuid.New()),
		lock:     newGraphLock(),
		postQ:    newPostQueue(),
	}
	d.tm.running = true
	d.tm.lostPolicy = LostNotify
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(slog.String("domain", name))
	return d
}

// Name returns the domain name.
func (d *Domain) Name() string { return d.name }

// Serial returns the transaction serial number: monotonic within a
// snapshot epoch, bumped by every commit attempt, rewound by rollback.
func (d *Domain) Serial() uint32 { return d.serial }

// LastCommitTime returns the clock reading of the last successful commit.
func (d *Domain) LastCommitTime() time.Time { return d.lastCommit }

// Len returns the number of live tracked objects.
func (d *Domain) Len() int { return d.table.live }

// Object resolves a tracked object by id. Destroyed and never-assigned ids
// yield nil.
func (d *Domain) Object(id event.ObjectID) Object {
	return d.table.resolve(id)
}

// HandleCommands registers a handler for committed command lists.
func (d *Domain) HandleCommands(h CommandHandler) {
	d.commandHandlers = append(d.commandHandlers, h)
}

// Begin opens a transaction: it acquires the write lock (ErrLockTimeout
// past the timeout; negative waits forever), then runs every client's
// OnTransactionStart hook. Requesting a second Begin, or any lock, from a
// goroutine already holding one is a usage fault, not a wait.
func (d *Domain) Begin(timeout time.Duration) (*Transaction, error) {
	if err := d.lock.acquireWrite(timeout); err != nil {
		return nil, err
	}
	if d.disposed {
		d.lock.releaseWrite()
		return nil, ErrDisposed
	}
	now := d.clock.Now().UTC()
	tx := &Transaction{d: d, open: true, startTime: now}
	for _, c := range d.clients {
		if err := c.OnTransactionStart(d, now); err != nil {
			d.lock.releaseWrite()
			return nil, fmt.Errorf("client refused transaction start: %w", err)
		}
	}
	return tx, nil
}

// Modify is the safe mutation helper: it never raises to the caller. Lock
// timeouts, mutation errors, panics in fn, and client failures are all
// captured into the Result.
func (d *Domain) Modify(timeout time.Duration, fn func(tx *Transaction) error) *Result {
	tx, err := d.Begin(timeout)
	if err != nil {
		return &Result{Errors: []error{err}}
	}
	func() {
		defer func() {
			if p := recover(); p != nil {
				perr := fmt.Errorf("panic in mutation code: %v", p)
				if d.swallowUnhandled(perr) {
					d.logger.Warn("panic swallowed by client chain", slog.Any("error", perr))
					return
				}
				tx.fail(perr)
			}
		}()
		if err := fn(tx); err != nil {
			tx.fail(err)
		}
	}()
	res, err := tx.Commit()
	if err != nil {
		return &Result{Errors: []error{err}}
	}
	return res
}

// MustModify is the strict variant of Modify: failed attempts additionally
// return their combined error.
func (d *Domain) MustModify(timeout time.Duration, fn func(tx *Transaction) error) (*Result, error) {
	res := d.Modify(timeout, fn)
	return res, res.Err()
}

// Read runs fn under a shared read lock. Concurrent readers are allowed;
// readers never observe a transaction mid-commit. Mutating from fn is a
// usage fault (mutation APIs demand a transaction handle).
func (d *Domain) Read(timeout time.Duration, fn func() error) error {
	if err := d.lock.acquireRead(timeout); err != nil {
		return err
	}
	defer d.lock.releaseRead()
	if d.disposed {
		return ErrDisposed
	}
	return fn()
}

// NextDue returns the earliest due time across active timed entities, for
// scheduling the next host wake-up outside any transaction.
func (d *Domain) NextDue(timeout time.Duration) (due time.Time, ok bool, err error) {
	err = d.Read(timeout, func() error {
		due, ok = d.tm.nextDue()
		return nil
	})
	return due, ok, err
}

// CreatePlain creates and registers a plain observable object.
func (d *Domain) CreatePlain(tx *Transaction) (*Plain, error) {
	obj := &Plain{props: make(map[event.PropID]event.Value)}
	if err := d.create(tx, obj, &obj.objectBase, obj.Kind()); err != nil {
		return nil, err
	}
	return obj, nil
}

// CreateArray creates and registers an observable array.
func (d *Domain) CreateArray(tx *Transaction) (*Array, error) {
	obj := &Array{}
	if err := d.create(tx, obj, &obj.objectBase, obj.Kind()); err != nil {
		return nil, err
	}
	return obj, nil
}

// CreateMap creates and registers an observable map.
func (d *Domain) CreateMap(tx *Transaction) (*Map, error) {
	obj := &Map{entries: make(map[event.PropID]event.Value)}
	if err := d.create(tx, obj, &obj.objectBase, obj.Kind()); err != nil {
		return nil, err
	}
	return obj, nil
}

// CreateSet creates and registers an observable set.
func (d *Domain) CreateSet(tx *Transaction) (*Set, error) {
	obj := &Set{}
	if err := d.create(tx, obj, &obj.objectBase, obj.Kind()); err != nil {
		return nil, err
	}
	return obj, nil
}

// CreateInternal creates a non-exported tracked object and links it into
// the internal-object list.
func (d *Domain) CreateInternal(tx *Transaction) (*Internal, error) {
	if err := tx.guard(d); err != nil {
		return nil, err
	}
	obj := &Internal{props: make(map[event.PropID]event.Value)}
	obj.d = d
	obj.id = d.table.register(obj)
	d.uniquifier++
	d.linkInternal(obj)
	return obj, nil
}

// CreateTimer creates a repeating timer. The timer stays idle until its
// first Elapsed callback is registered.
func (d *Domain) CreateTimer(tx *Transaction, anchor time.Time, interval time.Duration) (*Timer, error) {
	if err := tx.guard(d); err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("timer interval must be positive, got %v", interval)
	}
	t := &Timer{anchor: anchor.UTC(), interval: interval, policy: d.tm.lostPolicy}
	t.d = d
	t.id = d.table.register(t)
	d.uniquifier++
	t.timedState.owner = t
	return t, nil
}

// RemindAt schedules a one-shot reminder for due, reusing a pooled
// instance when one is free.
func (d *Domain) RemindAt(tx *Transaction, due time.Time, fn ReminderFunc) (*Reminder, error) {
	if err := tx.guard(d); err != nil {
		return nil, err
	}
	r, ok := d.tm.takeReminder()
	if !ok {
		r = &Reminder{pooled: true}
		r.d = d
		r.id = d.table.register(r)
		d.uniquifier++
		r.timedState.owner = r
		d.tm.poolTotal++
	}
	r.schedule(due.UTC(), fn)
	return r, nil
}

// DeclareRoot adds obj to the declared roots, the starting points of
// reachability analysis. Declaring an existing root is a no-op.
func (d *Domain) DeclareRoot(tx *Transaction, obj Object) error {
	if err := obj.base().guard(tx); err != nil {
		return err
	}
	if obj.base().d != d {
		return faultf(FaultWrongDomain, "object belongs to a different domain")
	}
	for _, id := range d.roots {
		if id == obj.ID() {
			return nil
		}
	}
	d.roots = append(d.roots, obj.ID())
	return nil
}

// RemoveRoot removes obj from the declared roots.
func (d *Domain) RemoveRoot(tx *Transaction, obj Object) error {
	if err := obj.base().guard(tx); err != nil {
		return err
	}
	d.removeRoot(obj.ID())
	return nil
}

// Roots returns the declared root objects in declaration order.
func (d *Domain) Roots() []Object {
	out := make([]Object, 0, len(d.roots))
	for _, id := range d.roots {
		if obj := d.table.resolve(id); obj != nil {
			out = append(out, obj)
		}
	}
	return out
}

// Dispose shuts the domain down: the client chain is notified, further
// transactions are refused, and the shared post-action executor drains.
func (d *Domain) Dispose(timeout time.Duration) error {
	if err := d.lock.acquireWrite(timeout); err != nil {
		return err
	}
	if d.disposed {
		d.lock.releaseWrite()
		return ErrDisposed
	}
	d.disposed = true
	for _, c := range d.clients {
		c.OnDomainDisposed(d)
	}
	d.lock.releaseWrite()
	d.postQ.close()
	return nil
}

// create registers an observable object and emits its creation event.
func (d *Domain) create(tx *Transaction, obj Object, b *objectBase, kind event.Kind) error {
	if err := tx.guard(d); err != nil {
		return err
	}
	b.d = d
	b.id = d.table.register(obj)
	d.uniquifier++
	tx.emit(b, event.Created{ID: b.id, Kind: kind})
	return nil
}

// destroyObject is the shared destruction path: emit (observables), detach
// from every traversal structure, flag, and recycle the id.
func destroyObject(tx *Transaction, obj Object) error {
	b := obj.base()
	if err := b.guard(tx); err != nil {
		return err
	}
	ev := event.Destroyed{ID: b.id}
	if obj.Capability() == CapObservable {
		tx.emit(b, ev)
	} else {
		b.notify(ev)
	}
	obj.detach()
	b.destroyed = true
	return b.d.table.unregister(b.id)
}

// rollback drives the failure hooks. Without a restore-capable client the
// graph cannot be rewound and the failure escalates to ErrNoSnapshot.
func (d *Domain) rollback(errs []error) error {
	restorable := false
	for _, c := range d.clients {
		if r, ok := c.(Restorer); ok && r.CanRestore() {
			restorable = true
			break
		}
	}
	if !restorable {
		return ErrNoSnapshot
	}
	var failures []error
	for _, c := range d.clients {
		if err := c.OnTransactionFailure(d, errs); err != nil {
			failures = append(failures, err)
		}
	}
	d.lostCache = nil
	return errors.Join(failures...)
}

// afterCommit runs the post phase outside the lock.
func (d *Domain) afterCommit(tx *Transaction, res *Result) {
	sc := &SuccessContext{Domain: d, Result: res}
	if len(res.Commands) > 0 {
		for _, h := range d.commandHandlers {
			h(sc, res.Commands)
		}
	}

	localFailed := false
	for _, fn := range tx.post {
		if err := d.runPost(sc, fn); err != nil {
			localFailed = true
			d.logger.Error("post action failed",
				slog.Uint64("serial", uint64(res.Serial)),
				slog.Any("error", err))
		}
	}

	if len(tx.sharedPost) == 0 {
		return
	}
	if localFailed {
		// A committed transaction is never rolled back by a post-action
		// failure, but its shared actions are skipped.
		d.logger.Warn("skipping shared post actions after local post-action failure",
			slog.Uint64("serial", uint64(res.Serial)),
			slog.Int("skipped", len(tx.sharedPost)))
		return
	}
	for _, fn := range tx.sharedPost {
		fn := fn
		ok := d.postQ.enqueue(func() {
			if err := d.runPost(sc, fn); err != nil {
				d.logger.Error("shared post action failed",
					slog.Uint64("serial", uint64(res.Serial)),
					slog.Any("error", err))
			}
		})
		if !ok {
			d.logger.Warn("domain disposed, shared post action dropped",
				slog.Uint64("serial", uint64(res.Serial)))
		}
	}
}

func (d *Domain) runPost(sc *SuccessContext, fn PostFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			perr := fmt.Errorf("panic in post action: %v", p)
			if d.swallowUnhandled(perr) {
				err = nil
				return
			}
			err = perr
		}
	}()
	return fn(sc)
}

// swallowUnhandled asks the client chain whether to swallow a panic-derived
// error. The first client to say yes wins.
func (d *Domain) swallowUnhandled(err error) bool {
	for _, c := range d.clients {
		if c.OnUnhandledException(d, err) {
			return true
		}
	}
	return false
}

func (d *Domain) linkInternal(obj *Internal) {
	if d.internalTail == nil {
		d.internalHead, d.internalTail = obj, obj
	} else {
		obj.prev = d.internalTail
		d.internalTail.next = obj
		d.internalTail = obj
	}
	d.internals++
}

func (d *Domain) unlinkInternal(obj *Internal) {
	if obj.prev != nil {
		obj.prev.next = obj.next
	} else if d.internalHead == obj {
		d.internalHead = obj.next
	} else {
		return // not linked
	}
	if obj.next != nil {
		obj.next.prev = obj.prev
	} else {
		d.internalTail = obj.prev
	}
	obj.prev, obj.next = nil, nil
	d.internals--
}

func (d *Domain) removeRoot(id event.ObjectID) {
	for i, r := range d.roots {
		if r == id {
			d.roots = append(d.roots[:i], d.roots[i+1:]...)
			return
		}
	}
}
