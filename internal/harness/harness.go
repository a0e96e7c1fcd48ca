package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/graveldb/gravel/internal/domain"
	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/feed"
	"github.com/graveldb/gravel/internal/testutil"
	"github.com/graveldb/gravel/internal/wire"
)

// stepTimeout bounds each transaction. Scenarios are single-threaded, so a
// timeout here means a bug in the runner, not contention.
const stepTimeout = 5 * time.Second

// errAborted is the injected failure behind a TxStep's Abort flag.
var errAborted = errors.New("aborted by scenario")

// Outcome is the result of running one scenario.
type Outcome struct {
	// Pass reports whether every expectation and assertion held.
	Pass bool
	// Trace holds the feed document of every committed transaction, in
	// commit order. Failed transactions leave no trace, matching the
	// feed protocol's consecutive-numbering contract.
	Trace []*feed.Document
	// Errors lists everything that did not hold. Empty when Pass.
	Errors []string
}

// fail records a scenario failure.
func (o *Outcome) fail(format string, args ...any) {
	o.Errors = append(o.Errors, fmt.Sprintf(format, args...))
	o.Pass = false
}

// Run executes a scenario against a fresh domain with a deterministic clock
// and secret, so two runs of the same scenario produce identical traces.
func Run(s *Scenario) (*Outcome, error) {
	d := domain.New(s.Domain,
		domain.WithClock(testutil.NewManualClock()),
		domain.WithSecret(testutil.Secret),
		domain.WithClient(domain.NewSnapshotClient(0, wire.CompressionNone)),
		domain.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer d.Dispose(stepTimeout)

	out := &Outcome{Pass: true}
	run := &runState{
		d:      d,
		labels: make(map[string]event.ObjectID),
		objs:   make(map[string]domain.Object),
	}

	for i, step := range s.Transactions {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("transaction %d", i+1)
		}

		var bound []string
		res := d.Modify(stepTimeout, func(tx *domain.Transaction) error {
			var err error
			bound, err = run.apply(tx, step.Ops)
			if err != nil {
				return err
			}
			if step.Abort {
				return errAborted
			}
			return nil
		})

		switch {
		case res.Success && step.Fail:
			out.fail("%s: expected failure, but it committed", name)
		case !res.Success && !step.Fail:
			out.fail("%s: unexpected failure: %v", name, errors.Join(res.Errors...))
		}

		if res.Success {
			doc, err := feed.Encode(uint64(res.Serial), res.Events)
			if err != nil {
				return nil, fmt.Errorf("%s: encoding trace: %w", name, err)
			}
			out.Trace = append(out.Trace, doc)
		} else {
			// The rollback unwound everything this transaction
			// created, so its labels are dangling.
			for _, label := range bound {
				delete(run.labels, label)
				delete(run.objs, label)
			}
			// Restore rebuilds the object table, so surviving
			// labels must be re-resolved by id.
			for label, id := range run.labels {
				if obj := d.Object(id); obj != nil {
					run.objs[label] = obj
				}
			}
		}
	}

	for i, a := range s.Assertions {
		if err := run.assert(a, out.Trace); err != nil {
			out.fail("assertion %d (%s): %v", i+1, a.Type, err)
		}
	}

	return out, nil
}

// runState carries the label bindings across a scenario's transactions.
type runState struct {
	d      *domain.Domain
	labels map[string]event.ObjectID
	objs   map[string]domain.Object
}

// apply runs the ops of one transaction and returns the labels it bound.
func (r *runState) apply(tx *domain.Transaction, ops []OpStep) ([]string, error) {
	var bound []string
	for i, op := range ops {
		created, err := r.applyOp(tx, op)
		if err != nil {
			return bound, fmt.Errorf("op %d (%s): %w", i+1, op.Op, err)
		}
		if created != "" {
			bound = append(bound, created)
		}
	}
	return bound, nil
}

func (r *runState) applyOp(tx *domain.Transaction, op OpStep) (created string, err error) {
	switch op.Op {
	case "create":
		obj, err := r.create(tx, op.Kind)
		if err != nil {
			return "", err
		}
		if op.As == "" {
			return "", errors.New("create requires a label (as)")
		}
		if _, exists := r.labels[op.As]; exists {
			return "", fmt.Errorf("label %q already bound", op.As)
		}
		r.labels[op.As] = obj.ID()
		r.objs[op.As] = obj
		return op.As, nil

	case "destroy":
		obj, err := r.target(op)
		if err != nil {
			return "", err
		}
		return "", obj.Destroy(tx)

	case "root":
		obj, err := r.target(op)
		if err != nil {
			return "", err
		}
		return "", r.d.DeclareRoot(tx, obj)

	case "unroot":
		obj, err := r.target(op)
		if err != nil {
			return "", err
		}
		return "", r.d.RemoveRoot(tx, obj)

	case "set":
		obj, err := r.target(op)
		if err != nil {
			return "", err
		}
		v, err := toValue(op.Value, r.labels)
		if err != nil {
			return "", err
		}
		switch o := obj.(type) {
		case *domain.Plain:
			return "", o.Set(tx, op.Prop, v)
		case *domain.Map:
			return "", o.Set(tx, op.Prop, v)
		default:
			return "", fmt.Errorf("set needs a plain or map target, %q is %s", op.Target, obj.Kind())
		}

	case "delete":
		m, err := targetAs[*domain.Map](r, op)
		if err != nil {
			return "", err
		}
		return "", m.Delete(tx, op.Prop)

	case "append":
		a, err := targetAs[*domain.Array](r, op)
		if err != nil {
			return "", err
		}
		v, err := toValue(op.Value, r.labels)
		if err != nil {
			return "", err
		}
		return "", a.Append(tx, v)

	case "insert":
		a, err := targetAs[*domain.Array](r, op)
		if err != nil {
			return "", err
		}
		v, err := toValue(op.Value, r.labels)
		if err != nil {
			return "", err
		}
		return "", a.Insert(tx, op.Index, v)

	case "setat":
		a, err := targetAs[*domain.Array](r, op)
		if err != nil {
			return "", err
		}
		v, err := toValue(op.Value, r.labels)
		if err != nil {
			return "", err
		}
		return "", a.SetAt(tx, op.Index, v)

	case "removeat":
		a, err := targetAs[*domain.Array](r, op)
		if err != nil {
			return "", err
		}
		return "", a.RemoveAt(tx, op.Index)

	case "clear":
		obj, err := r.target(op)
		if err != nil {
			return "", err
		}
		switch o := obj.(type) {
		case *domain.Array:
			return "", o.Clear(tx)
		case *domain.Map:
			return "", o.Clear(tx)
		case *domain.Set:
			return "", o.Clear(tx)
		default:
			return "", fmt.Errorf("clear needs a collection target, %q is %s", op.Target, obj.Kind())
		}

	case "add":
		s, err := targetAs[*domain.Set](r, op)
		if err != nil {
			return "", err
		}
		v, err := toValue(op.Value, r.labels)
		if err != nil {
			return "", err
		}
		return "", s.Add(tx, v)

	case "remove":
		s, err := targetAs[*domain.Set](r, op)
		if err != nil {
			return "", err
		}
		v, err := toValue(op.Value, r.labels)
		if err != nil {
			return "", err
		}
		return "", s.Remove(tx, v)

	default:
		return "", fmt.Errorf("unknown op %q", op.Op)
	}
}

func (r *runState) create(tx *domain.Transaction, kind string) (domain.Object, error) {
	switch kind {
	case "plain":
		return r.d.CreatePlain(tx)
	case "array":
		return r.d.CreateArray(tx)
	case "map":
		return r.d.CreateMap(tx)
	case "set":
		return r.d.CreateSet(tx)
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
}

func (r *runState) target(op OpStep) (domain.Object, error) {
	if op.Target == "" {
		return nil, errors.New("target label required")
	}
	obj, ok := r.objs[op.Target]
	if !ok {
		return nil, fmt.Errorf("unknown label %q", op.Target)
	}
	return obj, nil
}

func targetAs[T domain.Object](r *runState, op OpStep) (T, error) {
	var zero T
	obj, err := r.target(op)
	if err != nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%q is %s, not %T", op.Target, obj.Kind(), zero)
	}
	return typed, nil
}
